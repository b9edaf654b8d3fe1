package server

import (
	"sync"
	"time"

	"github.com/chazu/kuro/vm/dist"
)

// result is a finished compilation kept for later Fetch calls.
type result struct {
	resp     *dist.CompileResponse
	created  time.Time
	lastUsed time.Time
}

// ResultStore maps compile request IDs to their responses. Entries hold
// only serialized images, so nothing on a heap is pinned by them.
type ResultStore struct {
	mu      sync.Mutex
	results map[string]*result
}

// NewResultStore creates an empty result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[string]*result),
	}
}

// Put records resp under resp.ID.
func (s *ResultStore) Put(resp *dist.CompileResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.results[resp.ID] = &result{
		resp:     resp,
		created:  now,
		lastUsed: now,
	}
}

// Lookup retrieves the response for an ID and refreshes its TTL.
func (s *ResultStore) Lookup(id string) (*dist.CompileResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[id]
	if !ok {
		return nil, false
	}
	r.lastUsed = time.Now()
	return r.resp, true
}

// Release removes a result.
func (s *ResultStore) Release(id string) {
	s.mu.Lock()
	delete(s.results, id)
	s.mu.Unlock()
}

// Len returns the number of stored results.
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Sweep removes results that haven't been accessed within the TTL.
func (s *ResultStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, r := range s.results {
		if r.lastUsed.Before(cutoff) {
			delete(s.results, id)
			removed++
		}
	}
	if removed > 0 {
		serverLog().Debugf("swept %d compile results", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *ResultStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
