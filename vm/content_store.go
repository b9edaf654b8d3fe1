package vm

import (
	"crypto/sha256"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// ContentStore: content-addressed index of compiled modules
// ---------------------------------------------------------------------------

// ContentStore indexes compiled module functions by the SHA-256 of the
// source they were compiled from. It is the in-memory tier in front of the
// persistent module cache.
//
// Functions held by the store must survive collection, so a store is
// registered as a root provider on the heap that allocated them.
type ContentStore struct {
	mu      sync.RWMutex
	modules map[[32]byte]*Function
}

// HashSource returns the content address of a source text.
func HashSource(source string) [32]byte {
	return sha256.Sum256([]byte(source))
}

// NewContentStore creates an empty content store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		modules: make(map[[32]byte]*Function),
	}
}

// Index records fn under h. Zero hashes and nil functions are ignored.
func (cs *ContentStore) Index(h [32]byte, fn *Function) {
	if h == ([32]byte{}) || fn == nil {
		return
	}
	cs.mu.Lock()
	cs.modules[h] = fn
	cs.mu.Unlock()
}

// Lookup returns the function stored under h, or nil.
func (cs *ContentStore) Lookup(h [32]byte) *Function {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.modules[h]
}

// HasHash reports whether h is indexed.
func (cs *ContentStore) HasHash(h [32]byte) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.modules[h]
	return ok
}

// Evict drops h from the store.
func (cs *ContentStore) Evict(h [32]byte) {
	cs.mu.Lock()
	delete(cs.modules, h)
	cs.mu.Unlock()
}

// Hashes returns every indexed hash in ascending byte order.
func (cs *ContentStore) Hashes() [][32]byte {
	cs.mu.RLock()
	hashes := make([][32]byte, 0, len(cs.modules))
	for h := range cs.modules {
		hashes = append(hashes, h)
	}
	cs.mu.RUnlock()
	sort.Slice(hashes, func(i, j int) bool {
		for k := 0; k < 32; k++ {
			if hashes[i][k] != hashes[j][k] {
				return hashes[i][k] < hashes[j][k]
			}
		}
		return false
	})
	return hashes
}

// Len returns the number of indexed modules.
func (cs *ContentStore) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.modules)
}

// MarkRoots implements RootProvider.
func (cs *ContentStore) MarkRoots(m *Marker) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, fn := range cs.modules {
		m.MarkFunction(fn)
	}
}
