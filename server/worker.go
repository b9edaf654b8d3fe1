package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/kuro/store"
	"github.com/chazu/kuro/vm"
)

// errWorkerStopped is returned by Do once the worker has been stopped.
var errWorkerStopped = errors.New("compile worker stopped")

// Workspace is the compiler state owned by a CompileWorker's goroutine.
type Workspace struct {
	Heap  *vm.Heap
	Cache *store.Cache
}

// workRequest represents a unit of work to be executed on the worker goroutine.
type workRequest struct {
	fn   func(*Workspace) interface{}
	done chan workResult
}

// workResult holds the return value from a worker operation.
type workResult struct {
	value interface{}
	err   error
}

// CompileWorker serializes all heap access through a single goroutine.
// A Heap is single-threaded; every RPC and LSP handler must go through
// the worker to avoid data races.
type CompileWorker struct {
	ws       *Workspace
	requests chan workRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewCompileWorker creates a worker compiling onto a fresh heap, caching
// modules in memory and, when st is non-nil, in st. The worker starts
// its processing goroutine immediately.
func NewCompileWorker(st *store.Store) *CompileWorker {
	heap := vm.NewHeap()
	w := &CompileWorker{
		ws: &Workspace{
			Heap:  heap,
			Cache: store.NewCache(heap, st),
		},
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *CompileWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			result := w.execute(req.fn)
			req.done <- result
		case <-w.quit:
			w.ws.Cache.Close()
			return
		}
	}
}

// execute runs a function on the workspace, recovering from panics.
func (w *CompileWorker) execute(fn func(*Workspace) interface{}) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.ws)
	}()
	return result
}

// Do submits a function for execution on the worker goroutine and blocks
// until it completes. Returns the result and any error (including panics).
// Do gives up when ctx ends or the worker is stopped; a function already
// running still completes on the worker.
func (w *CompileWorker) Do(ctx context.Context, fn func(*Workspace) interface{}) (interface{}, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case <-w.quit:
		return nil, errWorkerStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, errWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine. Calling it again is a no-op.
func (w *CompileWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
