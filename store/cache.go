package store

import (
	"errors"

	"github.com/tidwall/tinylru"

	"github.com/chazu/kuro/compiler"
	"github.com/chazu/kuro/vm"
	"github.com/chazu/kuro/vm/dist"
)

// DefaultMemoryModules is how many modules a Cache holds in memory
// before evicting the least recently used one.
const DefaultMemoryModules = 256

// Stats counts where Cache.Compile found its modules.
type Stats struct {
	MemoryHits int
	StoreHits  int
	Compiled   int
}

// Cache puts an in-memory content store and an optional persistent Store
// in front of the compiler. Modules are materialized on one heap, which
// the cache keeps them alive on until they are evicted or the cache is
// closed. The memory tier is bounded; evicted modules are reloaded from
// the Store on their next use.
//
// A Cache is not safe for concurrent use; it shares its heap's rules.
type Cache struct {
	heap   *vm.Heap
	store  *Store
	memory *vm.ContentStore
	recent tinylru.LRU // keys of memory, by recency
	opts   []compiler.Option
	stats  Stats

	removeRoots func()
}

// NewCache creates a cache allocating on heap. store may be nil for a
// memory-only cache. opts are passed to every compilation.
func NewCache(heap *vm.Heap, store *Store, opts ...compiler.Option) *Cache {
	c := &Cache{
		heap:   heap,
		store:  store,
		memory: vm.NewContentStore(),
		opts:   opts,
	}
	c.recent.Resize(DefaultMemoryModules)
	c.removeRoots = heap.AddRoots(c.memory)
	return c
}

// Compile returns the module compiled from source, reusing a cached one
// when the source has been seen before. Compile errors are returned as
// *compiler.Error and are never cached.
func (c *Cache) Compile(source string) (*vm.Function, error) {
	key := Key(source)
	if fn := c.memory.Lookup(key); fn != nil {
		c.recent.Get(key)
		c.stats.MemoryHits++
		return fn, nil
	}

	if fn := c.loadStored(key); fn != nil {
		c.remember(key, fn)
		c.stats.StoreHits++
		return fn, nil
	}

	opts := append(append([]compiler.Option(nil), c.opts...), compiler.WithHeap(c.heap))
	r := compiler.Compile(source, opts...)
	if err := r.Err(); err != nil {
		return nil, err
	}
	c.remember(key, r.Function)
	c.stats.Compiled++

	if c.store != nil {
		image, err := dist.MarshalModule(r.Function, key)
		if err != nil {
			return nil, err
		}
		if err := c.store.Put(key, image); err != nil {
			// The module is still usable; only persistence failed.
			storeLog().Warningf("caching module: %s", err)
		}
	}
	return r.Function, nil
}

// remember indexes fn in the memory tier, evicting the least recently
// used module when the tier is full.
func (c *Cache) remember(key [32]byte, fn *vm.Function) {
	c.memory.Index(key, fn)
	_, _, evictedKey, _, evicted := c.recent.SetEvicted(key, struct{}{})
	if evicted {
		c.memory.Evict(evictedKey.([32]byte))
	}
}

// SetMemoryLimit bounds the memory tier to n modules, evicting the least
// recently used ones beyond it. n < 1 is treated as 1.
func (c *Cache) SetMemoryLimit(n int) {
	if n < 1 {
		n = 1
	}
	c.recent.Resize(n)
	kept := make(map[[32]byte]bool, n)
	c.recent.Range(func(key, _ interface{}) bool {
		kept[key.([32]byte)] = true
		return true
	})
	for _, key := range c.memory.Hashes() {
		if !kept[key] {
			c.memory.Evict(key)
		}
	}
}

// loadStored decodes the persisted image for key. Unreadable images are
// dropped so the next compile replaces them.
func (c *Cache) loadStored(key [32]byte) *vm.Function {
	if c.store == nil {
		return nil
	}
	image, err := c.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			storeLog().Warningf("reading cached module: %s", err)
		}
		return nil
	}
	fn, hash, err := dist.UnmarshalModule(image, c.heap)
	if err == nil && hash != key {
		err = errors.New("image hash does not match its key")
	}
	if err != nil {
		storeLog().Warningf("discarding cached module: %s", err)
		if err := c.store.Delete(key); err != nil {
			storeLog().Warningf("deleting cached module: %s", err)
		}
		return nil
	}
	return fn
}

// Stats returns the hit counters.
func (c *Cache) Stats() Stats { return c.stats }

// Len returns the number of modules held in memory.
func (c *Cache) Len() int { return c.memory.Len() }

// Close releases the cached modules to the collector. It does not close
// the underlying Store.
func (c *Cache) Close() {
	if c.removeRoots != nil {
		c.removeRoots()
		c.removeRoots = nil
	}
}
