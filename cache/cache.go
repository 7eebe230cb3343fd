// Package cache stores decoded tiles up to a byte capacity. A Cache may be
// shared by several slides; each slide talks to it through a Binding,
// which namespaces keys and can be repointed at another Cache.
package cache

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/maypok86/otter/v2"
)

// DefaultCapacity is the size of the private cache each slide starts with.
const DefaultCapacity = 1024 * 1024 * 32

// Key identifies a tile within one binding.
type Key struct {
	Plane int // backend-defined: color, gray, associated image...
	Level int
	Col   int64
	Row   int64
}

type entryKey struct {
	binding uint64
	Key
}

type entry struct {
	value any
	size  int
}

// Cache is a weight-bounded tile store safe for concurrent use. Eviction
// follows otter's W-TinyLFU policy with each entry weighing its byte size.
type Cache struct {
	capacity int
	store    *otter.Cache[entryKey, entry] // nil when capacity is zero
	refs     atomic.Int32
}

// New returns a cache holding at most capacity bytes, with one reference
// owned by the caller. A cache of capacity 0 stores nothing.
func New(capacity int) *Cache {
	c := &Cache{capacity: max(capacity, 0)}
	if c.capacity > 0 {
		c.store = otter.Must(&otter.Options[entryKey, entry]{
			MaximumWeight: uint64(c.capacity),
			Weigher: func(_ entryKey, e entry) uint32 {
				return uint32(e.size)
			},
			// maintenance runs on the writing goroutine
			Executor: func(fn func()) { fn() },
		})
	}
	c.refs.Store(1)
	return c
}

// Release drops the caller's reference. The cache empties itself once no
// binding or caller refers to it.
func (c *Cache) Release() {
	if c.refs.Add(-1) == 0 && c.store != nil {
		c.store.InvalidateAll()
	}
}

func (c *Cache) ref() *Cache {
	c.refs.Add(1)
	return c
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	if c.store == nil {
		return 0
	}
	c.store.CleanUp()
	return c.store.EstimatedSize()
}

// Size returns the byte total of stored entries.
func (c *Cache) Size() int {
	if c.store == nil {
		return 0
	}
	c.store.CleanUp()
	return int(c.store.WeightedSize())
}

func (c *Cache) get(k entryKey) (any, bool) {
	if c.store == nil {
		return nil, false
	}
	e, ok := c.store.GetIfPresent(k)
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) put(k entryKey, value any, size int) {
	// too big to cache; the caller keeps its copy
	if c.store == nil || size > c.capacity || uint64(size) > math.MaxUint32 {
		return
	}
	c.store.Set(k, entry{value: value, size: size})
}

var nextBinding atomic.Uint64

// Binding is one slide's view of a Cache.
type Binding struct {
	mu    sync.RWMutex
	cache *Cache
	id    uint64
}

// NewBinding returns a binding to a new private cache of capacity bytes.
func NewBinding(capacity int) *Binding {
	return &Binding{cache: New(capacity), id: nextBinding.Add(1)}
}

// Set points the binding at c, releasing the previous cache. Entries stored
// through the old cache are not carried over. A nil c leaves the binding
// unchanged.
func (b *Binding) Set(c *Cache) {
	if c == nil {
		return
	}
	c.ref()
	b.mu.Lock()
	old := b.cache
	b.cache = c
	b.id = nextBinding.Add(1)
	b.mu.Unlock()
	if old != nil {
		old.Release()
	}
}

// Cache returns the cache currently bound.
func (b *Binding) Cache() *Cache {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cache
}

// Get looks up k.
func (b *Binding) Get(k Key) (any, bool) {
	b.mu.RLock()
	c, id := b.cache, b.id
	b.mu.RUnlock()
	if c == nil {
		return nil, false
	}
	return c.get(entryKey{binding: id, Key: k})
}

// Put stores value under k, charging size bytes against the capacity.
func (b *Binding) Put(k Key, value any, size int) {
	b.mu.RLock()
	c, id := b.cache, b.id
	b.mu.RUnlock()
	if c == nil {
		return
	}
	c.put(entryKey{binding: id, Key: k}, value, size)
}

// Close releases the bound cache. Later lookups miss.
func (b *Binding) Close() {
	b.mu.Lock()
	old := b.cache
	b.cache = nil
	b.mu.Unlock()
	if old != nil {
		old.Release()
	}
}
