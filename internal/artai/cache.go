package artai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Key identifies a cache entry. Keys form families by element prefix:
// Key{"server-images"} is the family of every Key{"server-images", page, filter}.
type Key []string

// NewKey builds a Key, formatting each part with fmt.Sprint. A nil *int64
// part is rendered as "all".
func NewKey(parts ...any) Key {
	k := make(Key, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			k = append(k, v)
		case *int64:
			if v == nil {
				k = append(k, "all")
			} else {
				k = append(k, fmt.Sprint(*v))
			}
		default:
			k = append(k, fmt.Sprint(v))
		}
	}
	return k
}

func (k Key) String() string { return strings.Join(k, "/") }

// HasPrefix reports whether every element of prefix equals the element of k
// at the same position.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (k Key) id() string { return strings.Join(k, "\x1f") }

// Fetcher loads the value for one key.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot is what a non-blocking Read observed.
type Snapshot struct {
	Value     any
	Found     bool      // Value holds a previously fetched value
	FetchedAt time.Time // when Value landed
	Pending   bool      // a fetch for this key is in flight
	Err       error     // error of the last failed fetch, if any
}

// entry is one key's state. value/fetchedAt survive failed refetches.
type entry struct {
	key         Key
	value       any
	has         bool
	fetchedAt   time.Time
	staleTime   time.Duration
	invalidated bool
	gen         uint64
	err         error
	call        *call
}

// call is the single in-flight fetch for an entry.
type call struct {
	done       chan struct{}
	gen        uint64
	val        any
	err        error
	superseded bool // the entry was invalidated or cleared while in flight
}

// maxSupersededRetries bounds how many times Get refetches a key that keeps
// getting invalidated under it.
const maxSupersededRetries = 3

// Cache is the keyed cache coordinator. Reads are deduplicated per key,
// mutations invalidate key families, and a response is only ever applied to the
// entry (and generation) it was fetched for.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   Clock
	logger  Logger
}

// NewCache creates an empty cache. clock and logger may be nil.
func NewCache(clock Clock, logger Logger) *Cache {
	if clock == nil {
		clock = RealClock{}
	}
	return &Cache{
		entries: make(map[string]*entry),
		clock:   clock,
		logger:  orNop(logger),
	}
}

// entryFor returns the entry for key, creating it. Caller holds c.mu.
func (c *Cache) entryFor(key Key) *entry {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[id] = e
	}
	return e
}

// fresh reports whether e can be served without a fetch. Caller holds c.mu.
func (c *Cache) fresh(e *entry) bool {
	if !e.has || e.invalidated {
		return false
	}
	return c.clock.Now().Sub(e.fetchedAt) <= e.staleTime
}

// start joins the in-flight call for e or starts a new one. Caller holds c.mu.
func (c *Cache) start(ctx context.Context, e *entry, fetch Fetcher) *call {
	if e.call != nil {
		return e.call
	}
	cl := &call{done: make(chan struct{}), gen: e.gen}
	e.call = cl
	id := e.key.id()
	c.logger.Debug("cache fetch", "key", e.key.String(), "gen", cl.gen)

	go func() {
		val, err := fetch(context.WithoutCancel(ctx))

		c.mu.Lock()
		defer c.mu.Unlock()
		if e.call == cl {
			e.call = nil
		}
		current := c.entries[id] == e && e.gen == cl.gen
		switch {
		case !current:
			cl.superseded = true
			c.logger.Debug("cache result dropped", "key", e.key.String(), "gen", cl.gen)
		case err != nil:
			e.err = err
		default:
			e.value = val
			e.has = true
			e.fetchedAt = c.clock.Now()
			e.invalidated = false
			e.err = nil
		}
		cl.val, cl.err = val, err
		close(cl.done)
	}()
	return cl
}

// Read returns what the cache holds for key without blocking. When the entry
// is stale or absent it starts (or joins) a fetch and reports Pending, still
// returning the previous value if there is one.
func (c *Cache) Read(ctx context.Context, key Key, staleTime time.Duration, fetch Fetcher) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryFor(key)
	e.staleTime = staleTime
	snap := Snapshot{Value: e.value, Found: e.has, FetchedAt: e.fetchedAt, Err: e.err}
	if c.fresh(e) {
		return snap
	}
	c.start(ctx, e, fetch)
	snap.Pending = true
	return snap
}

// Get returns a fresh value for key, fetching it if needed and waiting for
// the result. If the key is invalidated while the fetch is in flight, the
// result is discarded and the key fetched again.
func (c *Cache) Get(ctx context.Context, key Key, staleTime time.Duration, fetch Fetcher) (any, error) {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		e := c.entryFor(key)
		e.staleTime = staleTime
		if c.fresh(e) {
			v := e.value
			c.mu.Unlock()
			return v, nil
		}
		cl := c.start(ctx, e, fetch)
		c.mu.Unlock()

		select {
		case <-cl.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if cl.err != nil {
			return nil, cl.err
		}
		if !cl.superseded || attempt >= maxSupersededRetries {
			return cl.val, nil
		}
	}
}

// Peek returns the entry's state without fetching.
func (c *Cache) Peek(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{Value: e.value, Found: e.has, FetchedAt: e.fetchedAt, Pending: e.call != nil, Err: e.err}
}

// Invalidate marks every entry whose key has one of the given prefixes as
// stale, so the next read refetches it. In-flight results for those entries
// will be dropped. All matching entries change under one lock. It returns the
// number of entries invalidated.
func (c *Cache) Invalidate(prefixes ...Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		for _, p := range prefixes {
			if e.key.HasPrefix(p) {
				e.invalidated = true
				e.gen++
				n++
				break
			}
		}
	}
	c.logger.Debug("cache invalidated", "prefixes", fmt.Sprint(prefixes), "entries", n)
	return n
}

// Clear discards every entry. Fetches still in flight land nowhere.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	c.logger.Debug("cache cleared")
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch is the typed form of Cache.Get.
func Fetch[T any](ctx context.Context, c *Cache, key Key, staleTime time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Get(ctx, key, staleTime, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache key %s holds %T, want %T", key, v, zero)
	}
	return t, nil
}
