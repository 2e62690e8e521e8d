// Package plancache shares engine plan pairs between sessions.
//
// A plan pair is the forward and inverse configuration for one Key. The
// cache owns every pair it stores; sessions hold a *Ref and give it back
// with Release, exactly once. A pair is freed when its last reference is
// released, or unconditionally by ClearAll.
package plancache

import (
	stderrors "errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/errors"
)

// Planner allocates and frees engine plans. *engine.Engine satisfies it.
type Planner interface {
	AllocPlan(kind kissfft.Kind, dims []int, inverse bool) (kissfft.Ptr, error)
	Free(p kissfft.Ptr) error
}

type entry struct {
	planner Planner
	key     Key
	fwd     kissfft.Ptr
	inv     kissfft.Ptr
	refs    int
	cached  bool
	freed   bool
}

// Stats is a snapshot of the cache.
type Stats struct {
	Keys   []string
	Size   int
	Hits   uint64
	Misses uint64
}

// Cache maps keys to shared plan pairs. All mutations, including the
// engine calls they make, happen under one mutex.
type Cache struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries map[Key]*entry
	hits    uint64
	misses  uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for secondary failures.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		logger:  zap.NewNop(),
		entries: make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire returns a reference to the plan pair for key. With cacheable
// set, an existing pair is shared and a new one is stored; otherwise a
// private pair is built and freed on its single Release.
//
// If the inverse plan cannot be built the forward plan is freed and the
// cache is left untouched.
func (c *Cache) Acquire(key Key, p Planner, cacheable bool) (*Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cacheable {
		if e, ok := c.entries[key]; ok {
			e.refs++
			c.hits++
			return &Ref{c: c, e: e, hit: true}, nil
		}
	}
	c.misses++

	dims := key.Dims()
	fwd, err := p.AllocPlan(key.kind, dims, false)
	if err != nil || !fwd.Valid() {
		return nil, errors.PlanAllocationFailed(key.String(), "forward", err)
	}
	inv, err := p.AllocPlan(key.kind, dims, true)
	if err != nil || !inv.Valid() {
		if ferr := p.Free(fwd); ferr != nil {
			c.logger.Warn("failed to free forward plan after inverse failure",
				zap.Stringer("key", key),
				zap.Stringer("ptr", fwd),
				zap.Error(ferr))
		}
		return nil, errors.PlanAllocationFailed(key.String(), "inverse", err)
	}

	e := &entry{planner: p, key: key, fwd: fwd, inv: inv, refs: 1, cached: cacheable}
	if cacheable {
		c.entries[key] = e
	}
	c.logger.Debug("plan pair created",
		zap.Stringer("key", key),
		zap.Bool("cached", cacheable),
		zap.Stringer("forward", fwd),
		zap.Stringer("inverse", inv))
	return &Ref{c: c, e: e}, nil
}

// freePair releases both plans. The caller holds c.mu.
func (c *Cache) freePair(e *entry, p Planner) error {
	e.freed = true
	var errs []error
	for _, ptr := range []kissfft.Ptr{e.fwd, e.inv} {
		if err := p.Free(ptr); err != nil {
			c.logger.Warn("failed to free plan",
				zap.Stringer("key", e.key),
				zap.Stringer("ptr", ptr),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	e.fwd, e.inv = kissfft.NullPtr, kissfft.NullPtr
	return stderrors.Join(errs...)
}

// Refs returns the reference count of the stored pair for key, or 0.
func (c *Cache) Refs(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Stats returns the stored keys, sorted, and hit counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return Stats{Keys: keys, Size: len(keys), Hits: c.hits, Misses: c.misses}
}

// ClearAll frees every stored pair regardless of outstanding references.
// Refs to cleared pairs become invalid and never free them again. p frees
// the plans; nil uses the planner that built each pair.
func (c *Cache) ClearAll(p Planner) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for k, e := range c.entries {
		planner := p
		if planner == nil {
			planner = e.planner
		}
		if err := c.freePair(e, planner); err != nil {
			errs = append(errs, err)
		}
		delete(c.entries, k)
	}
	return stderrors.Join(errs...)
}

// ErrReleased is returned by Ref.Do when the pair is no longer usable.
var ErrReleased = stderrors.New("plan reference released")

// Ref is one session's claim on a plan pair.
type Ref struct {
	c        *Cache
	e        *entry
	hit      bool
	released bool
}

// Key returns the key of the referenced pair.
func (r *Ref) Key() Key {
	return r.e.key
}

// Hit reports whether Acquire found the pair already stored.
func (r *Ref) Hit() bool {
	return r.hit
}

// Cached reports whether the pair is shared through the cache.
func (r *Ref) Cached() bool {
	return r.e.cached
}

// Valid reports whether the pair can still be used through this ref.
func (r *Ref) Valid() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return !r.released && !r.e.freed
}

// Forward returns the forward plan, or NullPtr if the ref is not valid.
func (r *Ref) Forward() kissfft.Ptr {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.released || r.e.freed {
		return kissfft.NullPtr
	}
	return r.e.fwd
}

// Inverse returns the inverse plan, or NullPtr if the ref is not valid.
func (r *Ref) Inverse() kissfft.Ptr {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.released || r.e.freed {
		return kissfft.NullPtr
	}
	return r.e.inv
}

// Do runs fn with both plans while holding the cache lock, so the pair
// cannot be freed underneath it. It returns ErrReleased if the ref was
// released or its pair was cleared.
func (r *Ref) Do(fn func(fwd, inv kissfft.Ptr) error) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.released || r.e.freed {
		return ErrReleased
	}
	return fn(r.e.fwd, r.e.inv)
}

// Release gives the reference back. Only the first call has an effect.
// The pair is freed when its count reaches zero.
func (r *Ref) Release() error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true

	e := r.e
	if e.freed {
		return nil
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	if e.cached && r.c.entries[e.key] == e {
		delete(r.c.entries, e.key)
	}
	r.c.logger.Debug("plan pair freed", zap.Stringer("key", e.key))
	return r.c.freePair(e, e.planner)
}
