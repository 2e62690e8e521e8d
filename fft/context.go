package fft

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/kissfft/arena"
	"github.com/wippyai/kissfft/engine"
	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/metrics"
	"github.com/wippyai/kissfft/plancache"
)

// Context ties an engine to the arena and plan cache its sessions share.
type Context struct {
	acq     *engine.Acquirer
	eng     *engine.Engine
	arena   *arena.Arena
	cache   *plancache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
	ownsAcq bool

	warnMu sync.Mutex
	warned map[plancache.Key]bool
}

// Option configures a Context.
type Option func(*options)

type options struct {
	acq     *engine.Acquirer
	engCfg  engine.Config
	arena   *arena.Arena
	cache   *plancache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// WithAcquirer shares an existing acquirer. The Context does not close it.
func WithAcquirer(a *engine.Acquirer) Option {
	return func(o *options) { o.acq = a }
}

// WithEngineConfig configures the acquirer New creates when none is given.
func WithEngineConfig(cfg engine.Config) Option {
	return func(o *options) { o.engCfg = cfg }
}

// WithLogger sets the logger for the context and its arena and cache.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records allocations, plan lookups and transforms in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithArena uses a caller-provided arena. It must allocate from the same engine.
func WithArena(a *arena.Arena) Option {
	return func(o *options) { o.arena = a }
}

// WithPlanCache shares a plan cache. It must hold plans of the same engine.
func WithPlanCache(c *plancache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// New acquires an engine and returns a ready Context. Acquisition is the
// only step that honors ctx.
func New(ctx context.Context, opts ...Option) (*Context, error) {
	o := applyOptions(opts)
	acq := o.acq
	owns := false
	if acq == nil {
		cfg := o.engCfg
		if cfg.Logger == nil {
			cfg.Logger = o.logger
		}
		acq = engine.NewAcquirer(cfg)
		owns = true
	}
	eng, err := acq.Get(ctx)
	if err != nil {
		return nil, err
	}
	c := newContext(eng, o)
	c.acq = acq
	c.ownsAcq = owns
	return c, nil
}

// NewWithEngine wraps an already acquired engine.
func NewWithEngine(eng *engine.Engine, opts ...Option) *Context {
	return newContext(eng, applyOptions(opts))
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func newContext(eng *engine.Engine, o *options) *Context {
	c := &Context{
		eng:     eng,
		arena:   o.arena,
		cache:   o.cache,
		metrics: o.metrics,
		logger:  o.logger,
		warned:  make(map[plancache.Key]bool),
	}
	if c.arena == nil {
		c.arena = arena.New(eng, arena.WithLogger(o.logger))
	}
	if c.cache == nil {
		c.cache = plancache.New(plancache.WithLogger(o.logger))
	}
	c.metrics.EngineVariant(eng.Variant().String())
	return c
}

// Engine returns the underlying engine.
func (c *Context) Engine() *engine.Engine {
	return c.eng
}

// Arena returns the arena sessions allocate from.
func (c *Context) Arena() *arena.Arena {
	return c.arena
}

// CacheStats reports the stored plan keys.
func (c *Context) CacheStats() plancache.Stats {
	return c.cache.Stats()
}

// Cleanup frees every cached plan pair, then asks the engine to drop its
// internal state. Sessions whose plans were cleared refuse to compute.
func (c *Context) Cleanup() error {
	var errs []error
	if err := c.cache.ClearAll(c.eng); err != nil {
		errs = append(errs, err)
	}
	if err := c.eng.Cleanup(); err != nil {
		errs = append(errs, err)
	}
	c.metrics.PlanCacheSize(0)
	c.observeGuest()
	if err := stderrors.Join(errs...); err != nil {
		return errors.Wrap(errors.PhaseCleanup, errors.KindTrap, err, "cleanup")
	}
	c.logger.Debug("cleanup complete")
	return nil
}

// NextFastSize returns the smallest size >= n the engine transforms
// efficiently.
func (c *Context) NextFastSize(n int) (int, error) {
	return c.eng.NextFastSize(n)
}

// NextFastShape applies NextFastSize to every dimension. With realLast the
// last dimension is additionally rounded up to an even fast size.
func (c *Context) NextFastShape(shape []int, realLast bool) ([]int, error) {
	out := make([]int, len(shape))
	for i, d := range shape {
		m, err := c.eng.NextFastSize(d)
		if err != nil {
			return nil, err
		}
		if realLast && i == len(shape)-1 {
			for m%2 != 0 {
				if m, err = c.eng.NextFastSize(m + 1); err != nil {
					return nil, err
				}
			}
		}
		out[i] = m
	}
	return out, nil
}

// Close releases the engine if this Context acquired it. Sessions must be
// disposed first.
func (c *Context) Close(ctx context.Context) error {
	if !c.ownsAcq || c.acq == nil {
		return nil
	}
	return c.acq.Close(ctx)
}

func (c *Context) observeGuest() {
	if c.metrics == nil {
		return
	}
	st := c.eng.Stats()
	c.metrics.Guest(st.LiveBlocks, st.MemoryBytes)
}

// warnLarge logs once per key for N-D transforms above LargeNDThreshold.
func (c *Context) warnLarge(key plancache.Key, total int) {
	if total < LargeNDThreshold {
		return
	}
	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	if c.warned[key] {
		return
	}
	c.warned[key] = true
	c.logger.Warn("large N-D transform requested; this may be slow and memory-heavy",
		zap.Stringer("key", key),
		zap.Int("elements", total))
}
