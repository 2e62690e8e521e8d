package fft

import (
	stderrors "errors"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/arena"
	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/metrics"
	"github.com/wippyai/kissfft/plancache"
)

// SessionOption configures a session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	cache bool
	norm  Norm
}

// WithCache controls whether the plan pair is shared through the plan
// cache (the default) or private to the session.
func WithCache(enabled bool) SessionOption {
	return func(c *sessionConfig) { c.cache = enabled }
}

// WithNorm selects the normalization mode. The default is NormBackward.
func WithNorm(n Norm) SessionOption {
	return func(c *sessionConfig) { c.norm = n }
}

// Session is one transform of a fixed family and shape. It owns a
// time-domain buffer and a spectral buffer in engine memory and one
// reference to a plan pair. Forward maps time to spectrum; Inverse maps
// spectrum to time.
//
// A Session is safe for concurrent use; calls are serialized.
type Session struct {
	c     *Context
	ref   *plancache.Ref
	id    string
	shape []int
	kind  kissfft.Kind
	norm  Norm
	total int

	timeLen int
	specLen int

	mu       sync.Mutex
	timeBuf  arena.Record
	specBuf  arena.Record
	disposed bool
}

// NewComplex creates a 1-D complex session of n points. Buffers hold 2n
// interleaved float32 values.
func (c *Context) NewComplex(n int, opts ...SessionOption) (*Session, error) {
	if n < 1 {
		return nil, errors.InvalidArgument("NewComplex", "size %d must be a positive integer", n)
	}
	return c.newSession(kissfft.KindComplex, []int{n}, opts)
}

// NewReal creates a 1-D real session of n points; n must be even. The
// spectrum holds n/2+1 complex bins (n+2 float32 values).
func (c *Context) NewReal(n int, opts ...SessionOption) (*Session, error) {
	if n < 1 {
		return nil, errors.InvalidArgument("NewReal", "size %d must be a positive integer", n)
	}
	if n%2 != 0 {
		return nil, errors.InvalidArgument("NewReal", "size %d must be even; pad explicitly with PadEven", n)
	}
	return c.newSession(kissfft.KindReal, []int{n}, opts)
}

// NewND creates an N-D complex session over a row-major shape.
func (c *Context) NewND(shape []int, opts ...SessionOption) (*Session, error) {
	return c.newSession(kissfft.KindNDComplex, shape, opts)
}

// NewNDReal creates an N-D real session. The last dimension must be even;
// the spectrum is packed along it.
func (c *Context) NewNDReal(shape []int, opts ...SessionOption) (*Session, error) {
	return c.newSession(kissfft.KindNDReal, shape, opts)
}

func factoryName(kind kissfft.Kind) string {
	switch kind {
	case kissfft.KindComplex:
		return "NewComplex"
	case kissfft.KindReal:
		return "NewReal"
	case kissfft.KindNDComplex:
		return "NewND"
	default:
		return "NewNDReal"
	}
}

func (c *Context) newSession(kind kissfft.Kind, shape []int, opts []SessionOption) (*Session, error) {
	cfg := sessionConfig{cache: true, norm: NormBackward}
	for _, opt := range opts {
		opt(&cfg)
	}

	op := factoryName(kind)
	total, err := validateShape(op, kind.IsReal(), shape)
	if err != nil {
		return nil, err
	}
	shape = slices.Clone(shape)

	s := &Session{
		c:     c,
		id:    ulid.Make().String(),
		shape: shape,
		kind:  kind,
		norm:  cfg.norm,
		total: total,
	}
	if kind.IsReal() {
		s.timeLen = total
		s.specLen = PackedLen(shape)
	} else {
		s.timeLen = 2 * total
		s.specLen = 2 * total
	}

	key := plancache.NewKey(kind, shape)
	if kind.IsND() {
		c.warnLarge(key, total)
	}

	ref, err := c.cache.Acquire(key, c.eng, cfg.cache)
	if err != nil {
		return nil, err
	}
	c.metrics.PlanLookup(ref.Hit(), c.cache.Stats().Size)

	recs, err := c.arena.AllocateMany(
		arena.Spec{Label: s.id + "/time", Size: uint32(4 * s.timeLen)},
		arena.Spec{Label: s.id + "/spectrum", Size: uint32(4 * s.specLen)},
	)
	c.metrics.Allocation(err == nil)
	if err != nil {
		if rerr := ref.Release(); rerr != nil {
			c.logger.Warn("failed to release plan after allocation failure",
				zap.Stringer("key", key),
				zap.Error(rerr))
		}
		c.metrics.PlanCacheSize(c.cache.Stats().Size)
		return nil, err
	}
	s.ref = ref
	s.timeBuf, s.specBuf = recs[0], recs[1]

	c.metrics.SessionOpened(kind.String())
	c.observeGuest()
	c.logger.Debug("session created",
		zap.String("id", s.id),
		zap.Stringer("key", key),
		zap.Bool("cached", cfg.cache),
		zap.Bool("plan_hit", ref.Hit()),
		zap.Stringer("norm", cfg.norm))
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Kind returns the transform family.
func (s *Session) Kind() kissfft.Kind { return s.kind }

// Shape returns a copy of the session's dimensions.
func (s *Session) Shape() []int { return slices.Clone(s.shape) }

// Size returns the total number of elements.
func (s *Session) Size() int { return s.total }

// Norm returns the normalization mode.
func (s *Session) Norm() Norm { return s.norm }

// InputLen is the float32 length of time-domain data: 2T for complex
// families, T for real ones.
func (s *Session) InputLen() int { return s.timeLen }

// SpectrumLen is the float32 length of spectral data: 2T for complex
// families, T + 2*(T/last) for real ones.
func (s *Session) SpectrumLen() int { return s.specLen }

// Disposed reports whether Dispose has been called.
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Forward transforms time-domain in into a spectrum. If out is nil a new
// slice is returned; otherwise out must have length SpectrumLen and is
// filled and returned.
func (s *Session) Forward(in, out []float32) ([]float32, error) {
	return s.run("Forward", false, in, out)
}

// Inverse transforms spectrum in back into time-domain data, scaled by
// the session's normalization. If out is nil a new slice is returned;
// otherwise out must have length InputLen.
func (s *Session) Inverse(in, out []float32) ([]float32, error) {
	return s.run("Inverse", true, in, out)
}

func (s *Session) run(op string, inverse bool, in, out []float32) (_ []float32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, errors.UseAfterDispose(op, "session disposed")
	}

	src, dst := s.timeBuf, s.specBuf
	inLen, outLen := s.timeLen, s.specLen
	direction := metrics.DirectionForward
	if inverse {
		src, dst = dst, src
		inLen, outLen = outLen, inLen
		direction = metrics.DirectionInverse
	}
	if len(in) != inLen {
		return nil, errors.WrongLength(op, inLen, len(in))
	}
	if out == nil {
		out = make([]float32, outLen)
	} else if len(out) != outLen {
		return nil, errors.WrongLength(op+" output", outLen, len(out))
	}

	start := time.Now()
	defer func() {
		s.c.metrics.Transform(s.kind.String(), direction, time.Since(start), err)
	}()

	mem := s.c.eng.Memory()
	err = s.ref.Do(func(fwd, inv kissfft.Ptr) error {
		plan := fwd
		if inverse {
			plan = inv
		}
		if err := mem.WriteF32s(src.Ptr, in); err != nil {
			return err
		}
		if err := s.c.eng.Compute(s.kind, inverse, plan, src.Ptr, dst.Ptr); err != nil {
			return err
		}
		if err := mem.ReadF32s(dst.Ptr, out); err != nil {
			return err
		}
		return nil
	})
	if stderrors.Is(err, plancache.ErrReleased) {
		return nil, errors.UseAfterDispose(op, "plan released by cleanup")
	}
	if err != nil {
		return nil, err
	}

	fwdScale, invScale := s.norm.scales(s.total)
	if inverse {
		scale(out, invScale)
	} else {
		scale(out, fwdScale)
	}
	return out, nil
}

// Dispose frees the session's buffers and releases its plan reference.
// Only the first call has an effect.
func (s *Session) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	s.disposed = true

	s.c.arena.Free(&s.timeBuf)
	s.c.arena.Free(&s.specBuf)
	err := s.ref.Release()
	if err != nil {
		s.c.logger.Warn("plan release failed during dispose",
			zap.String("id", s.id),
			zap.Stringer("key", s.ref.Key()),
			zap.Error(err))
	}

	s.c.metrics.SessionClosed(s.kind.String())
	s.c.metrics.PlanCacheSize(s.c.cache.Stats().Size)
	s.c.observeGuest()
	if err != nil {
		return errors.Wrap(errors.PhaseCleanup, errors.KindTrap, err, "release plan")
	}
	return nil
}
