// Package arena tracks labeled allocations in engine memory.
//
// AllocateMany is all-or-nothing: either every requested buffer is
// returned, or every buffer obtained during the call is freed before the
// error is reported.
package arena

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/errors"
)

// Record is one allocation. A zero Ptr means the allocation failed or the
// record was freed.
type Record struct {
	Label string
	Ptr   kissfft.Ptr
	Size  uint32
}

// Valid reports whether the record holds live engine memory.
func (r Record) Valid() bool {
	return r.Ptr.Valid()
}

func (r Record) String() string {
	return fmt.Sprintf("%s@%s(%d)", r.Label, r.Ptr, r.Size)
}

// Spec requests size bytes under label.
type Spec struct {
	Label string
	Size  uint32
}

// Failure is the Value of the error returned by AllocateMany.
type Failure struct {
	Failed    []string
	Succeeded []string
}

// Arena issues and frees records against an engine allocator.
type Arena struct {
	alloc    kissfft.Allocator
	logger   *zap.Logger
	maxAlloc uint32

	mu   sync.Mutex
	live map[kissfft.Ptr]string
}

// Option configures an Arena.
type Option func(*Arena)

// WithLogger sets the logger for secondary failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Arena) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMaxAlloc rejects single requests above n bytes without calling the engine.
func WithMaxAlloc(n uint32) Option {
	return func(a *Arena) {
		a.maxAlloc = n
	}
}

// DefaultMaxAlloc is the largest single request an arena forwards by default.
const DefaultMaxAlloc = 1 << 30

// New creates an arena over alloc.
func New(alloc kissfft.Allocator, opts ...Option) *Arena {
	a := &Arena{
		alloc:    alloc,
		logger:   zap.NewNop(),
		maxAlloc: DefaultMaxAlloc,
		live:     make(map[kissfft.Ptr]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AllocateOne requests size bytes. It never returns an error: failure of
// any kind yields a record with a zero Ptr.
func (a *Arena) AllocateOne(size uint32, label string) Record {
	rec := Record{Label: label, Size: size}
	if size == 0 || size > a.maxAlloc {
		a.logger.Debug("allocation rejected",
			zap.String("label", label),
			zap.Uint32("size", size),
			zap.Uint32("max", a.maxAlloc))
		return rec
	}
	p, err := a.alloc.Malloc(size)
	if err != nil {
		a.logger.Warn("allocation trapped",
			zap.String("label", label),
			zap.Uint32("size", size),
			zap.Error(err))
		return rec
	}
	if !p.Valid() {
		return rec
	}
	rec.Ptr = p

	a.mu.Lock()
	a.live[p] = label
	a.mu.Unlock()
	return rec
}

// AllocateMany obtains every spec or none. On failure the returned error
// is of kind allocation and its Value is a *Failure naming the failed and
// rolled-back labels.
func (a *Arena) AllocateMany(specs ...Spec) ([]Record, error) {
	recs := make([]Record, 0, len(specs))
	var failed []string
	for _, s := range specs {
		rec := a.AllocateOne(s.Size, s.Label)
		if !rec.Valid() {
			failed = append(failed, s.Label)
			continue
		}
		recs = append(recs, rec)
	}
	if len(failed) == 0 {
		return recs, nil
	}

	succeeded := make([]string, 0, len(recs))
	for i := range recs {
		succeeded = append(succeeded, recs[i].Label)
		a.Free(&recs[i])
	}
	f := &Failure{Failed: failed, Succeeded: succeeded}
	return nil, errors.AllocationFailed("AllocateMany", failed, succeeded, f)
}

// Free releases r if it is valid and zeroes it. Freeing an already freed
// record is a no-op. Engine errors are logged, not returned.
func (a *Arena) Free(r *Record) {
	if r == nil || !r.Valid() {
		return
	}
	p := r.Ptr
	r.Ptr = kissfft.NullPtr
	r.Size = 0

	a.mu.Lock()
	_, owned := a.live[p]
	delete(a.live, p)
	a.mu.Unlock()
	if !owned {
		a.logger.Warn("free of record not issued by this arena",
			zap.String("label", r.Label),
			zap.Stringer("ptr", p))
		return
	}

	if err := a.alloc.Free(p); err != nil {
		a.logger.Warn("free failed",
			zap.String("label", r.Label),
			zap.Stringer("ptr", p),
			zap.Error(err))
	}
}

// FreeAll frees every record in recs.
func (a *Arena) FreeAll(recs []Record) {
	for i := range recs {
		a.Free(&recs[i])
	}
}

// Outstanding returns the number of live records issued by this arena.
func (a *Arena) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Labels returns the labels of live records, for diagnostics.
func (a *Arena) Labels() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.live))
	for _, l := range a.live {
		out = append(out, l)
	}
	return out
}
