package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/guest"
)

// Engine is one instantiated KISS FFT module. Every guest call and every
// access to its linear memory is serialized by a single mutex.
type Engine struct {
	mu       sync.Mutex
	ctx      context.Context
	runtime  wazero.Runtime
	module   api.Module
	mem      api.Memory
	funcs    map[string]api.Function
	stackBuf []uint64
	variant  guest.Variant
	logger   *zap.Logger
	closed   bool
}

// Stats is a snapshot of guest heap state.
type Stats struct {
	Variant     guest.Variant
	LiveBlocks  uint32
	HeapTop     uint32
	MemoryBytes uint32
}

// runtimeOptions carries the wazero settings used to instantiate a variant.
type runtimeOptions struct {
	features         api.CoreFeatures
	memoryLimitPages uint32
	interpreter      bool
}

func (o runtimeOptions) config() wazero.RuntimeConfig {
	var cfg wazero.RuntimeConfig
	if o.interpreter {
		cfg = wazero.NewRuntimeConfigInterpreter()
	} else {
		cfg = wazero.NewRuntimeConfig()
	}
	features := o.features
	if features == 0 {
		features = api.CoreFeaturesV2
	}
	cfg = cfg.WithCoreFeatures(features)
	if o.memoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(o.memoryLimitPages)
	}
	return cfg
}

// instantiate compiles bin in a fresh runtime and binds every export the
// host uses. The runtime is closed on any failure.
func instantiate(ctx context.Context, v guest.Variant, bin []byte, opts runtimeOptions, log *zap.Logger) (_ *Engine, err error) {
	// Guest calls outlive the acquisition context.
	callCtx := context.WithoutCancel(ctx)
	r := wazero.NewRuntimeWithConfig(callCtx, opts.config())
	defer func() {
		if err != nil {
			r.Close(callCtx)
		}
	}()

	_, err = r.NewHostModuleBuilder(guest.ImportModule).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, x float64) float64 { return math.Cos(x) }).
		Export(guest.ImportCos).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, x float64) float64 { return math.Sin(x) }).
		Export(guest.ImportSin).
		Instantiate(callCtx)
	if err != nil {
		return nil, fmt.Errorf("host module: %w", err)
	}

	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile %s engine: %w", v, err)
	}
	mod, err := r.InstantiateModule(callCtx, compiled, wazero.NewModuleConfig().WithName("kissfft"))
	if err != nil {
		return nil, fmt.Errorf("instantiate %s engine: %w", v, err)
	}

	e := &Engine{
		ctx:      callCtx,
		runtime:  r,
		module:   mod,
		funcs:    make(map[string]api.Function, len(guest.RequiredFuncs)),
		stackBuf: make([]uint64, 5),
		variant:  v,
		logger:   log,
	}
	for _, name := range guest.RequiredFuncs {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return nil, fmt.Errorf("%s engine: missing export %q", v, name)
		}
		e.funcs[name] = fn
	}
	e.mem = mod.ExportedMemory(guest.ExportMemory)
	if e.mem == nil {
		return nil, fmt.Errorf("%s engine: missing export %q", v, guest.ExportMemory)
	}
	return e, nil
}

// Variant reports which engine binary is running.
func (e *Engine) Variant() guest.Variant {
	return e.variant
}

// call invokes a guest export. The caller holds e.mu.
func (e *Engine) call(phase errors.Phase, name string, args ...uint64) (uint64, error) {
	if e.closed {
		return 0, errors.New(phase, errors.KindEngineUnavailable).Op(name).Detail("engine closed").Build()
	}
	fn := e.funcs[name]
	n := copy(e.stackBuf, args)
	if err := fn.CallWithStack(e.ctx, e.stackBuf[:max(n, 1)]); err != nil {
		return 0, errors.Trap(phase, name, err)
	}
	return e.stackBuf[0], nil
}

// Malloc reserves size bytes in guest memory. A NullPtr with nil error
// means the guest heap could not satisfy the request.
func (e *Engine) Malloc(size uint32) (kissfft.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.malloc(size)
}

func (e *Engine) malloc(size uint32) (kissfft.Ptr, error) {
	res, err := e.call(errors.PhaseAllocate, guest.ExportMalloc, api.EncodeU32(size))
	if err != nil {
		return kissfft.NullPtr, err
	}
	return kissfft.Ptr(api.DecodeU32(res)), nil
}

// Free releases a block returned by Malloc or AllocPlan. NullPtr is ignored.
func (e *Engine) Free(p kissfft.Ptr) error {
	if !p.Valid() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.free(p)
}

func (e *Engine) free(p kissfft.Ptr) error {
	_, err := e.call(errors.PhaseCleanup, guest.ExportFree, api.EncodeU32(uint32(p)))
	return err
}

func allocExport(kind kissfft.Kind) string {
	switch kind {
	case kissfft.KindComplex:
		return guest.ExportFFTAlloc
	case kissfft.KindReal:
		return guest.ExportFFTRAlloc
	case kissfft.KindNDComplex:
		return guest.ExportFFTNDAlloc
	default:
		return guest.ExportNDRAlloc
	}
}

func computeExport(kind kissfft.Kind, inverse bool) string {
	switch kind {
	case kissfft.KindComplex:
		return guest.ExportFFT
	case kissfft.KindReal:
		if inverse {
			return guest.ExportFFTRI
		}
		return guest.ExportFFTR
	case kissfft.KindNDComplex:
		return guest.ExportFFTND
	default:
		if inverse {
			return guest.ExportFFTNDRI
		}
		return guest.ExportFFTNDR
	}
}

func boolArg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// AllocPlan asks the guest for a transform configuration. 1-D kinds use
// dims[0]; N-D kinds stage dims in a temporary guest buffer. A NullPtr
// with nil error means the guest rejected or could not fit the plan.
func (e *Engine) AllocPlan(kind kissfft.Kind, dims []int, inverse bool) (kissfft.Ptr, error) {
	if len(dims) == 0 {
		return kissfft.NullPtr, errors.InvalidArgument("AllocPlan", "empty shape")
	}
	for _, d := range dims {
		if d < 1 || d > math.MaxInt32 {
			return kissfft.NullPtr, errors.InvalidArgument("AllocPlan", "dimension %d out of range", d)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	name := allocExport(kind)
	if !kind.IsND() {
		res, err := e.call(errors.PhasePlan, name, uint64(dims[0]), boolArg(inverse), 0, 0)
		if err != nil {
			return kissfft.NullPtr, err
		}
		return kissfft.Ptr(api.DecodeU32(res)), nil
	}

	buf, err := e.malloc(uint32(4 * len(dims)))
	if err != nil {
		return kissfft.NullPtr, err
	}
	if !buf.Valid() {
		return kissfft.NullPtr, nil
	}
	defer func() {
		if ferr := e.free(buf); ferr != nil {
			e.logger.Warn("failed to free dims buffer", zap.Stringer("ptr", buf), zap.Error(ferr))
		}
	}()
	for i, d := range dims {
		if !e.mem.WriteUint32Le(uint32(buf)+uint32(4*i), uint32(d)) {
			return kissfft.NullPtr, errors.New(errors.PhasePlan, errors.KindTrap).
				Op(name).Detail("dims write out of bounds at %s", buf).Build()
		}
	}
	res, err := e.call(errors.PhasePlan, name, uint64(buf), uint64(len(dims)), boolArg(inverse), 0, 0)
	if err != nil {
		return kissfft.NullPtr, err
	}
	return kissfft.Ptr(api.DecodeU32(res)), nil
}

// Compute runs plan from in to out. Buffers must be sized for the kind.
func (e *Engine) Compute(kind kissfft.Kind, inverse bool, plan, in, out kissfft.Ptr) error {
	if !plan.Valid() || !in.Valid() || !out.Valid() {
		return errors.InvalidArgument("Compute", "null pointer (plan %s, in %s, out %s)", plan, in, out)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.call(errors.PhaseCompute, computeExport(kind, inverse),
		uint64(plan), uint64(in), uint64(out))
	return err
}

// Cleanup asks the guest to drop cached state. The guest only resets its
// heap when nothing is live.
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.call(errors.PhaseCleanup, guest.ExportCleanup)
	return err
}

// NextFastSize returns the smallest size >= n with only 2, 3 and 5 as factors.
func (e *Engine) NextFastSize(n int) (int, error) {
	if n > math.MaxInt32 {
		return 0, errors.InvalidArgument("NextFastSize", "%d out of range", n)
	}
	if n < 1 {
		n = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.call(errors.PhasePlan, guest.ExportNextFastSize, uint64(n))
	if err != nil {
		return 0, err
	}
	return int(api.DecodeU32(res)), nil
}

// Memory returns a view of guest linear memory.
func (e *Engine) Memory() *Memory {
	return &Memory{e: e}
}

// Stats reads the guest heap globals.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{Variant: e.variant}
	if e.closed {
		return s
	}
	if g := e.module.ExportedGlobal(guest.ExportLiveBlocks); g != nil {
		s.LiveBlocks = api.DecodeU32(g.Get())
	}
	if g := e.module.ExportedGlobal(guest.ExportHeapTop); g != nil {
		s.HeapTop = api.DecodeU32(g.Get())
	}
	s.MemoryBytes = e.mem.Size()
	return s
}

// Close tears down the wazero runtime. Later calls fail with
// engine_unavailable.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.funcs = nil
	return e.runtime.Close(ctx)
}
