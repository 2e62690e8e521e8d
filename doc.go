// Package kissfft hosts a KISS-FFT WebAssembly engine and manages every
// resource it owns inside the engine's linear memory.
//
// The transform math runs inside the guest module. This library decides
// which binary variant to run, allocates and frees guest buffers, shares
// plan configurations between sessions of identical shape, and makes sure
// each foreign offset is freed exactly once.
//
// # Architecture Overview
//
//	kissfft/          Root package with Ptr, Kind, Memory and Allocator
//	├── fft/          Sessions, factories, cache stats and cleanup
//	├── plancache/    Reference-counted forward/inverse plan pairs
//	├── arena/        Labeled, all-or-nothing guest allocations
//	├── engine/       wazero integration, entry points, acquisition
//	├── loader/       Where engine bytes come from (embedded, dir, HTTP)
//	├── probe/        SIMD capability detection
//	├── guest/        The engine module itself, assembled in Go
//	├── metrics/      Prometheus collectors
//	├── config/       Environment configuration and logger setup
//	├── errors/       Structured error types
//	└── cmd/kissfft/  CLI: transform, emit, serve and tui commands
//
// # Quick Start
//
//	fctx, err := fft.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fctx.Close(ctx)
//
//	s, err := fctx.NewComplex(1024)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Dispose()
//
//	spectrum, err := s.Forward(signal, nil) // len(signal) == 2*1024
//
// # Data Layout
//
// Complex data is interleaved float32 [re0, im0, re1, im1, ...]. Real
// transforms produce a Hermitian-packed spectrum along the last dimension:
//
//	packed = total + 2*(total/last)
//
// which is N+2 floats for a 1-D real transform of length N.
//
// # Thread Safety
//
// The engine instance is not reentrant. Every foreign call goes through one
// mutex per engine, so sessions may be used from several goroutines, but
// their computations run one at a time.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. Freed guest blocks go back
// to the guest allocator's free list and are reused by later allocations.
package kissfft
