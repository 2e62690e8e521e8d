// Package fft is the caller-facing API: transform sessions over a shared
// engine, plan cache and arena.
//
// # Quick Start
//
//	fctx, err := fft.New(ctx)
//	if err != nil {
//	    return err
//	}
//	defer fctx.Close(ctx)
//
//	s, err := fctx.NewReal(1024)
//	if err != nil {
//	    return err
//	}
//	defer s.Dispose()
//
//	spectrum, err := s.Forward(samples, nil) // len 1026: 513 complex bins
//	restored, err := s.Inverse(spectrum, nil)
//
// # Families
//
//	NewComplex(n)      time 2n floats, spectrum 2n floats
//	NewReal(n)         time n floats (n even), spectrum n+2 floats
//	NewND(shape)       time 2T floats, spectrum 2T floats
//	NewNDReal(shape)   time T floats (last dim even), spectrum T+2*(T/last) floats
//
// Complex data is interleaved (re, im). N-D data is row-major; real N-D
// spectra keep last/2+1 bins per row.
//
// # Lifecycle
//
// A session acquires a plan pair from the plan cache and then allocates
// its two buffers in one all-or-nothing step. Dispose frees both buffers
// and releases the plan pair; it is idempotent, and every later Forward
// or Inverse fails with use_after_dispose. Context.Cleanup frees all
// cached plans at once; sessions that still referenced them fail the same
// way, but must still be disposed to free their buffers.
//
// # Normalization
//
// NormBackward (default) scales inverse results by 1/T. NormOrtho scales
// both directions by 1/sqrt(T). NormNone returns raw engine output.
package fft
