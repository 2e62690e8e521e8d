// Package engine hosts the KISS FFT WebAssembly module on wazero.
//
// # Acquisition
//
// An Acquirer owns at most one Engine. Get resolves the engine binary for
// each candidate variant and instantiates the first that works:
//
//	Auto          probe SIMD, then [simd, baseline] or [baseline]
//	ForceSIMD     [simd, baseline], no probe
//	ForceBaseline [baseline]
//
// A failed variant is logged and the next is tried. When every candidate
// fails, Get returns asset_not_found if the last candidate's binary was
// missing, and engine_unavailable with every cause joined otherwise.
// Failures are not cached; a later Get tries again.
//
// # Engine
//
// Engine exposes the guest exports as typed methods:
//
//	Malloc/Free       guest heap
//	AllocPlan         kiss_fft_alloc, kiss_fftr_alloc, kiss_fftnd_alloc, kiss_fftndr_alloc
//	Compute           kiss_fft, kiss_fftr, kiss_fftri, kiss_fftnd, kiss_fftndr, kiss_fftndri
//	Cleanup           kiss_fft_cleanup
//	NextFastSize      kiss_fft_next_fast_size
//
// Offsets are kissfft.Ptr values. A NullPtr result with a nil error means
// the guest refused the request (heap exhausted or invalid plan); a
// non-nil error means the call trapped.
//
// # Thread Safety
//
// One mutex serializes every guest call and every Memory access. Guest
// calls run on a context detached from the acquisition context, so a
// canceled request cannot abort a half-finished transform.
package engine
