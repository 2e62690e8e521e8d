package guest

// Export names of the engine module. They follow the KISS FFT C API.
const (
	ExportMemory = "memory"

	ExportMalloc = "malloc"
	ExportFree   = "free"

	ExportFFTAlloc   = "kiss_fft_alloc"
	ExportFFT        = "kiss_fft"
	ExportFFTRAlloc  = "kiss_fftr_alloc"
	ExportFFTR       = "kiss_fftr"
	ExportFFTRI      = "kiss_fftri"
	ExportFFTNDAlloc = "kiss_fftnd_alloc"
	ExportFFTND      = "kiss_fftnd"
	ExportNDRAlloc   = "kiss_fftndr_alloc"
	ExportFFTNDR     = "kiss_fftndr"
	ExportFFTNDRI    = "kiss_fftndri"

	ExportCleanup      = "kiss_fft_cleanup"
	ExportNextFastSize = "kiss_fft_next_fast_size"

	// Diagnostics globals.
	ExportLiveBlocks = "live_blocks"
	ExportHeapTop    = "heap_top"
)

// Host imports required by the engine module.
const (
	ImportModule = "env"
	ImportCos    = "cos"
	ImportSin    = "sin"
)

// RequiredFuncs lists every function export the host binds.
var RequiredFuncs = []string{
	ExportMalloc, ExportFree,
	ExportFFTAlloc, ExportFFT,
	ExportFFTRAlloc, ExportFFTR, ExportFFTRI,
	ExportFFTNDAlloc, ExportFFTND,
	ExportNDRAlloc, ExportFFTNDR, ExportFFTNDRI,
	ExportCleanup, ExportNextFastSize,
}

// Layout constants of the guest heap.
const (
	// HeapBase is the first byte managed by the guest allocator.
	HeapBase = 1024
	// BlockHeader is the per-allocation header size in bytes.
	BlockHeader = 8
	// MaxDims bounds the number of dimensions a plan accepts.
	MaxDims = 16
	// MaxElements bounds the element count of a single plan.
	MaxElements = 1 << 24

	dimsSlot = 16
)
