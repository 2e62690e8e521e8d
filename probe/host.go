package probe

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Host lists the vector extensions of the host CPU that the compiler
// backend can map v128 instructions onto. Diagnostic only.
func Host() []string {
	var feats []string
	switch runtime.GOARCH {
	case "amd64", "386":
		for _, f := range []struct {
			name string
			on   bool
		}{
			{"sse2", cpu.X86.HasSSE2},
			{"sse3", cpu.X86.HasSSE3},
			{"ssse3", cpu.X86.HasSSSE3},
			{"sse4.1", cpu.X86.HasSSE41},
			{"sse4.2", cpu.X86.HasSSE42},
			{"avx", cpu.X86.HasAVX},
			{"avx2", cpu.X86.HasAVX2},
		} {
			if f.on {
				feats = append(feats, f.name)
			}
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			feats = append(feats, "asimd")
		}
		if cpu.ARM64.HasFP {
			feats = append(feats, "fp")
		}
	}
	return feats
}
