package guest

import (
	"sync"

	"github.com/wippyai/kissfft/guest/internal/asm"
)

var (
	canaryOnce  sync.Once
	canaryBytes []byte
)

// Canary returns a minimal module whose only function executes a single
// v128 instruction. It compiles only on runtimes with SIMD enabled.
func Canary() []byte {
	canaryOnce.Do(func() {
		m := asm.NewModule()
		f := m.Func(nil, nil)
		f.V128ConstF64x2(0, 0)
		f.Drop()
		m.Export("probe", f)
		canaryBytes = m.Encode()
	})
	return canaryBytes
}
