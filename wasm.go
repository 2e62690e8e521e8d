package kissfft

import "strconv"

// Ptr is an offset into the engine's linear memory.
// It is never a Go pointer and never dereferenced on the host side.
type Ptr uint32

// NullPtr marks an invalid or unallocated offset.
const NullPtr Ptr = 0

// Valid reports whether p refers to a live allocation candidate.
func (p Ptr) Valid() bool {
	return p != NullPtr
}

func (p Ptr) String() string {
	return "0x" + strconv.FormatUint(uint64(p), 16)
}

// Kind identifies a transform family.
type Kind uint8

const (
	KindComplex   Kind = iota // 1-D complex
	KindReal                  // 1-D real, Hermitian-packed spectrum
	KindNDComplex             // N-D complex
	KindNDReal                // N-D real, packed along the last dimension
)

// String returns the short prefix used in plan cache keys.
func (k Kind) String() string {
	switch k {
	case KindComplex:
		return "c"
	case KindReal:
		return "r"
	case KindNDComplex:
		return "nd"
	case KindNDReal:
		return "ndr"
	default:
		return "unknown"
	}
}

// IsReal reports whether the family takes real-valued time-domain input.
func (k Kind) IsReal() bool {
	return k == KindReal || k == KindNDReal
}

// IsND reports whether the family is addressed by a shape rather than a length.
func (k Kind) IsND() bool {
	return k == KindNDComplex || k == KindNDReal
}

// Memory represents the engine's linear memory
type Memory interface {
	Read(offset Ptr, length uint32) ([]byte, error)
	Write(offset Ptr, data []byte) error
	ReadU32(offset Ptr) (uint32, error)
	WriteU32(offset Ptr, value uint32) error
	ReadF32s(offset Ptr, dst []float32) error
	WriteF32s(offset Ptr, src []float32) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory in the engine's linear memory.
// Malloc returns NullPtr with a nil error when the engine reports
// exhaustion; a non-nil error means the call itself failed (trap).
type Allocator interface {
	Malloc(size uint32) (Ptr, error)
	Free(ptr Ptr) error
}
