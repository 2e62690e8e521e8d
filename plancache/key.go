package plancache

import (
	"fmt"
	"strconv"
	"strings"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/guest"
)

// MaxDims is the most dimensions a Key can hold.
const MaxDims = guest.MaxDims

// Key identifies a plan pair by transform family and dimensions.
// Keys are comparable and immutable.
type Key struct {
	kind kissfft.Kind
	n    int
	dims [MaxDims]int
	name string // canonical "4x4" form
}

// NewKey builds the canonical key for kind and dims. It panics if dims has
// more than MaxDims entries; callers validate shapes first.
func NewKey(kind kissfft.Kind, dims []int) Key {
	if len(dims) > MaxDims {
		panic(fmt.Sprintf("plancache: %d dimensions exceeds maximum %d", len(dims), MaxDims))
	}
	k := Key{kind: kind, n: len(dims)}
	copy(k.dims[:], dims)
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	k.name = strings.Join(parts, "x")
	return k
}

// Kind returns the transform family.
func (k Key) Kind() kissfft.Kind {
	return k.kind
}

// Dims returns a fresh copy of the dimensions.
func (k Key) Dims() []int {
	if k.n == 0 {
		return nil
	}
	return append([]int(nil), k.dims[:k.n]...)
}

// Size returns the product of the dimensions.
func (k Key) Size() int {
	n := 1
	for _, d := range k.dims[:k.n] {
		n *= d
	}
	return n
}

// String renders the key as "c:16", "r:1024", "nd:4x4" or "ndr:8x8".
func (k Key) String() string {
	return k.kind.String() + ":" + k.name
}
