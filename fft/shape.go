package fft

import (
	"strconv"
	"strings"

	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/guest"
)

// MaxElements is the largest element count a single session accepts.
const MaxElements = guest.MaxElements

// MaxDims is the largest number of dimensions a session accepts.
const MaxDims = guest.MaxDims

// LargeNDThreshold is the element count from which an N-D session logs a
// warning, once per shape.
const LargeNDThreshold = 1_000_000

// ParseShape parses "16", "4x4" or "2,3,8" into dimensions. Every
// dimension must be a positive integer.
func ParseShape(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.InvalidArgument("ParseShape", "empty shape")
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == 'x' || r == 'X' || r == ',' || r == '*' || r == ' '
	})
	if len(fields) == 0 {
		return nil, errors.InvalidArgument("ParseShape", "empty shape %q", s)
	}
	shape := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.InvalidArgument("ParseShape", "dimension %q is not an integer", f)
		}
		if n < 1 {
			return nil, errors.InvalidArgument("ParseShape", "dimension %d must be positive", n)
		}
		shape[i] = n
	}
	return shape, nil
}

// PadEven returns x unchanged when its length is even, otherwise a copy
// with one trailing zero. Real sessions reject odd lengths; callers that
// accept the spectral change pad explicitly.
func PadEven(x []float32) []float32 {
	if len(x)%2 == 0 {
		return x
	}
	out := make([]float32, len(x)+1)
	copy(out, x)
	return out
}

// PackedLen returns the float32 length of the Hermitian-packed spectrum of
// a real transform over shape: T + 2*(T/last).
func PackedLen(shape []int) int {
	total := product(shape)
	if total == 0 {
		return 0
	}
	return total + 2*(total/shape[len(shape)-1])
}

func product(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// validateShape checks dims for kind and returns the element count.
func validateShape(op string, realLast bool, shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, errors.InvalidArgument(op, "shape must not be empty")
	}
	if len(shape) > MaxDims {
		return 0, errors.InvalidArgument(op, "%d dimensions exceeds maximum %d", len(shape), MaxDims)
	}
	total := 1
	for i, d := range shape {
		if d < 1 {
			return 0, errors.InvalidArgument(op, "dimension %d is %d, must be a positive integer", i, d)
		}
		if d > MaxElements/total {
			return 0, errors.InvalidArgument(op, "shape %v exceeds %d elements", shape, MaxElements)
		}
		total *= d
	}
	if realLast && shape[len(shape)-1]%2 != 0 {
		return 0, errors.InvalidArgument(op, "last dimension %d must be even for real transforms", shape[len(shape)-1])
	}
	return total, nil
}
