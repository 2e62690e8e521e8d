package fft

import (
	"reflect"
	"testing"

	"github.com/wippyai/kissfft/errors"
)

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"16", []int{16}, false},
		{"4x4", []int{4, 4}, false},
		{"2,3,8", []int{2, 3, 8}, false},
		{" 8 X 8 ", []int{8, 8}, false},
		{"", nil, true},
		{"x", nil, true},
		{"4x0", nil, true},
		{"-4", nil, true},
		{"4.5", nil, true},
		{"4xa", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShape(tt.in)
			if tt.wantErr {
				if !errors.IsKind(err, errors.KindInvalidArgument) {
					t.Errorf("expected invalid_argument, got %v", err)
				}
				return
			}
			if err != nil || !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseShape(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestPadEven(t *testing.T) {
	even := []float32{1, 2}
	if got := PadEven(even); &got[0] != &even[0] {
		t.Error("even input should be returned unchanged")
	}
	got := PadEven([]float32{1, 2, 3})
	if !reflect.DeepEqual(got, []float32{1, 2, 3, 0}) {
		t.Errorf("PadEven = %v", got)
	}
	if got := PadEven(nil); len(got) != 0 {
		t.Errorf("PadEven(nil) = %v", got)
	}
}

func TestPackedLen(t *testing.T) {
	tests := []struct {
		shape []int
		want  int
	}{
		{[]int{16}, 18},
		{[]int{4, 4}, 24},
		{[]int{2, 3, 8}, 48 + 12},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := PackedLen(tt.shape); got != tt.want {
			t.Errorf("PackedLen(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestNorm(t *testing.T) {
	tests := []struct {
		norm     Norm
		fwd, inv float32
	}{
		{NormBackward, 1, 0.25},
		{NormOrtho, 0.5, 0.5},
		{NormNone, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.norm.String(), func(t *testing.T) {
			fwd, inv := tt.norm.scales(4)
			if fwd != tt.fwd || inv != tt.inv {
				t.Errorf("scales(4) = %v, %v", fwd, inv)
			}
			parsed, err := ParseNorm(tt.norm.String())
			if err != nil || parsed != tt.norm {
				t.Errorf("ParseNorm(%q) = %v, %v", tt.norm, parsed, err)
			}
		})
	}
	if _, err := ParseNorm("forward"); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("ParseNorm(forward) error = %v, want invalid_argument", err)
	}
}
