package probe

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero/api"
)

func TestDetector(t *testing.T) {
	tests := []struct {
		name     string
		features api.CoreFeatures
		want     bool
	}{
		{"v2", api.CoreFeaturesV2, true},
		{"v2 without simd", api.CoreFeaturesV2 &^ api.CoreFeatureSIMD, false},
		{"v1", api.CoreFeaturesV1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.features)
			if got := d.Supported(context.Background()); got != tt.want {
				t.Errorf("Supported() = %v, want %v (err %v)", got, tt.want, d.Err())
			}
			if !tt.want && d.Err() == nil {
				t.Error("expected a recorded reason for the negative result")
			}
		})
	}
}

func TestDetector_Memoized(t *testing.T) {
	d := New(api.CoreFeaturesV2 &^ api.CoreFeatureSIMD)
	first := d.Supported(context.Background())

	// A changed feature set after the first call must not change the answer.
	d.features = api.CoreFeaturesV2
	if got := d.Supported(context.Background()); got != first {
		t.Errorf("second call = %v, first = %v", got, first)
	}
}

func TestDetector_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !New(api.CoreFeaturesV2).Supported(ctx) {
		t.Error("canceled context should not affect the probe")
	}
}

func TestDefault(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() should return the same detector")
	}
	if !Supported(context.Background()) {
		t.Error("default runtime should support SIMD")
	}
}

func TestHost(t *testing.T) {
	// Host never fails; on unknown architectures it is simply empty.
	for _, f := range Host() {
		if f == "" {
			t.Error("empty feature name")
		}
	}
}
