// Package probe detects whether the WebAssembly runtime accepts SIMD code.
//
// Detection compiles a tiny canary module containing a single v128
// instruction. The answer is computed once per Detector and never changes.
package probe

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/kissfft/guest"
)

// Detector memoizes a single SIMD capability check.
type Detector struct {
	features api.CoreFeatures
	logger   *zap.Logger

	once      sync.Once
	supported bool
	err       error
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used to report the probe result.
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a detector that compiles the canary against features.
func New(features api.CoreFeatures, opts ...Option) *Detector {
	d := &Detector{features: features, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Supported reports whether the canary compiles. It never fails: any
// compilation error or panic counts as "not supported".
func (d *Detector) Supported(ctx context.Context) bool {
	d.once.Do(func() {
		d.supported, d.err = d.check(ctx)
		fields := []zap.Field{zap.Bool("simd", d.supported), zap.Strings("host", Host())}
		if d.err != nil {
			fields = append(fields, zap.Error(d.err))
		}
		d.logger.Debug("simd probe", fields...)
	})
	return d.supported
}

// Err returns the reason the last probe reported false, if any.
func (d *Detector) Err() error {
	return d.err
}

func (d *Detector) check(ctx context.Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("probe panicked: %v", r)
		}
	}()

	// Cancellation must not turn a capable host into an incapable one.
	ctx = context.WithoutCancel(ctx)
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().WithCoreFeatures(d.features))
	defer r.Close(ctx)

	if _, err := r.CompileModule(ctx, guest.Canary()); err != nil {
		return false, err
	}
	return true, nil
}

var (
	defaultDetector *Detector
	defaultOnce     sync.Once
)

// Default returns the process-wide detector for api.CoreFeaturesV2.
func Default() *Detector {
	defaultOnce.Do(func() {
		defaultDetector = New(api.CoreFeaturesV2)
	})
	return defaultDetector
}

// Supported reports SIMD support using the process-wide detector.
func Supported(ctx context.Context) bool {
	return Default().Supported(ctx)
}
