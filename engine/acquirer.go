package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/guest"
	"github.com/wippyai/kissfft/loader"
	"github.com/wippyai/kissfft/probe"
)

// Preference selects which engine variants acquisition may try.
type Preference uint8

const (
	// Auto probes for SIMD and falls back to the baseline engine.
	Auto Preference = iota
	// ForceSIMD skips the probe and tries SIMD first, then baseline.
	ForceSIMD
	// ForceBaseline never attempts the SIMD engine.
	ForceBaseline
)

func (p Preference) String() string {
	switch p {
	case Auto:
		return "auto"
	case ForceSIMD:
		return "simd"
	case ForceBaseline:
		return "baseline"
	default:
		return fmt.Sprintf("preference(%d)", uint8(p))
	}
}

// ParsePreference parses "auto", "simd" or "baseline". The empty string is Auto.
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "simd":
		return ForceSIMD, nil
	case "baseline", "scalar":
		return ForceBaseline, nil
	default:
		return Auto, errors.InvalidArgument("ParsePreference", "unknown engine preference %q", s)
	}
}

// Config holds configuration for engine acquisition.
type Config struct {
	// Resolver provides engine binaries. Nil uses the embedded engine.
	Resolver loader.Resolver

	// Logger overrides the package logger.
	Logger *zap.Logger

	// Features sets the wazero core features. 0 means api.CoreFeaturesV2.
	// Clearing api.CoreFeatureSIMD models a runtime without SIMD.
	Features api.CoreFeatures

	// AcquireTimeout bounds a single Get call. 0 means no timeout.
	AcquireTimeout time.Duration

	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	Preference Preference

	// Interpreter selects the wazero interpreter instead of the compiler.
	Interpreter bool
}

// Acquirer lazily instantiates one Engine and hands the same instance to
// every caller. Failed attempts are not remembered.
type Acquirer struct {
	cfg      Config
	resolver loader.Resolver
	detector *probe.Detector
	logger   *zap.Logger

	mu  sync.Mutex
	eng *Engine
}

// NewAcquirer creates an acquirer. Nothing is loaded until Get.
func NewAcquirer(cfg Config) *Acquirer {
	a := &Acquirer{cfg: cfg, resolver: cfg.Resolver, logger: cfg.Logger}
	if a.resolver == nil {
		a.resolver = loader.Embedded{}
	}
	if a.logger == nil {
		a.logger = Logger()
	}
	features := cfg.Features
	if features == 0 {
		features = api.CoreFeaturesV2
	}
	a.cfg.Features = features
	a.detector = probe.New(features, probe.WithLogger(a.logger))
	return a
}

// Candidates returns the variants Get will try, in order.
func (a *Acquirer) Candidates(ctx context.Context) []guest.Variant {
	switch a.cfg.Preference {
	case ForceBaseline:
		return []guest.Variant{guest.Baseline}
	case ForceSIMD:
		return []guest.Variant{guest.SIMD, guest.Baseline}
	default:
		if a.detector.Supported(ctx) {
			return []guest.Variant{guest.SIMD, guest.Baseline}
		}
		return []guest.Variant{guest.Baseline}
	}
}

// Get returns the shared engine, instantiating it on first success.
func (a *Acquirer) Get(ctx context.Context) (*Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.eng != nil {
		return a.eng, nil
	}

	if a.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.AcquireTimeout)
		defer cancel()
	}

	opts := runtimeOptions{
		features:         a.cfg.Features,
		memoryLimitPages: a.cfg.MemoryLimitPages,
		interpreter:      a.cfg.Interpreter,
	}

	candidates := a.Candidates(ctx)
	var (
		causes  []error
		lastErr error
	)
	for _, v := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, errors.EngineUnavailable("acquisition canceled", err)
		}
		start := time.Now()
		eng, err := a.load(ctx, v, opts)
		if err != nil {
			a.logger.Warn("engine variant unavailable",
				zap.Stringer("variant", v),
				zap.Error(err))
			causes = append(causes, fmt.Errorf("%s: %w", v, err))
			lastErr = err
			continue
		}
		a.logger.Info("engine acquired",
			zap.Stringer("variant", v),
			zap.Stringer("preference", a.cfg.Preference),
			zap.Duration("took", time.Since(start)))
		a.eng = eng
		return eng, nil
	}

	if errors.IsKind(lastErr, errors.KindAssetNotFound) {
		return nil, lastErr
	}
	names := make([]string, len(candidates))
	for i, v := range candidates {
		names[i] = v.String()
	}
	return nil, errors.EngineUnavailable(
		fmt.Sprintf("no engine variant could be instantiated (tried %s)", strings.Join(names, ", ")),
		stderrors.Join(causes...))
}

func (a *Acquirer) load(ctx context.Context, v guest.Variant, opts runtimeOptions) (*Engine, error) {
	bin, err := a.resolver.Resolve(ctx, v)
	if err != nil {
		return nil, err
	}
	if len(bin) == 0 {
		return nil, fmt.Errorf("%s engine binary is empty", v)
	}
	return instantiate(ctx, v, bin, opts, a.logger)
}

// Loaded returns the engine if Get has succeeded, or nil.
func (a *Acquirer) Loaded() *Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eng
}

// Close releases the engine. A later Get instantiates a new one.
func (a *Acquirer) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.eng == nil {
		return nil
	}
	err := a.eng.Close(ctx)
	a.eng = nil
	return err
}
