// Package config reads kissfft settings from the environment and builds
// the pieces the engine and CLI need from them.
package config

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/kissfft/engine"
	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/loader"
)

const defaultAcquireTimeout = 30 * time.Second

// Environment variable names.
const (
	EnvEngine           = "KISSFFT_ENGINE"
	EnvAssetDir         = "KISSFFT_ASSET_DIR"
	EnvAssetURL         = "KISSFFT_ASSET_URL"
	EnvMemoryLimitPages = "KISSFFT_MEMORY_LIMIT_PAGES"
	EnvInterpreter      = "KISSFFT_INTERPRETER"
	EnvAcquireTimeout   = "KISSFFT_ACQUIRE_TIMEOUT"
	EnvLogLevel         = "KISSFFT_LOG_LEVEL"
	EnvMetricsAddr      = "KISSFFT_METRICS_ADDR"
)

// Config holds settings loaded from environment variables.
type Config struct {
	Preference       engine.Preference
	AssetDir         string
	AssetURL         string
	MemoryLimitPages uint32
	Interpreter      bool
	AcquireTimeout   time.Duration
	LogLevel         zapcore.Level
	Development      bool
	MetricsAddr      string
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Preference:     engine.Auto,
		AcquireTimeout: defaultAcquireTimeout,
		LogLevel:       zapcore.InfoLevel,
	}
}

// Load reads configuration from environment variables. Unset variables
// keep their defaults; malformed ones are reported.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv(EnvEngine); v != "" {
		p, err := engine.ParsePreference(v)
		if err != nil {
			return cfg, envError(EnvEngine, v, err)
		}
		cfg.Preference = p
	}
	cfg.AssetDir = os.Getenv(EnvAssetDir)
	cfg.AssetURL = os.Getenv(EnvAssetURL)
	if cfg.AssetDir != "" && cfg.AssetURL != "" {
		return cfg, errors.InvalidArgument("config", "%s and %s are mutually exclusive", EnvAssetDir, EnvAssetURL)
	}

	if v := os.Getenv(EnvMemoryLimitPages); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n > 65536 {
			return cfg, envError(EnvMemoryLimitPages, v, err)
		}
		cfg.MemoryLimitPages = uint32(n)
	}
	if v := os.Getenv(EnvInterpreter); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, envError(EnvInterpreter, v, err)
		}
		cfg.Interpreter = b
	}
	if v := os.Getenv(EnvAcquireTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, envError(EnvAcquireTimeout, v, err)
		}
		cfg.AcquireTimeout = d
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel, cfg.Development = parseLogLevel(v)
	}
	cfg.MetricsAddr = os.Getenv(EnvMetricsAddr)

	return cfg, nil
}

func envError(name, value string, cause error) error {
	b := errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
		Op("config").
		Value(value).
		Detail("invalid %s=%q", name, value)
	if cause != nil {
		b = b.Cause(cause)
	}
	return b.Build()
}

// parseLogLevel maps a level name to zap. "debug" also switches to the
// development encoder. Unknown names fall back to info.
func parseLogLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, false
	case "warn", "warning":
		return zapcore.WarnLevel, false
	case "error":
		return zapcore.ErrorLevel, false
	default:
		return zapcore.InfoLevel, false
	}
}

// Resolver returns the engine binary source: a directory, a URL, or the
// embedded build.
func (c Config) Resolver() loader.Resolver {
	switch {
	case c.AssetDir != "":
		return loader.Dir{Path: c.AssetDir}
	case c.AssetURL != "":
		return loader.HTTP{BaseURL: c.AssetURL, Client: &http.Client{Timeout: c.AcquireTimeout}}
	default:
		return loader.Embedded{}
	}
}

// Engine returns the acquirer configuration.
func (c Config) Engine(logger *zap.Logger) engine.Config {
	return engine.Config{
		Resolver:         c.Resolver(),
		Logger:           logger,
		AcquireTimeout:   c.AcquireTimeout,
		MemoryLimitPages: c.MemoryLimitPages,
		Preference:       c.Preference,
		Interpreter:      c.Interpreter,
	}
}

// Logger builds a zap logger at the configured level. Debug uses the
// development config; everything else logs JSON.
func (c Config) Logger() (*zap.Logger, error) {
	var zc zap.Config
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(c.LogLevel)
	return zc.Build()
}
