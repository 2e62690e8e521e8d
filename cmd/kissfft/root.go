package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/kissfft/config"
	"github.com/wippyai/kissfft/engine"
	"github.com/wippyai/kissfft/fft"
	"github.com/wippyai/kissfft/metrics"
)

var (
	// Global flags
	engineFlag string
	assetDir   string
	assetURL   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "kissfft",
	Short: "Run FFTs on the KISS FFT WebAssembly engine",
	Long: `kissfft hosts the KISS FFT engine on wazero. It runs one-shot
transforms, writes the engine binaries for external hosting, serves
metrics and a transform endpoint, and offers an interactive explorer.

Settings come from KISSFFT_* environment variables; flags override them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&engineFlag, "engine", "", "Engine preference: auto, simd, baseline")
	rootCmd.PersistentFlags().StringVar(&assetDir, "asset-dir", "", "Load engine binaries from this directory")
	rootCmd.PersistentFlags().StringVar(&assetURL, "asset-url", "", "Fetch engine binaries from this base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if engineFlag != "" {
		if cfg.Preference, err = engine.ParsePreference(engineFlag); err != nil {
			return cfg, err
		}
	}
	if assetDir != "" {
		cfg.AssetDir, cfg.AssetURL = assetDir, ""
	}
	if assetURL != "" {
		cfg.AssetURL, cfg.AssetDir = assetURL, ""
	}
	if logLevel != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
			return cfg, fmt.Errorf("--log-level: %w", err)
		}
		cfg.LogLevel = lvl
		cfg.Development = lvl == zapcore.DebugLevel
	}
	return cfg, nil
}

// setup builds the logger and an fft.Context recording into reg.
func setup(ctx context.Context, reg prometheus.Registerer) (*fft.Context, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	engine.SetLogger(logger)

	c, err := fft.New(ctx,
		fft.WithEngineConfig(cfg.Engine(logger)),
		fft.WithLogger(logger),
		fft.WithMetrics(metrics.New(reg)))
	if err != nil {
		return nil, logger, err
	}
	return c, logger, nil
}
