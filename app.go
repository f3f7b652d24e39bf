package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"promptbatch/core"
	"promptbatch/logging"
	"promptbatch/wildcard"
)

// app holds what every command shares once flags are parsed.
type app struct {
	envFile     string
	wildcardDir string
	backend     string
	logLevel    string

	cfg    *core.Config
	logger *logging.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "promptbatch",
		Short: "Expand wildcard prompt templates and batch them through an image generator",
		Long: `promptbatch resolves prompt templates containing __wildcard__ references
and {a|b|c} variant groups, queues the resulting prompts and submits them to
an image generation backend with retries.

Configuration comes from the environment, optionally loaded from a .env file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "environment file to load")
	flags.StringVar(&a.wildcardDir, "wildcard-dir", "", "wildcard directory (overrides WILDCARD_DIR)")
	flags.StringVar(&a.backend, "backend", "", "image backend: webui, openai, sd or null (overrides BACKEND)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(
		newRunCmd(a),
		newPreviewCmd(a),
		newWildcardsCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads the environment and configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	envErr := godotenv.Load(a.envFile)
	if envErr != nil && cmd.Flags().Changed("env-file") {
		return core.ErrEnvFileMissing(a.envFile)
	}

	for env, value := range map[string]string{
		"WILDCARD_DIR": a.wildcardDir,
		"BACKEND":      a.backend,
		"LOG_LEVEL":    a.logLevel,
	} {
		if value != "" {
			if err := os.Setenv(env, value); err != nil {
				return fmt.Errorf("failed to set %s: %w", env, err)
			}
		}
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := logging.ParseLogLevelString(cfg.LogLevel, zapcore.InfoLevel)
	logger, err := logging.NewWithConfig(logging.Config{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Level:       &level,
		File:        logging.DefaultFileWriterConfig(),
		Console:     zapcore.AddSync(cmd.ErrOrStderr()),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	if envErr != nil {
		logger.Debug("No environment file loaded", zap.String("path", a.envFile))
	}
	logger.Debug("Configuration loaded", zap.Stringer("config", cfg))
	return nil
}

// resolver loads the wildcard directory.
func (a *app) resolver() (*wildcard.Resolver, error) {
	store, err := wildcard.Load(a.cfg.WildcardDir)
	if err != nil {
		return nil, core.ErrWildcardDir(a.cfg.WildcardDir, err)
	}
	return wildcard.NewResolver(store,
		wildcard.WithMaxDepth(a.cfg.MaxRecursionDepth),
		wildcard.WithMaxCombinations(a.cfg.MaxCombinations),
	), nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
