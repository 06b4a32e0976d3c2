package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forgeci/internal/config"
	"forgeci/internal/githubauth"
	"forgeci/internal/pipeline"
	"forgeci/internal/runtime"
	"forgeci/internal/secrets"
	"forgeci/internal/service"
	"forgeci/internal/step"
)

const (
	exitStepFailure = 1
	exitConfigError = 2
	exitDependency  = 3
)

var (
	pipelineFile string
	vaultPath    string
	secretPrefix string
	logLevel     string
)

func init() {
	flag.StringVar(&pipelineFile, "pipeline", "pipeline.yaml", "pipeline definition file")
	flag.StringVar(&vaultPath, "vault-path", "ci/pipeline", "Vault KV path holding pipeline secrets")
	flag.StringVar(&secretPrefix, "secret-env-prefix", "", "prefix for environment-sourced secrets")
	flag.StringVar(&logLevel, "log-level", "info", "logging level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if level, err := zerolog.ParseLevel(logLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	logger := log.With().Str("component", "runner").Logger()

	spec, err := config.Load(pipelineFile)
	if err != nil {
		logger.Error().Err(err).Str("file", pipelineFile).Msg("Failed to load pipeline")
		os.Exit(exitConfigError)
	}

	store := buildSecretStore(logger)
	rt := runtime.NewDockerRuntime()
	supervisor := service.NewSupervisor(rt, logger)
	runner := step.NewRunner(rt, githubauth.FromEnv())
	executor := pipeline.NewExecutor(supervisor, runner, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := executor.Run(ctx, spec)
	if err != nil {
		logger.Error().Err(err).Msg("Pipeline aborted")
		switch {
		case errors.Is(err, pipeline.ErrConfiguration):
			os.Exit(exitConfigError)
		case errors.Is(err, pipeline.ErrDependency):
			os.Exit(exitDependency)
		default:
			os.Exit(exitStepFailure)
		}
	}

	for i, sr := range result.Steps {
		logger.Info().
			Int("index", i).
			Str("step", sr.Name).
			Str("status", string(sr.Status)).
			Dur("duration", sr.Duration).
			Msg("Step result")
	}

	if !result.Success() {
		failed := result.Steps[result.FailedIndex]
		logger.Error().
			Int("failed_index", result.FailedIndex).
			Str("failed_step", failed.Name).
			Str("error", failed.Error).
			Msg("Pipeline failed")
		os.Exit(exitStepFailure)
	}

	logger.Info().Str("pipeline", spec.Name).Msg("Pipeline succeeded")
}

// buildSecretStore prefers Vault and falls back to the process environment
// when Vault is not reachable or configured.
func buildSecretStore(logger zerolog.Logger) secrets.Store {
	envStore := &secrets.EnvStore{Prefix: secretPrefix}

	vaultStore, err := secrets.NewVaultStore(vaultPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Vault client, falling back to environment variables")
		return envStore
	}
	return secrets.Chain{vaultStore, envStore}
}
