package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forgeci/internal/githubauth"
	"forgeci/internal/runtime"
	"forgeci/internal/secrets"
	"forgeci/internal/server"
)

var vaultPath string

func init() {
	flag.StringVar(&vaultPath, "vault-path", "ci/pipeline", "Vault KV path holding pipeline secrets")
}

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	logger := log.With().Str("component", "main").Logger()

	var store secrets.Store
	vaultStore, err := secrets.NewVaultStore(vaultPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Vault client, falling back to environment variables")
		store = &secrets.EnvStore{}
	} else {
		store = secrets.Chain{vaultStore, &secrets.EnvStore{}}
	}

	srv, err := server.New(store, runtime.NewDockerRuntime(), githubauth.FromEnv(), server.ConfigFromEnv())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create server")
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal().Err(err).Msg("Server failed")

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
		if err := srv.Stop(); err != nil {
			logger.Error().Err(err).Msg("Could not stop server gracefully")
			os.Exit(1)
		}
	}
}
