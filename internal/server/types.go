package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"forgeci/internal/config"
	"forgeci/internal/githubauth"
	"forgeci/internal/pipeline"
	"forgeci/internal/runtime"
	"forgeci/internal/secrets"
)

// Config holds the API server settings, loaded from the environment.
type Config struct {
	Port        string
	RateLimit   int
	WorkerCount int
	QueueSize   int
}

// Server accepts pipeline submissions over HTTP and executes them on worker
// goroutines. Every run gets its own supervisor; nothing is shared between
// concurrent runs except this registry.
type Server struct {
	Router      *gin.Engine
	HTTP        *http.Server
	Logger      zerolog.Logger
	Runs        map[string]*Run
	RunMutex    sync.RWMutex
	RunQueue    chan *Run
	RateLimiter *rate.Limiter
	Secrets     secrets.Store
	Runtime     runtime.Runtime
	GitHub      *githubauth.AppAuth
	Config      *Config

	validate  *validator.Validate
	jwtSecret string
}

// RunRequest submits a pipeline for execution. The pipeline definition is
// inline YAML.
type RunRequest struct {
	Pipeline string `json:"pipeline" validate:"required"`
	Workdir  string `json:"workdir"`
}

// Run is one queued or executed pipeline run.
type Run struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	Pipeline   string           `json:"pipeline"`
	Submitted  time.Time        `json:"submitted"`
	Started    time.Time        `json:"started,omitempty"`
	Finished   time.Time        `json:"finished,omitempty"`
	Result     *pipeline.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	RetryCount int              `json:"retry_count"`

	spec    *config.Pipeline
	workdir string
}

const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)
