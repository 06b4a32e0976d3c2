package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"forgeci/internal/config"
	"forgeci/internal/githubauth"
	"forgeci/internal/runtime"
	"forgeci/internal/secrets"
)

// ConfigFromEnv loads server settings with defaults.
func ConfigFromEnv() *Config {
	cfg := &Config{
		Port:        os.Getenv("PORT"),
		RateLimit:   intFromEnv("RATE_LIMIT_REQUESTS_PER_SECOND"),
		WorkerCount: intFromEnv("WORKER_COUNT"),
		QueueSize:   intFromEnv("QUEUE_SIZE"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 100
	}
	return cfg
}

func intFromEnv(key string) int {
	v, _ := strconv.Atoi(os.Getenv(key))
	return v
}

// New wires the server together and starts its worker pool.
func New(store secrets.Store, rt runtime.Runtime, gh *githubauth.AppAuth, cfg *Config) (*Server, error) {
	s := &Server{
		Logger:      log.With().Str("component", "server").Logger(),
		Runs:        make(map[string]*Run),
		RunQueue:    make(chan *Run, cfg.QueueSize),
		RateLimiter: rate.NewLimiter(rate.Every(time.Second), cfg.RateLimit),
		Secrets:     store,
		Runtime:     rt,
		GitHub:      gh,
		Config:      cfg,
		validate:    validator.New(),
	}

	lookupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	jwtSecret, ok, err := store.Lookup(lookupCtx, "JWT_SECRET")
	if err != nil {
		return nil, fmt.Errorf("looking up JWT_SECRET: %w", err)
	}
	if !ok {
		s.Logger.Warn().Msg("JWT_SECRET not found, API authentication disabled")
	}
	s.jwtSecret = jwtSecret

	gin.SetMode(gin.ReleaseMode)
	s.Router = gin.New()
	if err := s.Router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
		return nil, fmt.Errorf("configuring trusted proxies: %w", err)
	}
	s.registerRoutes()

	s.HTTP = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: s.Router,
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		go s.processRuns()
	}

	return s, nil
}

func (s *Server) registerRoutes() {
	r := s.Router
	r.Use(s.requestLogger())
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)

	authed := r.Group("/", s.authRequired())
	authed.POST("/api/pipelines/run", s.handleRunSubmit)
	authed.GET("/api/runs", s.handleRuns)
	authed.GET("/api/runs/:run_id", s.handleRunStatus)
	authed.POST("/api/runs/:run_id/retry", s.handleRunRetry)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.Logger.Info().
			Str("method", param.Method).
			Str("path", param.Path).
			Str("remote_addr", param.ClientIP).
			Int("status", param.StatusCode).
			Dur("latency", param.Latency).
			Str("error", param.ErrorMessage).
			Msg("HTTP request")
		return ""
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleRunSubmit(c *gin.Context) {
	reqLogger := s.Logger.With().
		Str("endpoint", "/api/pipelines/run").
		Str("remote_addr", c.ClientIP()).
		Logger()

	if !s.RateLimiter.Allow() {
		reqLogger.Warn().Msg("Rate limit exceeded")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reqLogger.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		reqLogger.Error().Err(err).Msg("Request validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spec, err := config.Parse([]byte(req.Pipeline))
	if err != nil {
		reqLogger.Error().Err(err).Msg("Invalid pipeline definition")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run := &Run{
		ID:        uuid.NewString(),
		Status:    RunStatusQueued,
		Pipeline:  spec.Name,
		Submitted: time.Now(),
		spec:      spec,
		workdir:   req.Workdir,
	}
	s.queueRun(run)

	reqLogger.Info().
		Str("run_id", run.ID).
		Str("pipeline", spec.Name).
		Msg("Run queued")

	c.JSON(http.StatusAccepted, gin.H{"status": RunStatusQueued, "run_id": run.ID})
}

func (s *Server) queueRun(run *Run) {
	s.RunMutex.Lock()
	s.Runs[run.ID] = run
	s.RunMutex.Unlock()

	s.RunQueue <- run
}

func (s *Server) handleRuns(c *gin.Context) {
	s.RunMutex.RLock()
	defer s.RunMutex.RUnlock()
	c.JSON(http.StatusOK, s.Runs)
}

func (s *Server) handleRunStatus(c *gin.Context) {
	runID := c.Param("run_id")

	s.RunMutex.RLock()
	run, exists := s.Runs[runID]
	s.RunMutex.RUnlock()

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleRunRetry(c *gin.Context) {
	runID := c.Param("run_id")

	s.RunMutex.RLock()
	orig, exists := s.Runs[runID]
	s.RunMutex.RUnlock()

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	retry := &Run{
		ID:         uuid.NewString(),
		Status:     RunStatusQueued,
		Pipeline:   orig.Pipeline,
		Submitted:  time.Now(),
		RetryCount: orig.RetryCount + 1,
		spec:       orig.spec,
		workdir:    orig.workdir,
	}
	s.queueRun(retry)

	s.Logger.Info().
		Str("run_id", retry.ID).
		Str("retry_of", runID).
		Msg("Run requeued")

	c.JSON(http.StatusAccepted, gin.H{"status": RunStatusQueued, "run_id": retry.ID, "retry_of": runID})
}

func (s *Server) Start() error {
	s.Logger.Info().Str("addr", s.HTTP.Addr).Msg("Starting server")
	return s.HTTP.ListenAndServe()
}

func (s *Server) Stop() error {
	s.Logger.Info().Msg("Stopping server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.HTTP.Shutdown(ctx)
}
