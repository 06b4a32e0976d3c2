package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forgeci/internal/config"
	"forgeci/internal/pipeline"
	"forgeci/internal/runtime"
)

// State tracks a service through its lifecycle:
// Declared -> Starting -> (Ready | Unready) -> Stopped.
type State string

const (
	StateDeclared State = "declared"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateUnready  State = "unready"
	StateStopped  State = "stopped"
)

// Handle is the runtime identity of a started service. Owned exclusively by
// the Supervisor for the lifetime of the run.
type Handle struct {
	ID    string
	Spec  config.Service
	Env   []string
	State State
}

// Supervisor starts declared services, gates on their readiness probes and
// guarantees a matching stop for everything it started.
type Supervisor struct {
	runtime runtime.Runtime
	logger  zerolog.Logger

	// sleep is replaceable so readiness polling can be tested without
	// real time passing.
	sleep func(context.Context, time.Duration) error

	mu      sync.Mutex
	started []*Handle
}

func NewSupervisor(rt runtime.Runtime, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		runtime: rt,
		logger:  logger.With().Str("component", "supervisor").Logger(),
		sleep:   sleepContext,
	}
}

// Up starts every declared service and waits for its probe to pass. On any
// failure the services started so far stay registered, so a following Down
// still tears them down.
func (s *Supervisor) Up(ctx context.Context, services []pipeline.ResolvedService) ([]pipeline.Endpoint, error) {
	endpoints := make([]pipeline.Endpoint, 0, len(services))
	for _, rs := range services {
		handle, err := s.Start(ctx, rs)
		if err != nil {
			return nil, err
		}
		if err := s.AwaitReady(ctx, handle); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, pipeline.Endpoint{
			Name:      rs.Spec.Name,
			EnvPrefix: rs.Spec.EnvPrefix,
			Host:      "127.0.0.1",
			Port:      rs.Spec.Port.Host,
		})
	}
	return endpoints, nil
}

// Start brings one service container up and registers it for teardown.
func (s *Supervisor) Start(ctx context.Context, rs pipeline.ResolvedService) (*Handle, error) {
	handle := &Handle{Spec: rs.Spec, Env: rs.Env, State: StateStarting}

	id, err := s.runtime.StartService(ctx, rs.Spec, rs.Env)
	if err != nil {
		return nil, fmt.Errorf("service %s failed to start: %w", rs.Spec.Name, err)
	}
	handle.ID = id

	s.mu.Lock()
	s.started = append(s.started, handle)
	s.mu.Unlock()

	return handle, nil
}

// AwaitReady polls the service's probe at its configured interval, each
// attempt bounded by the probe timeout, until it passes or the retry budget
// is exhausted.
func (s *Supervisor) AwaitReady(ctx context.Context, handle *Handle) error {
	probe := handle.Spec.Probe
	var lastErr error

	for attempt := 1; attempt <= probe.Retries; attempt++ {
		lastErr = s.probeOnce(ctx, handle)
		if lastErr == nil {
			handle.State = StateReady
			s.logger.Info().
				Str("service", handle.Spec.Name).
				Int("attempt", attempt).
				Msg("Service ready")
			return nil
		}

		s.logger.Debug().
			Err(lastErr).
			Str("service", handle.Spec.Name).
			Int("attempt", attempt).
			Int("retries", probe.Retries).
			Msg("Readiness probe failed")

		if attempt < probe.Retries {
			if err := s.sleep(ctx, probe.Interval.Value()); err != nil {
				handle.State = StateUnready
				return fmt.Errorf("service %s readiness wait interrupted: %w", handle.Spec.Name, err)
			}
		}
	}

	handle.State = StateUnready
	return fmt.Errorf("service %s not ready after %d attempts: %w", handle.Spec.Name, probe.Retries, lastErr)
}

func (s *Supervisor) probeOnce(ctx context.Context, handle *Handle) error {
	probe := handle.Spec.Probe
	attemptCtx, cancel := context.WithTimeout(ctx, probe.Timeout.Value())
	defer cancel()

	switch probe.Type {
	case config.ProbeTypePostgres:
		return runtime.PostgresPing(
			attemptCtx,
			"127.0.0.1",
			handle.Spec.Port.Host,
			envValue(handle.Env, "POSTGRES_USER", "postgres"),
			envValue(handle.Env, "POSTGRES_PASSWORD", ""),
			envValue(handle.Env, "POSTGRES_DB", "postgres"),
		)
	default:
		return s.runtime.Probe(attemptCtx, handle.ID, probe.Command)
	}
}

// Stop tears one service down. Failures are logged and never escalated; a
// teardown problem must not mask the run's verdict.
func (s *Supervisor) Stop(ctx context.Context, handle *Handle) {
	if handle.State == StateStopped {
		return
	}
	if err := s.runtime.StopService(ctx, handle.ID); err != nil {
		s.logger.Warn().
			Err(err).
			Str("service", handle.Spec.Name).
			Msg("Service teardown failed")
	}
	handle.State = StateStopped
}

// Down stops every started service in reverse start order. Safe to call more
// than once.
func (s *Supervisor) Down(ctx context.Context) {
	s.mu.Lock()
	handles := s.started
	s.started = nil
	s.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		s.Stop(ctx, handles[i])
	}
}

func envValue(env []string, key, fallback string) string {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix)
		}
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
