package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"forgeci/internal/config"
	"forgeci/internal/secrets"
)

// ResolvedService pairs a service declaration with its fully resolved
// container environment.
type ResolvedService struct {
	Spec config.Service
	Env  []string
}

// ServiceManager brings auxiliary services up before steps run and guarantees
// teardown of everything it started.
type ServiceManager interface {
	// Up starts every service and waits for readiness. On error, services
	// started so far remain registered for Down.
	Up(ctx context.Context, services []ResolvedService) ([]Endpoint, error)

	// Down stops all started services. Best-effort; never fails the run.
	Down(ctx context.Context)
}

// RunOutput is what a step runner reports back for one step.
type RunOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// StepRunner executes a single step with a materialized environment.
type StepRunner interface {
	Run(ctx context.Context, step config.Step, env *Env, workdir string) RunOutput
}

// Executor owns the ordered step list and drives one pipeline run end to end.
type Executor struct {
	Services ServiceManager
	Steps    StepRunner
	Secrets  secrets.Store
	Logger   zerolog.Logger
}

func NewExecutor(services ServiceManager, steps StepRunner, store secrets.Store, logger zerolog.Logger) *Executor {
	return &Executor{
		Services: services,
		Steps:    steps,
		Secrets:  store,
		Logger:   logger.With().Str("component", "executor").Logger(),
	}
}

// Run validates the pipeline, brings services up, executes steps in order
// with fail-fast semantics, and tears services down on every exit path.
// The returned error is non-nil only for the fatal pre-step categories
// (ErrConfiguration, ErrDependency); a step failure is reported through the
// Result verdict.
func (e *Executor) Run(ctx context.Context, p *config.Pipeline) (*Result, error) {
	started := time.Now()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	mat := &Materializer{Secrets: e.Secrets}
	if err := mat.Verify(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	resolved := make([]ResolvedService, 0, len(p.Services))
	for _, svc := range p.Services {
		env, err := mat.ResolveMap(ctx, svc.Env)
		if err != nil {
			return nil, fmt.Errorf("%w: service %s: %v", ErrConfiguration, svc.Name, err)
		}
		resolved = append(resolved, ResolvedService{Spec: svc, Env: env})
	}

	// Whatever Up manages to start must be stopped, on success, step
	// failure, dependency failure and cancellation alike.
	teardownCtx := context.WithoutCancel(ctx)
	defer e.Services.Down(teardownCtx)

	endpoints, err := e.Services.Up(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	results := make([]StepResult, len(p.Steps))
	for i, step := range p.Steps {
		results[i] = StepResult{Name: step.Name, Status: StepPending}
	}

	failedIndex := -1
	for i, step := range p.Steps {
		if failedIndex >= 0 {
			results[i].Status = StepSkipped
			continue
		}

		stepLogger := e.Logger.With().
			Str("pipeline", p.Name).
			Str("step", step.Name).
			Int("index", i).
			Logger()

		env, err := mat.Materialize(ctx, p, step, endpoints)
		if err != nil {
			stepLogger.Error().Err(err).Msg("Environment materialization failed")
			results[i].Status = StepFailed
			results[i].Error = err.Error()
			failedIndex = i
			continue
		}

		stepLogger.Info().Msg("Step started")
		results[i].Status = StepRunning
		stepStart := time.Now()

		out := e.Steps.Run(ctx, step, env, p.Workdir)

		results[i].Duration = time.Since(stepStart)
		results[i].ExitCode = out.ExitCode
		results[i].Stdout = out.Stdout
		results[i].Stderr = out.Stderr

		if out.Err != nil {
			results[i].Status = StepFailed
			results[i].Error = out.Err.Error()
			failedIndex = i
			stepLogger.Error().
				Err(out.Err).
				Int("exit_code", out.ExitCode).
				Dur("duration", results[i].Duration).
				Msg("Step failed")
			continue
		}

		results[i].Status = StepSucceeded
		stepLogger.Info().
			Dur("duration", results[i].Duration).
			Msg("Step completed")
	}

	result := &Result{
		Pipeline:    p.Name,
		Steps:       results,
		FailedIndex: failedIndex,
		Duration:    time.Since(started),
	}
	if failedIndex >= 0 {
		result.Verdict = VerdictFailure
	} else {
		result.Verdict = VerdictSuccess
	}

	e.Logger.Info().
		Str("pipeline", p.Name).
		Str("verdict", result.Verdict).
		Int("steps", len(results)).
		Dur("duration", result.Duration).
		Msg("Pipeline finished")

	return result, nil
}
