package server

import (
	"context"
	"os"
	"time"

	"forgeci/internal/pipeline"
	"forgeci/internal/service"
	"forgeci/internal/step"
)

// processRuns consumes the run queue. Each run gets an independent supervisor
// and executor so concurrent runs share no state.
func (s *Server) processRuns() {
	for run := range s.RunQueue {
		s.processRun(run)
	}
}

func (s *Server) processRun(run *Run) {
	runLogger := s.Logger.With().
		Str("run_id", run.ID).
		Str("pipeline", run.Pipeline).
		Logger()

	runLogger.Info().Msg("Starting run")

	s.RunMutex.Lock()
	run.Status = RunStatusRunning
	run.Started = time.Now()
	s.RunMutex.Unlock()

	defer func() {
		duration := time.Since(run.Started)
		runLogger.Info().
			Dur("duration", duration).
			Str("final_status", run.Status).
			Msg("Run completed")
	}()

	workdir := run.workdir
	if workdir == "" {
		tmpDir, err := os.MkdirTemp("", "forgeci-run")
		if err != nil {
			s.finishRun(run, RunStatusFailed, nil, err.Error())
			return
		}
		defer func() {
			if err := os.RemoveAll(tmpDir); err != nil {
				runLogger.Error().Err(err).Str("tmp_dir", tmpDir).Msg("Failed to remove working directory")
			}
		}()
		workdir = tmpDir
	}

	spec := *run.spec
	spec.Workdir = workdir

	supervisor := service.NewSupervisor(s.Runtime, runLogger)
	runner := step.NewRunner(s.Runtime, s.GitHub)
	executor := pipeline.NewExecutor(supervisor, runner, s.Secrets, runLogger)

	result, err := executor.Run(context.Background(), &spec)
	if err != nil {
		runLogger.Error().Err(err).Msg("Run aborted before steps executed")
		s.finishRun(run, RunStatusFailed, nil, err.Error())
		return
	}

	status := RunStatusSucceeded
	if !result.Success() {
		status = RunStatusFailed
	}
	s.finishRun(run, status, result, "")
}

func (s *Server) finishRun(run *Run, status string, result *pipeline.Result, errMsg string) {
	s.RunMutex.Lock()
	defer s.RunMutex.Unlock()

	run.Status = status
	run.Result = result
	run.Error = errMsg
	run.Finished = time.Now()
}
