package step

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forgeci/internal/config"
	"forgeci/internal/githubauth"
	"forgeci/internal/pipeline"
	"forgeci/internal/runtime"
)

// Runner executes single pipeline steps: shell command lists, image builds
// and repository checkouts. No retries happen at this layer.
type Runner struct {
	Runtime runtime.Runtime
	GitHub  *githubauth.AppAuth

	logger zerolog.Logger
}

func NewRunner(rt runtime.Runtime, gh *githubauth.AppAuth) *Runner {
	return &Runner{
		Runtime: rt,
		GitHub:  gh,
		logger:  log.With().Str("component", "step").Logger(),
	}
}

// Run dispatches on the step kind. Command steps run their commands in
// declared order and stop at the first non-zero exit.
func (r *Runner) Run(ctx context.Context, step config.Step, env *pipeline.Env, workdir string) pipeline.RunOutput {
	switch {
	case step.Build != nil:
		return r.runBuild(ctx, step, workdir)
	case step.Checkout != nil:
		return r.runCheckout(ctx, step, workdir)
	default:
		return r.runCommands(ctx, step, env, workdir)
	}
}

func (r *Runner) runCommands(ctx context.Context, step config.Step, env *pipeline.Env, workdir string) pipeline.RunOutput {
	var stdout, stderr bytes.Buffer

	for _, command := range step.Run {
		r.logger.Debug().
			Str("step", step.Name).
			Str("command", command).
			Msg("Running command")

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = workdir
		cmd.Env = append(os.Environ(), env.Strings()...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			// Remaining commands in this step are skipped.
			return pipeline.RunOutput{
				ExitCode: exitCode(err),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				Err:      fmt.Errorf("command %q: %w", command, err),
			}
		}
	}

	return pipeline.RunOutput{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
}

func (r *Runner) runBuild(ctx context.Context, step config.Step, workdir string) pipeline.RunOutput {
	contextDir := step.Build.Context
	if !filepath.IsAbs(contextDir) {
		contextDir = filepath.Join(workdir, contextDir)
	}

	out, err := r.Runtime.BuildImage(ctx, contextDir, step.Build.Tag)
	if err != nil {
		return pipeline.RunOutput{ExitCode: 1, Stdout: out, Err: err}
	}
	return pipeline.RunOutput{Stdout: out}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
