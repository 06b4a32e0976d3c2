package step

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"forgeci/internal/config"
	"forgeci/internal/githubauth"
	"forgeci/internal/pipeline"
)

func (r *Runner) runCheckout(ctx context.Context, step config.Step, workdir string) pipeline.RunOutput {
	spec := step.Checkout

	target := workdir
	if spec.Path != "" {
		target = filepath.Join(workdir, spec.Path)
	}

	cloneURL := spec.Repository
	if r.GitHub != nil {
		token, err := r.GitHub.InstallationToken(ctx)
		if err != nil {
			return pipeline.RunOutput{ExitCode: 1, Err: fmt.Errorf("github authentication: %w", err)}
		}
		cloneURL, err = githubauth.CloneURL(token, spec.Repository)
		if err != nil {
			return pipeline.RunOutput{ExitCode: 1, Err: err}
		}
	}

	r.logger.Info().
		Str("step", step.Name).
		Str("repository", githubauth.MaskURL(cloneURL)).
		Str("target", target).
		Msg("Cloning repository")

	options := &git.CloneOptions{
		URL:      cloneURL,
		Progress: &gitProgressWriter{logger: r.logger.With().Str("component", "git").Logger()},
	}
	if spec.Branch != "" {
		options.ReferenceName = plumbing.NewBranchReferenceName(spec.Branch)
		options.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, target, false, options); err != nil {
		return pipeline.RunOutput{
			ExitCode: 1,
			Err:      fmt.Errorf("cloning %s: %w", githubauth.MaskURL(cloneURL), err),
		}
	}

	return pipeline.RunOutput{}
}

// gitProgressWriter funnels go-git progress output into the structured log.
type gitProgressWriter struct {
	logger zerolog.Logger
}

func (w *gitProgressWriter) Write(p []byte) (int, error) {
	if output := strings.TrimSpace(string(p)); output != "" {
		w.logger.Debug().Str("progress", output).Msg("Git clone progress")
	}
	return len(p), nil
}
