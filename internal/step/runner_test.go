package step

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forgeci/internal/config"
	"forgeci/internal/pipeline"
)

func TestRun_Commands(t *testing.T) {
	r := NewRunner(nil, nil)
	env := pipeline.NewEnv()

	out := r.Run(context.Background(), config.Step{
		Name: "greet",
		Run:  []string{"echo one", "echo two"},
	}, env, t.TempDir())

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if !strings.Contains(out.Stdout, "one") || !strings.Contains(out.Stdout, "two") {
		t.Fatalf("stdout = %q, want both commands' output", out.Stdout)
	}
}

func TestRun_StopsAtFirstFailingCommand(t *testing.T) {
	r := NewRunner(nil, nil)
	env := pipeline.NewEnv()

	out := r.Run(context.Background(), config.Step{
		Name: "atomic",
		Run:  []string{"echo before", "exit 7", "echo after"},
	}, env, t.TempDir())

	if out.Err == nil {
		t.Fatal("expected error")
	}
	if out.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", out.ExitCode)
	}
	if !strings.Contains(out.Stdout, "before") {
		t.Errorf("stdout = %q, want output from the first command", out.Stdout)
	}
	if strings.Contains(out.Stdout, "after") {
		t.Error("command after the failure was executed")
	}
}

func TestRun_EnvironmentAndWorkdir(t *testing.T) {
	r := NewRunner(nil, nil)
	env := pipeline.NewEnv()
	env.Set("DB_HOST", "127.0.0.1")

	dir := t.TempDir()
	out := r.Run(context.Background(), config.Step{
		Name: "env",
		Run:  []string{`printf '%s' "$DB_HOST" > host.txt`},
	}, env, dir)

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "host.txt"))
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	if string(data) != "127.0.0.1" {
		t.Fatalf("got %q, want 127.0.0.1", string(data))
	}
}

func TestRun_CapturesStderr(t *testing.T) {
	r := NewRunner(nil, nil)

	out := r.Run(context.Background(), config.Step{
		Name: "noisy",
		Run:  []string{"echo oops >&2; exit 1"},
	}, pipeline.NewEnv(), t.TempDir())

	if out.Err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out.Stderr, "oops") {
		t.Fatalf("stderr = %q, want diagnostic output", out.Stderr)
	}
}

// buildRuntime records image builds.
type buildRuntime struct {
	contextDir string
	tag        string
	err        error
}

func (b *buildRuntime) StartService(context.Context, config.Service, []string) (string, error) {
	return "", errors.New("not implemented")
}

func (b *buildRuntime) Probe(context.Context, string, []string) error {
	return errors.New("not implemented")
}

func (b *buildRuntime) StopService(context.Context, string) error {
	return errors.New("not implemented")
}

func (b *buildRuntime) BuildImage(_ context.Context, contextDir, tag string) (string, error) {
	b.contextDir = contextDir
	b.tag = tag
	if b.err != nil {
		return "", b.err
	}
	return "Successfully built", nil
}

func TestRun_Build(t *testing.T) {
	rt := &buildRuntime{}
	r := NewRunner(rt, nil)
	workdir := t.TempDir()

	out := r.Run(context.Background(), config.Step{
		Name:  "build-image",
		Build: &config.Build{Context: "app", Tag: "app:ci"},
	}, pipeline.NewEnv(), workdir)

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if rt.tag != "app:ci" {
		t.Errorf("tag = %q, want app:ci", rt.tag)
	}
	if rt.contextDir != filepath.Join(workdir, "app") {
		t.Errorf("context = %q, want %q", rt.contextDir, filepath.Join(workdir, "app"))
	}
}

func TestRun_BuildFailure(t *testing.T) {
	rt := &buildRuntime{err: errors.New("no Dockerfile")}
	r := NewRunner(rt, nil)

	out := r.Run(context.Background(), config.Step{
		Name:  "build-image",
		Build: &config.Build{Context: ".", Tag: "app:ci"},
	}, pipeline.NewEnv(), t.TempDir())

	if out.Err == nil {
		t.Fatal("expected error")
	}
	if out.ExitCode == 0 {
		t.Error("exit code should be non-zero")
	}
}
