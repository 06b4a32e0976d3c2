package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const samplePipeline = `
name: build-and-test
env:
  APP_ENV: ci
secrets: [DB_USER, DB_PASSWORD, DB_NAME, JWT_SECRET]
services:
  - name: postgres
    image: postgres:16-alpine
    env:
      POSTGRES_USER: "secret:DB_USER"
      POSTGRES_PASSWORD: "secret:DB_PASSWORD"
      POSTGRES_DB: "secret:DB_NAME"
    env_prefix: DB
    port:
      host: 5432
      container: 5432
    probe:
      command: ["pg_isready", "-U", "ci"]
      interval: 2s
      timeout: 3s
      retries: 15
steps:
  - name: install
    run:
      - pip install -r requirements.txt
  - name: test
    run:
      - pytest -v
    env:
      PYTHONPATH: .
  - name: build-image
    build:
      tag: app:ci
`

func TestParse_FullPipeline(t *testing.T) {
	p, err := Parse([]byte(samplePipeline))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Name != "build-and-test" {
		t.Errorf("name = %q, want build-and-test", p.Name)
	}
	if len(p.Secrets) != 4 {
		t.Errorf("secrets = %d, want 4", len(p.Secrets))
	}
	if len(p.Services) != 1 || len(p.Steps) != 3 {
		t.Fatalf("services = %d steps = %d, want 1 and 3", len(p.Services), len(p.Steps))
	}

	svc := p.Services[0]
	if svc.EnvPrefix != "DB" {
		t.Errorf("env_prefix = %q, want DB", svc.EnvPrefix)
	}
	if svc.Probe.Interval.Value() != 2*time.Second {
		t.Errorf("interval = %v, want 2s", svc.Probe.Interval.Value())
	}
	if svc.Probe.Timeout.Value() != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", svc.Probe.Timeout.Value())
	}
	if svc.Probe.Retries != 15 {
		t.Errorf("retries = %d, want 15", svc.Probe.Retries)
	}

	if p.Steps[2].Build == nil || p.Steps[2].Build.Context != "." {
		t.Errorf("build context default not applied: %+v", p.Steps[2].Build)
	}
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse([]byte(`
name: defaults
services:
  - name: message-broker
    image: rabbitmq:3
    port:
      host: 5672
    probe:
      command: ["rabbitmq-diagnostics", "ping"]
steps: []
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc := p.Services[0]
	if svc.EnvPrefix != "MESSAGE_BROKER" {
		t.Errorf("env_prefix = %q, want MESSAGE_BROKER", svc.EnvPrefix)
	}
	if svc.Probe.Type != ProbeTypeCommand {
		t.Errorf("probe type = %q, want command", svc.Probe.Type)
	}
	if svc.Probe.Interval.Value() != defaultProbeInterval {
		t.Errorf("interval = %v, want %v", svc.Probe.Interval.Value(), defaultProbeInterval)
	}
	if svc.Probe.Retries != defaultProbeRetries {
		t.Errorf("retries = %d, want %d", svc.Probe.Retries, defaultProbeRetries)
	}
	if svc.Port.Container != 5672 {
		t.Errorf("container port = %d, want host port 5672", svc.Port.Container)
	}
}

func TestParse_EmptyPipelineIsValid(t *testing.T) {
	p, err := Parse([]byte("name: empty\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Steps) != 0 || len(p.Services) != 0 {
		t.Errorf("expected empty pipeline, got %d steps %d services", len(p.Steps), len(p.Services))
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
services:
  - name: db
    image: postgres:16
    probe:
      command: ["true"]
      interval: soon
`))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_SetsWorkdirAndPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pipeline.yaml")
	if err := os.WriteFile(file, []byte("name: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Workdir != dir {
		t.Errorf("workdir = %q, want %q", p.Workdir, dir)
	}
	if p.FilePath == "" {
		t.Error("file path not set")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
