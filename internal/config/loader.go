package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultProbeInterval = 2 * time.Second
	defaultProbeTimeout  = 3 * time.Second
	defaultProbeRetries  = 15
)

// Load reads a pipeline file, applies defaults and validates it.
func Load(filename string) (*Pipeline, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", filename, err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	p.FilePath = absPath
	if p.Workdir == "" {
		p.Workdir = filepath.Dir(absPath)
	}

	return p, nil
}

// Parse decodes pipeline YAML, applies defaults and validates the result.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}

	applyDefaults(&p)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func applyDefaults(p *Pipeline) {
	for i := range p.Services {
		svc := &p.Services[i]
		if svc.EnvPrefix == "" {
			svc.EnvPrefix = strings.ToUpper(strings.ReplaceAll(svc.Name, "-", "_"))
		}
		if svc.Probe.Type == "" {
			svc.Probe.Type = ProbeTypeCommand
		}
		if svc.Probe.Interval == 0 {
			svc.Probe.Interval = Duration(defaultProbeInterval)
		}
		if svc.Probe.Timeout == 0 {
			svc.Probe.Timeout = Duration(defaultProbeTimeout)
		}
		if svc.Probe.Retries == 0 {
			svc.Probe.Retries = defaultProbeRetries
		}
		if svc.Port.Container == 0 {
			svc.Port.Container = svc.Port.Host
		}
	}
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Build != nil && step.Build.Context == "" {
			step.Build.Context = "."
		}
	}
}
