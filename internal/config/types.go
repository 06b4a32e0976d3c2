package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline is the top-level pipeline definition loaded from YAML.
type Pipeline struct {
	Name     string            `yaml:"name"`
	Workdir  string            `yaml:"workdir"`
	Env      map[string]string `yaml:"env"`
	Secrets  []string          `yaml:"secrets"`
	Services []Service         `yaml:"services"`
	Steps    []Step            `yaml:"steps"`

	// Set by the loader, not from YAML.
	FilePath string `yaml:"-"`
}

// Service declares an auxiliary container that must be running and healthy
// before any step executes.
type Service struct {
	Name  string            `yaml:"name"`
	Image string            `yaml:"image"`
	Env   map[string]string `yaml:"env"`
	Port  PortMapping       `yaml:"port"`
	Probe Probe             `yaml:"probe"`

	// EnvPrefix names the discovered-endpoint variables exported to steps
	// (<prefix>_HOST, <prefix>_PORT). Defaults to the upper-cased service name.
	EnvPrefix string `yaml:"env_prefix"`
}

// PortMapping publishes a container port on the host.
type PortMapping struct {
	Host      int `yaml:"host"`
	Container int `yaml:"container"`
}

// Probe describes the readiness check for a service.
type Probe struct {
	// Type selects the probe implementation: "command" (default) executes
	// Command inside the container, "postgres" pings the published port.
	Type     string   `yaml:"type"`
	Command  []string `yaml:"command"`
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

// Step is a single unit of pipeline work. Exactly one of Run, Build or
// Checkout must be set.
type Step struct {
	Name     string            `yaml:"name"`
	Run      []string          `yaml:"run"`
	Build    *Build            `yaml:"build"`
	Checkout *Checkout         `yaml:"checkout"`
	Env      map[string]string `yaml:"env"`
}

// Build invokes the container image builder.
type Build struct {
	Context string `yaml:"context"`
	Tag     string `yaml:"tag"`
}

// Checkout clones a git repository into the working directory.
type Checkout struct {
	Repository string `yaml:"repository"`
	Branch     string `yaml:"branch"`
	Path       string `yaml:"path"`
}

const (
	ProbeTypeCommand  = "command"
	ProbeTypePostgres = "postgres"
)

// Duration wraps time.Duration so probe timings can be written as "2s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Value() time.Duration {
	return time.Duration(d)
}
