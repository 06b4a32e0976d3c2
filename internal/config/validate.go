package config

import (
	"fmt"
)

// Validate checks the pipeline definition for errors. A pipeline with zero
// steps and zero services is valid.
func (p *Pipeline) Validate() error {
	names := make(map[string]int)
	for i, step := range p.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if prev, exists := names[step.Name]; exists {
			return fmt.Errorf("step %d: duplicate step name %q (first defined at step %d)", i, step.Name, prev)
		}
		names[step.Name] = i

		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}
	}

	serviceNames := make(map[string]int)
	for i, svc := range p.Services {
		if svc.Name == "" {
			return fmt.Errorf("service %d: name is required", i)
		}
		if prev, exists := serviceNames[svc.Name]; exists {
			return fmt.Errorf("service %d: duplicate service name %q (first defined at service %d)", i, svc.Name, prev)
		}
		serviceNames[svc.Name] = i

		if err := validateService(svc); err != nil {
			return fmt.Errorf("service %q: %w", svc.Name, err)
		}
	}

	return nil
}

func validateStep(step Step) error {
	kinds := 0
	if len(step.Run) > 0 {
		kinds++
	}
	if step.Build != nil {
		kinds++
	}
	if step.Checkout != nil {
		kinds++
	}
	if kinds == 0 {
		return fmt.Errorf("one of run, build or checkout is required")
	}
	if kinds > 1 {
		return fmt.Errorf("run, build and checkout are mutually exclusive")
	}
	if step.Build != nil && step.Build.Tag == "" {
		return fmt.Errorf("build.tag is required")
	}
	if step.Checkout != nil && step.Checkout.Repository == "" {
		return fmt.Errorf("checkout.repository is required")
	}
	return nil
}

func validateService(svc Service) error {
	if svc.Image == "" {
		return fmt.Errorf("image is required")
	}
	if svc.Port.Host < 0 || svc.Port.Container < 0 {
		return fmt.Errorf("port numbers must be non-negative")
	}
	return validateProbe(svc.Probe)
}

func validateProbe(probe Probe) error {
	switch probe.Type {
	case ProbeTypeCommand:
		if len(probe.Command) == 0 {
			return fmt.Errorf("probe.command is required for command probes")
		}
	case ProbeTypePostgres:
	default:
		return fmt.Errorf("unknown probe type %q", probe.Type)
	}
	if probe.Interval < 0 {
		return fmt.Errorf("probe.interval must be non-negative")
	}
	if probe.Timeout < 0 {
		return fmt.Errorf("probe.timeout must be non-negative")
	}
	if probe.Retries < 0 {
		return fmt.Errorf("probe.retries must be non-negative")
	}
	return nil
}
