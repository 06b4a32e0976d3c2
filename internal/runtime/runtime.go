package runtime

import (
	"context"

	"forgeci/internal/config"
)

// Runtime is the narrow container-runtime interface the executor consumes.
// Service containers and image builds are the only operations it covers.
type Runtime interface {
	// StartService creates and starts a service container, returning its
	// runtime identifier.
	StartService(ctx context.Context, svc config.Service, env []string) (string, error)

	// Probe runs a readiness command inside a started container. A nil error
	// means the probe passed.
	Probe(ctx context.Context, id string, command []string) error

	// StopService tears a container down. Best-effort semantics are the
	// caller's concern; implementations report what happened.
	StopService(ctx context.Context, id string) error

	// BuildImage builds an image from a context directory and returns the
	// builder's combined output.
	BuildImage(ctx context.Context, contextDir, tag string) (string, error)
}
