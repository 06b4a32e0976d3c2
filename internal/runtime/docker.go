package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forgeci/internal/config"
)

// DockerRuntime drives service containers and image builds through the
// docker CLI.
type DockerRuntime struct {
	// Binary overrides the docker executable, e.g. "podman".
	Binary string

	logger zerolog.Logger
}

func NewDockerRuntime() *DockerRuntime {
	return &DockerRuntime{
		Binary: "docker",
		logger: log.With().Str("component", "runtime").Logger(),
	}
}

func (r *DockerRuntime) StartService(ctx context.Context, svc config.Service, env []string) (string, error) {
	args := []string{"run", "--detach", "--rm", "--label", "forgeci.service=" + svc.Name}
	if svc.Port.Host > 0 {
		args = append(args, "--publish", fmt.Sprintf("127.0.0.1:%d:%d", svc.Port.Host, svc.Port.Container))
	}
	// Sorted for a stable command line.
	sorted := append([]string(nil), env...)
	sort.Strings(sorted)
	for _, kv := range sorted {
		args = append(args, "--env", kv)
	}
	args = append(args, svc.Image)

	out, err := r.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("starting service %s: %w", svc.Name, err)
	}

	id := strings.TrimSpace(out)
	r.logger.Info().
		Str("service", svc.Name).
		Str("image", svc.Image).
		Str("container_id", shortID(id)).
		Msg("Service container started")
	return id, nil
}

func (r *DockerRuntime) Probe(ctx context.Context, id string, command []string) error {
	args := append([]string{"exec", id}, command...)
	if _, err := r.run(ctx, args...); err != nil {
		return err
	}
	return nil
}

func (r *DockerRuntime) StopService(ctx context.Context, id string) error {
	if _, err := r.run(ctx, "rm", "--force", id); err != nil {
		return fmt.Errorf("removing container %s: %w", shortID(id), err)
	}
	r.logger.Info().Str("container_id", shortID(id)).Msg("Service container removed")
	return nil
}

func (r *DockerRuntime) BuildImage(ctx context.Context, contextDir, tag string) (string, error) {
	r.logger.Info().
		Str("context", contextDir).
		Str("tag", tag).
		Msg("Building image")

	out, err := r.run(ctx, "build", "--tag", tag, contextDir)
	if err != nil {
		return out, fmt.Errorf("building image %s: %w", tag, err)
	}
	return out, nil
}

func (r *DockerRuntime) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.Binary, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%s %s: %w: %s", r.Binary, args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
