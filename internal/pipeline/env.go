package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"forgeci/internal/config"
	"forgeci/internal/secrets"
)

// secretRefPrefix marks an environment value as a secret store reference,
// e.g. POSTGRES_USER: "secret:DB_USER".
const secretRefPrefix = "secret:"

// Env is an ordered environment mapping. Keys are unique; setting an existing
// key overwrites its value but keeps its original position.
type Env struct {
	keys   []string
	values map[string]string
}

func NewEnv() *Env {
	return &Env{values: make(map[string]string)}
}

func (e *Env) Set(key, value string) {
	if _, exists := e.values[key]; !exists {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

func (e *Env) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

func (e *Env) Len() int {
	return len(e.keys)
}

// Strings renders the mapping as KEY=VALUE pairs in insertion order, the form
// handed to the step's process.
func (e *Env) Strings() []string {
	out := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, k+"="+e.values[k])
	}
	return out
}

// Endpoint is the discovered address of a started service.
type Endpoint struct {
	Name      string
	EnvPrefix string
	Host      string
	Port      int
}

// Materializer computes the process environment for steps and services by
// layering static declarations, secret lookups and discovered endpoints.
type Materializer struct {
	Secrets secrets.Store
}

// Materialize builds the environment for one step. Precedence on key
// collision, lowest to highest: pipeline static env, exported secrets,
// service-discovered values, step-local env.
func (m *Materializer) Materialize(ctx context.Context, p *config.Pipeline, step config.Step, endpoints []Endpoint) (*Env, error) {
	env := NewEnv()

	if err := m.resolveInto(ctx, env, p.Env); err != nil {
		return nil, err
	}

	for _, key := range p.Secrets {
		value, ok, err := m.Secrets.Lookup(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("looking up secret %s: %w", key, err)
		}
		if !ok {
			return nil, fmt.Errorf("required secret %s not found", key)
		}
		env.Set(key, value)
	}

	for _, ep := range endpoints {
		env.Set(ep.EnvPrefix+"_HOST", ep.Host)
		env.Set(ep.EnvPrefix+"_PORT", fmt.Sprintf("%d", ep.Port))
	}

	if err := m.resolveInto(ctx, env, step.Env); err != nil {
		return nil, err
	}

	return env, nil
}

// ResolveMap resolves a declaration map into KEY=VALUE pairs with secret
// references substituted, sorted by key for determinism. Used for service
// container environments.
func (m *Materializer) ResolveMap(ctx context.Context, declared map[string]string) ([]string, error) {
	env := NewEnv()
	if err := m.resolveInto(ctx, env, declared); err != nil {
		return nil, err
	}
	return env.Strings(), nil
}

// Verify checks that every secret the pipeline references resolves, before
// any service is started.
func (m *Materializer) Verify(ctx context.Context, p *config.Pipeline) error {
	for _, key := range p.Secrets {
		if err := m.verifyKey(ctx, key); err != nil {
			return err
		}
	}
	if err := m.verifyRefs(ctx, p.Env); err != nil {
		return err
	}
	for _, svc := range p.Services {
		if err := m.verifyRefs(ctx, svc.Env); err != nil {
			return fmt.Errorf("service %s: %w", svc.Name, err)
		}
	}
	for _, step := range p.Steps {
		if err := m.verifyRefs(ctx, step.Env); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}
	return nil
}

func (m *Materializer) verifyRefs(ctx context.Context, declared map[string]string) error {
	for _, value := range declared {
		if !strings.HasPrefix(value, secretRefPrefix) {
			continue
		}
		if err := m.verifyKey(ctx, strings.TrimPrefix(value, secretRefPrefix)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) verifyKey(ctx context.Context, key string) error {
	_, ok, err := m.Secrets.Lookup(ctx, key)
	if err != nil {
		return fmt.Errorf("looking up secret %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("required secret %s not found", key)
	}
	return nil
}

func (m *Materializer) resolveInto(ctx context.Context, env *Env, declared map[string]string) error {
	keys := make([]string, 0, len(declared))
	for k := range declared {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := declared[key]
		if strings.HasPrefix(value, secretRefPrefix) {
			secretKey := strings.TrimPrefix(value, secretRefPrefix)
			resolved, ok, err := m.Secrets.Lookup(ctx, secretKey)
			if err != nil {
				return fmt.Errorf("looking up secret %s: %w", secretKey, err)
			}
			if !ok {
				return fmt.Errorf("required secret %s not found", secretKey)
			}
			value = resolved
		}
		env.Set(key, value)
	}
	return nil
}
