package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"forgeci/internal/config"
	"forgeci/internal/secrets"
)

func TestEnv_OrderAndOverwrite(t *testing.T) {
	env := NewEnv()
	env.Set("A", "1")
	env.Set("B", "2")
	env.Set("A", "3")

	want := []string{"A=3", "B=2"}
	if got := env.Strings(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if env.Len() != 2 {
		t.Fatalf("len = %d, want 2", env.Len())
	}
}

// TestMaterialize_Precedence walks all 16 presence combinations of one key
// across the four layers. The materialized value must always come from the
// highest-precedence layer that sets it: step-local, then service-discovered,
// then secret, then static.
func TestMaterialize_Precedence(t *testing.T) {
	const key = "DB_HOST"

	for mask := 0; mask < 16; mask++ {
		inStatic := mask&1 != 0
		inSecret := mask&2 != 0
		inService := mask&4 != 0
		inStep := mask&8 != 0

		t.Run(fmt.Sprintf("static=%v secret=%v service=%v step=%v", inStatic, inSecret, inService, inStep), func(t *testing.T) {
			p := &config.Pipeline{Name: "precedence"}
			store := secrets.Static{}
			var endpoints []Endpoint
			step := config.Step{Name: "probe-env", Run: []string{"true"}}

			if inStatic {
				p.Env = map[string]string{key: "from-static"}
			}
			if inSecret {
				p.Secrets = []string{key}
				store[key] = "from-secret"
			}
			if inService {
				endpoints = append(endpoints, Endpoint{Name: "postgres", EnvPrefix: "DB", Host: "from-service", Port: 5432})
			}
			if inStep {
				step.Env = map[string]string{key: "from-step"}
			}

			mat := &Materializer{Secrets: store}
			env, err := mat.Materialize(context.Background(), p, step, endpoints)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, present := env.Get(key)
			switch {
			case inStep:
				assertValue(t, got, present, "from-step")
			case inService:
				assertValue(t, got, present, "from-service")
			case inSecret:
				assertValue(t, got, present, "from-secret")
			case inStatic:
				assertValue(t, got, present, "from-static")
			default:
				if present {
					t.Fatalf("key unexpectedly present with value %q", got)
				}
			}
		})
	}
}

func assertValue(t *testing.T, got string, present bool, want string) {
	t.Helper()
	if !present {
		t.Fatalf("key absent, want %q", want)
	}
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMaterialize_ServiceDiscoveryVariables(t *testing.T) {
	p := &config.Pipeline{Name: "discovery"}
	mat := &Materializer{Secrets: secrets.Static{}}

	env, err := mat.Materialize(context.Background(), p, config.Step{Name: "s"}, []Endpoint{
		{Name: "postgres", EnvPrefix: "DB", Host: "127.0.0.1", Port: 5432},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if host, _ := env.Get("DB_HOST"); host != "127.0.0.1" {
		t.Errorf("DB_HOST = %q, want 127.0.0.1", host)
	}
	if port, _ := env.Get("DB_PORT"); port != "5432" {
		t.Errorf("DB_PORT = %q, want 5432", port)
	}
}

func TestMaterialize_MissingSecret(t *testing.T) {
	p := &config.Pipeline{Name: "missing", Secrets: []string{"JWT_SECRET"}}
	mat := &Materializer{Secrets: secrets.Static{}}

	_, err := mat.Materialize(context.Background(), p, config.Step{Name: "s"}, nil)
	if err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestResolveMap_SecretReferences(t *testing.T) {
	store := secrets.Static{"DB_USER": "ci", "DB_PASSWORD": "hunter2"}
	mat := &Materializer{Secrets: store}

	got, err := mat.ResolveMap(context.Background(), map[string]string{
		"POSTGRES_USER":     "secret:DB_USER",
		"POSTGRES_PASSWORD": "secret:DB_PASSWORD",
		"POSTGRES_DB":       "app",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"POSTGRES_DB=app", "POSTGRES_PASSWORD=hunter2", "POSTGRES_USER=ci"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestVerify_ReportsUnresolvableReference(t *testing.T) {
	p := &config.Pipeline{
		Name: "verify",
		Services: []config.Service{
			{
				Name:  "postgres",
				Image: "postgres:16",
				Env:   map[string]string{"POSTGRES_PASSWORD": "secret:DB_PASSWORD"},
			},
		},
	}
	mat := &Materializer{Secrets: secrets.Static{}}

	err := mat.Verify(context.Background(), p)
	if err == nil {
		t.Fatal("expected error for unresolvable secret reference")
	}
}
