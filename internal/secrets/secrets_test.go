package secrets

import (
	"context"
	"errors"
	"testing"
)

func TestStatic_Lookup(t *testing.T) {
	store := Static{"DB_USER": "ci"}

	v, ok, err := store.Lookup(context.Background(), "DB_USER")
	if err != nil || !ok || v != "ci" {
		t.Fatalf("got (%q, %v, %v), want (ci, true, nil)", v, ok, err)
	}

	_, ok, err = store.Lookup(context.Background(), "MISSING")
	if err != nil {
		t.Fatalf("missing key should not be an error, got %v", err)
	}
	if ok {
		t.Fatal("missing key reported as present")
	}
}

func TestEnvStore_Prefix(t *testing.T) {
	t.Setenv("CI_SECRET_DB_USER", "ci")

	store := &EnvStore{Prefix: "CI_SECRET_"}
	v, ok, err := store.Lookup(context.Background(), "DB_USER")
	if err != nil || !ok || v != "ci" {
		t.Fatalf("got (%q, %v, %v), want (ci, true, nil)", v, ok, err)
	}

	_, ok, _ = store.Lookup(context.Background(), "DB_PASSWORD")
	if ok {
		t.Fatal("unset variable reported as present")
	}
}

type failingStore struct{}

func (failingStore) Lookup(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend down")
}

func TestChain_FallsThroughOnMiss(t *testing.T) {
	chain := Chain{Static{"A": "first"}, Static{"A": "second", "B": "fallback"}}

	v, ok, _ := chain.Lookup(context.Background(), "A")
	if !ok || v != "first" {
		t.Fatalf("got (%q, %v), want first store to win", v, ok)
	}

	v, ok, _ = chain.Lookup(context.Background(), "B")
	if !ok || v != "fallback" {
		t.Fatalf("got (%q, %v), want fallback hit", v, ok)
	}

	_, ok, err := chain.Lookup(context.Background(), "C")
	if ok || err != nil {
		t.Fatalf("got (%v, %v), want clean miss", ok, err)
	}
}

func TestChain_BackendErrorAborts(t *testing.T) {
	chain := Chain{failingStore{}, Static{"A": "unreachable"}}

	_, _, err := chain.Lookup(context.Background(), "A")
	if err == nil {
		t.Fatal("expected backend error to abort the chain")
	}
}
