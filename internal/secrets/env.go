package secrets

import (
	"context"
	"os"
)

// EnvStore resolves secrets from the process environment, optionally behind a
// prefix (e.g. prefix "CI_SECRET_" maps key DB_USER to CI_SECRET_DB_USER).
type EnvStore struct {
	Prefix string
}

func (s *EnvStore) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := os.LookupEnv(s.Prefix + key)
	return v, ok, nil
}
