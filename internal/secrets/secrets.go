package secrets

import "context"

// Store is a read-only lookup of named secrets. A missing key is reported
// through ok=false, not an error; err is reserved for backend failures.
type Store interface {
	Lookup(ctx context.Context, key string) (value string, ok bool, err error)
}

// Static is a fixed in-memory store, used in tests and for inline secrets.
type Static map[string]string

func (s Static) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}
