package secrets

import "context"

// Chain tries each store in order and returns the first hit. Backend errors
// abort the chain; a clean miss falls through to the next store.
type Chain []Store

func (c Chain) Lookup(ctx context.Context, key string) (string, bool, error) {
	for _, store := range c {
		value, ok, err := store.Lookup(ctx, key)
		if err != nil {
			return "", false, err
		}
		if ok {
			return value, true, nil
		}
	}
	return "", false, nil
}
