package store

import "context"

// Backend is a flat key-value surface the session store writes through.
// Absent keys are reported as (nil, nil), not as an error; every write is a
// full overwrite of the value under its key.
type Backend interface {
	// Get returns the stored value, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// Close releases backend resources.
	Close() error
}
