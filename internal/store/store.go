package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Change describes a write made through a store opened with another origin.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

type ChangeFunc func(Change)

// Store is a durable string key-value store shared by every tab of one user.
// Each Store value is opened for a single origin (tab); change notifications
// are delivered only for writes made by other origins.
type Store interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error

	// OnExternalChange registers fn for writes to key from other origins.
	// The returned func cancels the registration.
	OnExternalChange(key string, fn ChangeFunc) (cancel func(), err error)

	// Close releases the subscription resources of this origin
	Close() error
}

// Opener opens a Store for the given user namespace and origin.
type Opener func(ctx context.Context, namespace, origin string) (Store, error)
