// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package kvstore defines the path-addressed secret store contract that the
// chunked state engine is built on, along with the error kinds every
// implementation reports.
//
// Implementations live in the subpackages: openbao (OpenBao and HashiCorp
// Vault KV version 2), consul, kubernetes, pg, filesystem and inmem.
package kvstore

//go:generate go tool go.uber.org/mock/mockgen -destination mock_kvstore/mock.go -package mock_kvstore github.com/opentofu/tofu-vault-backend/internal/kvstore Store,Dialer

import (
	"context"
	"time"
)

// Store is a session with a versioned key-value secret store.
//
// Paths are slash-separated and relative to whatever mount or root the
// implementation was configured with. All methods are safe for concurrent
// use.
type Store interface {
	// Put writes a new version of the secret at path. It returns an error
	// wrapping ErrCapacityExceeded when the store refuses the entry because
	// of its size.
	Put(ctx context.Context, path string, data map[string]any) error

	// Get returns the latest version of the secret at path, including a
	// version that has been soft-deleted. It returns an error wrapping
	// ErrNotFound when no version exists at all.
	Get(ctx context.Context, path string) (*Secret, error)

	// List returns the names of the entries directly below prefix. Names of
	// nested directories end with "/". It returns an error wrapping
	// ErrNotFound when nothing exists below prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeleteLatest soft-deletes the latest version of the secret at path.
	DeleteLatest(ctx context.Context, path string) error

	// Create writes the first version of the secret at path. It returns an
	// error wrapping ErrAlreadyExists when any version, deleted or not,
	// already exists.
	Create(ctx context.Context, path string, data map[string]any) error

	// Destroy removes every version of the secret at path along with its
	// metadata. It returns an error wrapping ErrNotFound when there is
	// nothing to remove.
	Destroy(ctx context.Context, path string) error
}

// Dialer opens store sessions on behalf of a caller.
//
// The token is an opaque credential forwarded unmodified to the store.
type Dialer interface {
	Dial(ctx context.Context, token string) (Store, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, token string) (Store, error)

func (f DialerFunc) Dial(ctx context.Context, token string) (Store, error) {
	return f(ctx, token)
}

// Secret is one version of a stored secret.
type Secret struct {
	Data map[string]any

	// Version is the store's version number for this secret, or zero if the
	// store does not track versions.
	Version int

	// DeletionTime is set when this version has been soft-deleted. A
	// deleted version carries no data.
	DeletionTime time.Time
}

// Deleted reports whether the secret version carries a deletion marker.
func (s *Secret) Deleted() bool {
	return !s.DeletionTime.IsZero()
}
