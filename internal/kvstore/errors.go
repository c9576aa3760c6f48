// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package kvstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means nothing exists at the requested path.
	ErrNotFound = errors.New("secret not found")

	// ErrAlreadyExists means a conditional create found an existing version.
	ErrAlreadyExists = errors.New("secret already exists")

	// ErrCapacityExceeded means the store refused an entry that is larger
	// than its per-entry limit.
	ErrCapacityExceeded = errors.New("value too large for the secret store")

	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("secret store unavailable")

	// ErrForbidden means the store rejected the credentials or their scope.
	ErrForbidden = errors.New("secret store denied access")
)

// Error associates one of the error kinds above with the operation and path
// that produced it and, optionally, the store's own error.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap makes both the kind and the underlying cause visible to errors.Is
// and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError returns an *Error of the given kind.
func NewError(op, path string, kind, cause error) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: cause}
}
