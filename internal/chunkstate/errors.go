// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrStateNotFound is returned when no fragment keys exist under the
	// state path. A state whose fragments are all deleted is not "not
	// found"; it reassembles to an empty envelope instead.
	ErrStateNotFound = errors.New("no state exists")

	// ErrLockNotFound is returned when releasing or reading a lock that is
	// not held.
	ErrLockNotFound = errors.New("no lock held")

	// ErrInvalidChunkSize is returned for a configured chunk size that
	// leaves no room for data once the margin is subtracted.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrProbeExhausted is returned when chunk size probing halved the
	// fragment length down to zero without the store accepting a write.
	ErrProbeExhausted = errors.New("chunk size probing found no fragment size the store accepts")
)

// ChunkSizeError is returned when the store refuses a fragment cut to the
// configured chunk size, which means the configuration is wrong for the
// store.
type ChunkSizeError struct {
	ChunkSize int
	Cutoff    int
	Err       error
}

func (e *ChunkSizeError) Error() string {
	return fmt.Sprintf(
		"the secret store refused a state fragment of %d bytes; the configured chunk size %d is too large for this store (use -1 to probe): %s",
		e.Cutoff, e.ChunkSize, e.Err,
	)
}

func (e *ChunkSizeError) Unwrap() error {
	return e.Err
}

// FragmentKeyError is returned when a key under the state path isn't a
// fragment index.
type FragmentKeyError struct {
	Key string
}

func (e *FragmentKeyError) Error() string {
	return fmt.Sprintf("unexpected entry %q under the state path: fragment keys must be integers", e.Key)
}

// FragmentValueError is returned when a fragment doesn't carry a string
// value.
type FragmentValueError struct {
	Key string
}

func (e *FragmentValueError) Error() string {
	return fmt.Sprintf("state fragment %q has no string %q field", e.Key, fragmentValueKey)
}

// LockError is returned when a lock can't be acquired because it is already
// held. Info describes the current holder when it could be read.
type LockError struct {
	Info map[string]any
	Err  error
}

func (e *LockError) Error() string {
	var out strings.Builder
	if e.Err != nil {
		out.WriteString(e.Err.Error())
	} else {
		out.WriteString("state already locked")
	}
	if len(e.Info) > 0 {
		out.WriteString("\n\nLock Info:")
		keys := make([]string, 0, len(e.Info))
		for k := range e.Info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&out, "\n  %s: %v", k, e.Info[k])
		}
	}
	return out.String()
}

func (e *LockError) Unwrap() error {
	return e.Err
}
