// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import (
	"fmt"
	"strconv"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

// Layout describes where one state and its lock live in the store.
//
// Given a base path P the lock is kept at P/lock and the state fragments
// at P/state/0, P/state/1, and so on.
type Layout struct {
	// Base is the secrets path, without leading or trailing slashes.
	Base string
}

// LockPath returns the path of the lock record.
func (l Layout) LockPath() string {
	return kvstore.JoinPath(l.Base, "lock")
}

// StatePath returns the directory holding the state fragments.
func (l Layout) StatePath() string {
	return kvstore.JoinPath(l.Base, "state")
}

// FragmentPath returns the path of the fragment with the given index.
func (l Layout) FragmentPath(index int) string {
	return kvstore.JoinPath(l.StatePath(), strconv.Itoa(index))
}

func (l Layout) String() string {
	return fmt.Sprintf("%q", l.Base)
}
