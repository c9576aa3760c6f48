// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package kvstoretest holds a conformance test that every kvstore.Store
// implementation is expected to pass.
package kvstoretest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

// TestStore exercises the kvstore.Store contract against s. The store must
// be empty below base.
func TestStore(t *testing.T, s kvstore.Store, base string) {
	t.Helper()
	ctx := context.Background()
	path := func(parts ...string) string {
		return kvstore.JoinPath(append([]string{base}, parts...)...)
	}

	// Reading and listing nothing.
	if _, err := s.Get(ctx, path("missing")); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("Get of missing secret: got %v, want ErrNotFound", err)
	}
	if _, err := s.List(ctx, path("nothing-here")); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("List of missing prefix: got %v, want ErrNotFound", err)
	}
	if err := s.Destroy(ctx, path("missing")); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("Destroy of missing secret: got %v, want ErrNotFound", err)
	}

	// Put and Get.
	if err := s.Put(ctx, path("dir", "0"), map[string]any{"value": "zero"}); err != nil {
		t.Fatalf("Put: %s", err)
	}
	if err := s.Put(ctx, path("dir", "1"), map[string]any{"value": "one"}); err != nil {
		t.Fatalf("Put: %s", err)
	}
	if err := s.Put(ctx, path("dir", "0"), map[string]any{"value": "zero again"}); err != nil {
		t.Fatalf("Put over existing: %s", err)
	}
	if err := s.Put(ctx, path("dir", "nested", "x"), map[string]any{"value": "x"}); err != nil {
		t.Fatalf("Put nested: %s", err)
	}

	got, err := s.Get(ctx, path("dir", "0"))
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if got.Deleted() {
		t.Fatalf("fresh secret reported as deleted")
	}
	if diff := cmp.Diff(map[string]any{"value": "zero again"}, got.Data); diff != "" {
		t.Fatalf("wrong data\n%s", diff)
	}

	// List.
	keys, err := s.List(ctx, path("dir"))
	if err != nil {
		t.Fatalf("List: %s", err)
	}
	for _, want := range []string{"0", "1", "nested/"} {
		if !contains(keys, want) {
			t.Fatalf("List result %q is missing %q", keys, want)
		}
	}

	// Soft delete keeps the key visible and marks the version.
	if err := s.DeleteLatest(ctx, path("dir", "1")); err != nil {
		t.Fatalf("DeleteLatest: %s", err)
	}
	got, err = s.Get(ctx, path("dir", "1"))
	if err != nil {
		t.Fatalf("Get after DeleteLatest: %s", err)
	}
	if !got.Deleted() {
		t.Fatalf("deleted secret has no deletion marker")
	}
	if len(got.Data) != 0 {
		t.Fatalf("deleted secret still carries data %#v", got.Data)
	}
	keys, err = s.List(ctx, path("dir"))
	if err != nil {
		t.Fatalf("List after DeleteLatest: %s", err)
	}
	if !contains(keys, "1") {
		t.Fatalf("soft-deleted key disappeared from %q", keys)
	}

	// A new Put revives a deleted secret.
	if err := s.Put(ctx, path("dir", "1"), map[string]any{"value": "one again"}); err != nil {
		t.Fatalf("Put after DeleteLatest: %s", err)
	}
	got, err = s.Get(ctx, path("dir", "1"))
	if err != nil {
		t.Fatalf("Get after revive: %s", err)
	}
	if got.Deleted() {
		t.Fatalf("revived secret still deleted")
	}

	// Conditional create.
	lock := map[string]any{"ID": "abc", "Operation": "test"}
	if err := s.Create(ctx, path("lock"), lock); err != nil {
		t.Fatalf("Create: %s", err)
	}
	if err := s.Create(ctx, path("lock"), map[string]any{"ID": "def"}); !errors.Is(err, kvstore.ErrAlreadyExists) {
		t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
	}
	got, err = s.Get(ctx, path("lock"))
	if err != nil {
		t.Fatalf("Get lock: %s", err)
	}
	if diff := cmp.Diff(lock, got.Data); diff != "" {
		t.Fatalf("second Create changed the data\n%s", diff)
	}

	// Destroy removes everything, allowing a fresh Create.
	if err := s.Destroy(ctx, path("lock")); err != nil {
		t.Fatalf("Destroy: %s", err)
	}
	if _, err := s.Get(ctx, path("lock")); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("Get after Destroy: got %v, want ErrNotFound", err)
	}
	if err := s.Create(ctx, path("lock"), lock); err != nil {
		t.Fatalf("Create after Destroy: %s", err)
	}
	if err := s.Destroy(ctx, path("lock")); err != nil {
		t.Fatalf("Destroy: %s", err)
	}
}

// TestStoreCapacity checks that a store configured with a per-entry limit
// rejects larger entries with ErrCapacityExceeded and accepts small ones.
func TestStoreCapacity(t *testing.T, s kvstore.Store, base string, limit int) {
	t.Helper()
	ctx := context.Background()

	big := map[string]any{"value": strings.Repeat("x", limit*2)}
	err := s.Put(ctx, kvstore.JoinPath(base, "big"), big)
	if !errors.Is(err, kvstore.ErrCapacityExceeded) {
		t.Fatalf("Put of oversized entry: got %v, want ErrCapacityExceeded", err)
	}
	if err := s.Put(ctx, kvstore.JoinPath(base, "small"), map[string]any{"value": "x"}); err != nil {
		t.Fatalf("Put of small entry: %s", err)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
