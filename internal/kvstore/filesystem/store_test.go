// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package filesystem

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/kvstoretest"
)

func TestStore_impl(t *testing.T) {
	var _ kvstore.Store = new(Store)
}

func TestStore(t *testing.T) {
	kvstoretest.TestStore(t, New(afero.NewMemMapFs(), "/var/lib/tofu-vault"), "tofu/test")
}

func TestStore_osFilesystem(t *testing.T) {
	kvstoretest.TestStore(t, NewOS(t.TempDir()), "tofu/test")
}

func TestStore_capacity(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	s.MaxEntrySize = 64
	kvstoretest.TestStoreCapacity(t, s, "tofu/capacity", 64)
}

func TestStore_layout(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := New(fsys, "/data")
	ctx := context.Background()

	if err := s.Put(ctx, "tofu/state/0", map[string]any{"value": "x"}); err != nil {
		t.Fatal(err)
	}
	ok, err := afero.Exists(fsys, "/data/tofu/state/0.json")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("secret file was not created where expected")
	}

	// Temporary files never show up in listings.
	if err := afero.WriteFile(fsys, "/data/tofu/state/.tmp-123", []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	keys, err := s.List(ctx, "tofu/state")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "0" {
		t.Fatalf("wrong keys %q", keys)
	}
}

func TestStore_versions(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.Put(ctx, "tofu/versioned", map[string]any{"value": "x"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteLatest(ctx, "tofu/versioned"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "tofu/versioned")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 3 || !got.Deleted() {
		t.Fatalf("got version %d deleted=%t; want version 3 deleted", got.Version, got.Deleted())
	}
}

func TestStore_invalidPaths(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	for _, path := range []string{"../escape", "tofu/../../escape", "tofu/./x", "tofu/.tmp-1", ""} {
		t.Run(path, func(t *testing.T) {
			err := s.Put(ctx, path, map[string]any{"value": "x"})
			if !errors.Is(err, errInvalidPath) {
				t.Fatalf("got %v, want errInvalidPath", err)
			}
		})
	}
}
