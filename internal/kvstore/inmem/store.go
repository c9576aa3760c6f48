// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package inmem is a versioned secret store held in memory. It is used by
// tests and for trying the service out without a real secret store.
package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

// Store is an in-memory kvstore.Store.
//
// The zero value is not usable; call New.
type Store struct {
	// MaxEntrySize, when positive, is the largest JSON-encoded entry Put and
	// Create accept.
	MaxEntrySize int

	// Hook, when set, is called before every operation and may return an
	// error to make that operation fail without touching the data.
	Hook func(op, path string) error

	mu      sync.Mutex
	secrets map[string]*secret
	calls   map[string]int
	now     func() time.Time
}

type secret struct {
	versions []version
}

type version struct {
	data    map[string]any
	deleted time.Time
}

var _ kvstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		secrets: map[string]*secret{},
		calls:   map[string]int{},
		now:     time.Now,
	}
}

// Dialer returns a kvstore.Dialer that hands out s for every token.
func (s *Store) Dialer() kvstore.Dialer {
	return kvstore.DialerFunc(func(context.Context, string) (kvstore.Store, error) {
		return s, nil
	})
}

// Calls returns how many times the named operation has been invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Paths returns the paths of every secret in the store, sorted.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.secrets))
}

// Versions returns how many versions the secret at path has.
func (s *Store) Versions(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec, ok := s.secrets[path]; ok {
		return len(sec.versions)
	}
	return 0
}

func (s *Store) begin(op, path string) error {
	s.calls[op]++
	if s.Hook != nil {
		return s.Hook(op, path)
	}
	return nil
}

func (s *Store) Put(_ context.Context, path string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("put", path); err != nil {
		return err
	}
	return s.put("put", path, data)
}

func (s *Store) put(op, path string, data map[string]any) error {
	stored, err := s.copyChecked(op, path, data)
	if err != nil {
		return err
	}
	sec, ok := s.secrets[path]
	if !ok {
		sec = &secret{}
		s.secrets[path] = sec
	}
	sec.versions = append(sec.versions, version{data: stored})
	return nil
}

// copyChecked enforces MaxEntrySize and returns a deep copy of data, so that
// callers can't mutate what's stored.
func (s *Store) copyChecked(op, path string, data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, path, err)
	}
	if s.MaxEntrySize > 0 && len(raw) > s.MaxEntrySize {
		return nil, kvstore.NewError(op, path, kvstore.ErrCapacityExceeded,
			fmt.Errorf("entry of %d bytes exceeds the %d byte limit", len(raw), s.MaxEntrySize))
	}
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, path, err)
	}
	return stored, nil
}

func (s *Store) Get(_ context.Context, path string) (*kvstore.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("get", path); err != nil {
		return nil, err
	}

	sec, ok := s.secrets[path]
	if !ok || len(sec.versions) == 0 {
		return nil, kvstore.NewError("get", path, kvstore.ErrNotFound, nil)
	}
	latest := sec.versions[len(sec.versions)-1]
	ret := &kvstore.Secret{
		Version:      len(sec.versions),
		DeletionTime: latest.deleted,
	}
	if latest.deleted.IsZero() {
		ret.Data = maps.Clone(latest.data)
	}
	return ret, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("list", prefix); err != nil {
		return nil, err
	}

	dir := strings.TrimSuffix(prefix, "/") + "/"
	seen := map[string]struct{}{}
	for path := range s.secrets {
		rest, ok := strings.CutPrefix(path, dir)
		if !ok || rest == "" {
			continue
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrNotFound, nil)
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (s *Store) DeleteLatest(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("delete", path); err != nil {
		return err
	}

	sec, ok := s.secrets[path]
	if !ok || len(sec.versions) == 0 {
		return kvstore.NewError("delete", path, kvstore.ErrNotFound, nil)
	}
	latest := &sec.versions[len(sec.versions)-1]
	if latest.deleted.IsZero() {
		latest.deleted = s.now().UTC()
		latest.data = nil
	}
	return nil
}

func (s *Store) Create(_ context.Context, path string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("create", path); err != nil {
		return err
	}

	if sec, ok := s.secrets[path]; ok && len(sec.versions) > 0 {
		return kvstore.NewError("create", path, kvstore.ErrAlreadyExists, nil)
	}
	return s.put("create", path, data)
}

func (s *Store) Destroy(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("destroy", path); err != nil {
		return err
	}

	if _, ok := s.secrets[path]; !ok {
		return kvstore.NewError("destroy", path, kvstore.ErrNotFound, nil)
	}
	delete(s.secrets, path)
	return nil
}
