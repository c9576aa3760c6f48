// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package filesystem implements kvstore.Store as JSON files in a directory
// tree. It's meant for single-host setups and for trying the service out.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

const (
	fileExt    = ".json"
	tempPrefix = ".tmp-"
)

// Store keeps each secret in <Root>/<path>.json.
//
// Only the latest version of each secret is kept; older versions are
// overwritten.
type Store struct {
	fs   afero.Fs
	root string

	// MaxEntrySize, when positive, is the largest JSON-encoded secret Put
	// and Create accept.
	MaxEntrySize int

	// mu serializes writers so that version numbers and exclusive creates
	// are consistent within the process.
	mu  sync.Mutex
	now func() time.Time
}

var _ kvstore.Store = (*Store)(nil)

// New returns a Store rooted at root on the given filesystem.
func New(fsys afero.Fs, root string) *Store {
	return &Store{fs: fsys, root: filepath.Clean(root), now: time.Now}
}

// NewOS returns a Store rooted at dir on the host filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

// Dialer returns a kvstore.Dialer that hands out s for every token. Tokens
// are not checked.
func (s *Store) Dialer() kvstore.Dialer {
	return kvstore.DialerFunc(func(context.Context, string) (kvstore.Store, error) {
		return s, nil
	})
}

// document is the content of a secret's file.
type document struct {
	Data        map[string]any `json:"data"`
	DeletedTime *time.Time     `json:"deleted_time,omitempty"`
	Version     int            `json:"version"`
}

var errInvalidPath = errors.New("invalid secret path")

// filename returns the file holding the secret at path.
func (s *Store) filename(op, path string) (string, error) {
	clean, err := s.dirname(op, path)
	if err != nil {
		return "", err
	}
	if clean == s.root {
		return "", fmt.Errorf("%s %q: %w", op, path, errInvalidPath)
	}
	return clean + fileExt, nil
}

// dirname returns the directory holding the secrets below path.
func (s *Store) dirname(op, path string) (string, error) {
	for _, part := range strings.Split(path, "/") {
		if part == ".." || part == "." || strings.HasPrefix(part, tempPrefix) {
			return "", fmt.Errorf("%s %q: %w", op, path, errInvalidPath)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.Trim(path, "/"))), nil
}

func (s *Store) read(op, path string) (*document, error) {
	name, err := s.filename(op, path)
	if err != nil {
		return nil, err
	}
	raw, err := afero.ReadFile(s.fs, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, kvstore.NewError(op, path, kvstore.ErrNotFound, nil)
	}
	if err != nil {
		return nil, kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s %s: decoding %s: %w", op, path, name, err)
	}
	return &doc, nil
}

func (s *Store) encode(op, path string, doc document) ([]byte, error) {
	if s.MaxEntrySize > 0 && doc.Data != nil {
		raw, err := json.Marshal(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", op, path, err)
		}
		if len(raw) > s.MaxEntrySize {
			return nil, kvstore.NewError(op, path, kvstore.ErrCapacityExceeded,
				fmt.Errorf("entry of %d bytes exceeds the %d byte limit", len(raw), s.MaxEntrySize))
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, path, err)
	}
	return raw, nil
}

// replace atomically replaces the secret's file with doc.
func (s *Store) replace(op, path string, doc document) error {
	raw, err := s.encode(op, path, doc)
	if err != nil {
		return err
	}
	name, err := s.filename(op, path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(name)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, tempPrefix+"*")
	if err != nil {
		return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
	}
	_, err = tmp.Write(raw)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Rename(tmp.Name(), name)
	}
	if err != nil {
		_ = s.fs.Remove(tmp.Name())
		return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Put(_ context.Context, path string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	current, err := s.read("put", path)
	switch {
	case err == nil:
		version = current.Version + 1
	case !errors.Is(err, kvstore.ErrNotFound):
		return err
	}
	if data == nil {
		data = map[string]any{}
	}
	return s.replace("put", path, document{Data: data, Version: version})
}

func (s *Store) Get(_ context.Context, path string) (*kvstore.Secret, error) {
	doc, err := s.read("get", path)
	if err != nil {
		return nil, err
	}
	ret := &kvstore.Secret{Version: doc.Version}
	if doc.DeletedTime != nil {
		ret.DeletionTime = *doc.DeletedTime
	} else {
		ret.Data = doc.Data
	}
	return ret, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	dir, err := s.dirname("list", prefix)
	if err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrNotFound, nil)
	}
	if err != nil {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrUnavailable, err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasPrefix(name, tempPrefix):
			continue
		case entry.IsDir():
			keys = append(keys, name+"/")
		case strings.HasSuffix(name, fileExt):
			keys = append(keys, strings.TrimSuffix(name, fileExt))
		}
	}
	if len(keys) == 0 {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrNotFound, nil)
	}
	return keys, nil
}

func (s *Store) DeleteLatest(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read("delete", path)
	if err != nil {
		return err
	}
	if current.DeletedTime != nil {
		return nil
	}
	now := s.now().UTC()
	return s.replace("delete", path, document{DeletedTime: &now, Version: current.Version})
}

func (s *Store) Create(_ context.Context, path string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data == nil {
		data = map[string]any{}
	}
	raw, err := s.encode("create", path, document{Data: data, Version: 1})
	if err != nil {
		return err
	}
	name, err := s.filename("create", path)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(name), 0o700); err != nil {
		return kvstore.NewError("create", path, kvstore.ErrUnavailable, err)
	}

	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return kvstore.NewError("create", path, kvstore.ErrAlreadyExists, nil)
	}
	if err != nil {
		return kvstore.NewError("create", path, kvstore.ErrUnavailable, err)
	}
	_, err = f.Write(raw)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(name)
		return kvstore.NewError("create", path, kvstore.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Destroy(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.filename("destroy", path)
	if err != nil {
		return err
	}
	err = s.fs.Remove(name)
	if errors.Is(err, fs.ErrNotExist) {
		return kvstore.NewError("destroy", path, kvstore.ErrNotFound, nil)
	}
	if err != nil {
		return kvstore.NewError("destroy", path, kvstore.ErrUnavailable, err)
	}
	return nil
}
