// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package pg implements kvstore.Store on a Postgres table.
//
// Each secret is one row keyed by its path. The row keeps only the latest
// version: a version counter, the JSON-encoded data, and the time of a soft
// delete, which also clears the data.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

// Config describes the database and where the secrets live in it.
type Config struct {
	// ConnStr is a lib/pq connection string or postgres:// URL.
	ConnStr string

	Schema string
	Table  string

	// SkipSchemaCreation leaves creating the schema and table to an
	// administrator.
	SkipSchemaCreation bool
}

// Store is a kvstore.Store on one table. Access is governed by the
// credentials of the connection string; store tokens are not checked.
type Store struct {
	db    *sql.DB
	table string

	// MaxEntrySize, when positive, is the largest JSON-encoded secret Put
	// and Create accept.
	MaxEntrySize int
}

var _ kvstore.Store = (*Store)(nil)

// Open connects to the database described by cfg and prepares its table.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("opening Postgres connection: %w", err)
	}
	s := New(db, cfg.Schema, cfg.Table)
	if !cfg.SkipSchemaCreation {
		if err := s.createSchema(ctx, cfg.Schema); err != nil {
			db.Close()
			return nil, err
		}
	}
	log.Printf("[DEBUG] Postgres store on table %s", s.table)
	return s, nil
}

// New returns a Store using the table schema.table of db.
func New(db *sql.DB, schema, table string) *Store {
	return &Store{
		db:    db,
		table: pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table),
	}
}

// Dialer returns a kvstore.Dialer that hands out s for every token.
func (s *Store) Dialer() kvstore.Dialer {
	return kvstore.DialerFunc(func(context.Context, string) (kvstore.Store, error) {
		return s, nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema(ctx context.Context, schema string) error {
	queries := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(schema)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			path text PRIMARY KEY,
			version integer NOT NULL DEFAULT 1,
			data text,
			deleted_at timestamptz
			)`, s.table),
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return translateError("init", schema, err)
		}
	}
	return nil
}

func (s *Store) encode(op, path string, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", op, path, err)
	}
	if s.MaxEntrySize > 0 && len(raw) > s.MaxEntrySize {
		return "", kvstore.NewError(op, path, kvstore.ErrCapacityExceeded,
			fmt.Errorf("entry of %d bytes exceeds the %d byte limit", len(raw), s.MaxEntrySize))
	}
	return string(raw), nil
}

func (s *Store) Put(ctx context.Context, path string, data map[string]any) error {
	raw, err := s.encode("put", path, data)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s AS t (path, version, data) VALUES ($1, 1, $2)
		ON CONFLICT (path) DO UPDATE SET version = t.version + 1, data = EXCLUDED.data, deleted_at = NULL`, s.table)
	_, err = s.db.ExecContext(ctx, query, path, raw)
	return translateError("put", path, err)
}

func (s *Store) Get(ctx context.Context, path string) (*kvstore.Secret, error) {
	var (
		raw     sql.NullString
		deleted sql.NullTime
		ret     kvstore.Secret
	)
	query := fmt.Sprintf(`SELECT version, data, deleted_at FROM %s WHERE path = $1`, s.table)
	err := s.db.QueryRowContext(ctx, query, path).Scan(&ret.Version, &raw, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kvstore.NewError("get", path, kvstore.ErrNotFound, nil)
	}
	if err != nil {
		return nil, translateError("get", path, err)
	}

	if deleted.Valid {
		ret.DeletionTime = deleted.Time
		return &ret, nil
	}
	if raw.Valid {
		if err := json.Unmarshal([]byte(raw.String), &ret.Data); err != nil {
			return nil, fmt.Errorf("get %s: decoding stored data: %w", path, err)
		}
	}
	return &ret, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.Trim(prefix, "/") + "/"
	query := fmt.Sprintf(`SELECT path FROM %s WHERE path LIKE $1 ESCAPE '\'`, s.table)
	rows, err := s.db.QueryContext(ctx, query, escapeLike(dir)+"%")
	if err != nil {
		return nil, translateError("list", prefix, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, translateError("list", prefix, err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("list", prefix, err)
	}

	keys := childNames(dir, paths)
	if len(keys) == 0 {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrNotFound, nil)
	}
	return keys, nil
}

func (s *Store) DeleteLatest(ctx context.Context, path string) error {
	query := fmt.Sprintf(`UPDATE %s SET data = NULL, deleted_at = COALESCE(deleted_at, $2) WHERE path = $1`, s.table)
	res, err := s.db.ExecContext(ctx, query, path, time.Now().UTC())
	return s.checkAffected("delete", path, res, err, kvstore.ErrNotFound)
}

func (s *Store) Create(ctx context.Context, path string, data map[string]any) error {
	raw, err := s.encode("create", path, data)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (path, version, data) VALUES ($1, 1, $2) ON CONFLICT (path) DO NOTHING`, s.table)
	res, err := s.db.ExecContext(ctx, query, path, raw)
	return s.checkAffected("create", path, res, err, kvstore.ErrAlreadyExists)
}

func (s *Store) Destroy(ctx context.Context, path string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE path = $1`, s.table)
	res, err := s.db.ExecContext(ctx, query, path)
	return s.checkAffected("destroy", path, res, err, kvstore.ErrNotFound)
}

// checkAffected reports kind when a statement that should have touched one
// row touched none.
func (s *Store) checkAffected(op, path string, res sql.Result, err error, kind error) error {
	if err != nil {
		return translateError(op, path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translateError(op, path, err)
	}
	if n == 0 {
		return kvstore.NewError(op, path, kind, nil)
	}
	return nil
}

// escapeLike escapes the LIKE wildcards in s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// childNames returns the sorted names of the entries directly below dir,
// with a trailing "/" for nested directories.
func childNames(dir string, paths []string) []string {
	seen := map[string]struct{}{}
	for _, path := range paths {
		rest, ok := strings.CutPrefix(path, dir)
		if !ok || rest == "" {
			continue
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
