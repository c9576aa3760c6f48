// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package consul implements kvstore.Store on Consul's key-value store.
//
// Consul keeps a single value per key, so a secret is stored as a JSON
// document carrying its data, a deletion marker and a version counter, and
// a soft delete replaces the document with a tombstone.
package consul

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/opentofu/tofu-vault-backend/internal/httpclient"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

// Config describes how to reach Consul.
type Config struct {
	// Address of the agent, for example "127.0.0.1:8500". When empty the
	// CONSUL_HTTP_ADDR environment variable applies.
	Address string

	// Prefix is prepended to every key, without slashes.
	Prefix string

	Datacenter string
}

// Dialer creates per-token sessions that share one Consul client.
type Dialer struct {
	client       *consulapi.Client
	prefix       string
	defaultToken string
}

var _ kvstore.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer for cfg.
func NewDialer(ctx context.Context, cfg Config) (*Dialer, error) {
	// DefaultConfig reads CONSUL_HTTP_ADDR, CONSUL_HTTP_TOKEN and friends.
	config := consulapi.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	if cfg.Datacenter != "" {
		config.Datacenter = cfg.Datacenter
	}
	// NewHttpClient applies the TLS settings from the environment, which
	// NewClient would skip for a client we supply ourselves.
	httpClient, err := consulapi.NewHttpClient(config.Transport, config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("configuring Consul TLS: %w", err)
	}
	httpClient.Transport = httpclient.WrapTransport(ctx, httpClient.Transport)
	config.HttpClient = httpClient

	client, err := consulapi.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("creating Consul client: %w", err)
	}

	log.Printf("[DEBUG] Consul dialer for %s, key prefix %q", config.Address, cfg.Prefix)
	return &Dialer{
		client:       client,
		prefix:       strings.Trim(cfg.Prefix, "/"),
		defaultToken: config.Token,
	}, nil
}

// Dial returns a session that sends token as its ACL token. An empty token
// falls back to CONSUL_HTTP_TOKEN, or to anonymous access.
func (d *Dialer) Dial(_ context.Context, token string) (kvstore.Store, error) {
	if token == "" {
		token = d.defaultToken
	}
	return &Store{kv: d.client.KV(), prefix: d.prefix, token: token, now: time.Now}, nil
}

// Store is a kvstore.Store session bound to one ACL token.
type Store struct {
	kv     *consulapi.KV
	prefix string
	token  string
	now    func() time.Time
}

var _ kvstore.Store = (*Store)(nil)

// entry is the document stored under each key.
type entry struct {
	Data        map[string]any `json:"data"`
	DeletedTime *time.Time     `json:"deleted_time,omitempty"`
	Version     int            `json:"version"`
}

func (s *Store) key(path string) string {
	return kvstore.JoinPath(s.prefix, path)
}

func (s *Store) queryOptions(ctx context.Context) *consulapi.QueryOptions {
	return (&consulapi.QueryOptions{Token: s.token}).WithContext(ctx)
}

func (s *Store) writeOptions(ctx context.Context) *consulapi.WriteOptions {
	return (&consulapi.WriteOptions{Token: s.token}).WithContext(ctx)
}

// read returns the stored entry and its modify index, or a nil entry if the
// key doesn't exist.
func (s *Store) read(ctx context.Context, op, path string) (*entry, uint64, error) {
	pair, _, err := s.kv.Get(s.key(path), s.queryOptions(ctx))
	if err != nil {
		return nil, 0, translateError(op, path, err)
	}
	if pair == nil {
		return nil, 0, nil
	}
	var e entry
	if err := json.Unmarshal(pair.Value, &e); err != nil {
		return nil, 0, fmt.Errorf("%s %s: decoding stored entry: %w", op, path, err)
	}
	return &e, pair.ModifyIndex, nil
}

// write stores e. With cas set, the write only happens if the key's modify
// index still equals index, where zero means the key must not exist.
func (s *Store) write(ctx context.Context, op, path string, e entry, cas bool, index uint64) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	pair := &consulapi.KVPair{Key: s.key(path), Value: raw, ModifyIndex: index}
	if !cas {
		_, err := s.kv.Put(pair, s.writeOptions(ctx))
		return translateError(op, path, err)
	}

	ok, _, err := s.kv.CAS(pair, s.writeOptions(ctx))
	if err != nil {
		return translateError(op, path, err)
	}
	if !ok {
		return kvstore.NewError(op, path, kvstore.ErrAlreadyExists, nil)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, path string, data map[string]any) error {
	current, _, err := s.read(ctx, "put", path)
	if err != nil {
		return err
	}
	version := 1
	if current != nil {
		version = current.Version + 1
	}
	return s.write(ctx, "put", path, entry{Data: data, Version: version}, false, 0)
}

func (s *Store) Get(ctx context.Context, path string) (*kvstore.Secret, error) {
	e, _, err := s.read(ctx, "get", path)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, kvstore.NewError("get", path, kvstore.ErrNotFound, nil)
	}
	ret := &kvstore.Secret{Version: e.Version}
	if e.DeletedTime != nil {
		ret.DeletionTime = *e.DeletedTime
	} else {
		ret.Data = e.Data
	}
	return ret, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	dir := s.key(prefix) + "/"
	keys, _, err := s.kv.Keys(dir, "/", s.queryOptions(ctx))
	if err != nil {
		return nil, translateError("list", prefix, err)
	}

	ret := make([]string, 0, len(keys))
	for _, k := range keys {
		if name := strings.TrimPrefix(k, dir); name != "" {
			ret = append(ret, name)
		}
	}
	if len(ret) == 0 {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrNotFound, nil)
	}
	return ret, nil
}

func (s *Store) DeleteLatest(ctx context.Context, path string) error {
	current, _, err := s.read(ctx, "delete", path)
	if err != nil {
		return err
	}
	if current == nil {
		return kvstore.NewError("delete", path, kvstore.ErrNotFound, nil)
	}
	if current.DeletedTime != nil {
		return nil
	}
	now := s.now().UTC()
	return s.write(ctx, "delete", path, entry{DeletedTime: &now, Version: current.Version}, false, 0)
}

func (s *Store) Create(ctx context.Context, path string, data map[string]any) error {
	return s.write(ctx, "create", path, entry{Data: data, Version: 1}, true, 0)
}

func (s *Store) Destroy(ctx context.Context, path string) error {
	current, _, err := s.read(ctx, "destroy", path)
	if err != nil {
		return err
	}
	if current == nil {
		return kvstore.NewError("destroy", path, kvstore.ErrNotFound, nil)
	}
	_, err = s.kv.Delete(s.key(path), s.writeOptions(ctx))
	return translateError("destroy", path, err)
}

// errUnexpectedResponse is the kind of errors the Consul client reports
// that don't fit any other.
var errUnexpectedResponse = errors.New("Consul request failed")
