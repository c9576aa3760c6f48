// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package openbao implements kvstore.Store on top of a KV version 2 secrets
// engine of OpenBao or HashiCorp Vault.
package openbao

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	openbao "github.com/openbao/openbao/api/v2"

	"github.com/opentofu/tofu-vault-backend/internal/httpclient"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/logging"
)

// Config describes how to reach the KV engine.
type Config struct {
	// Address of the server, for example "https://bao.example.com:8200".
	// When empty the BAO_ADDR and VAULT_ADDR environment variables apply.
	Address string

	// Mount is where the KV version 2 engine is mounted, without slashes.
	Mount string

	// Namespace is sent with every request when set.
	Namespace string
}

var errNoToken = errors.New("no token was provided and none is set in the environment")

// Dialer creates per-token sessions that share one HTTP client.
type Dialer struct {
	client *openbao.Client
	mount  string

	// defaultToken is the token found in the environment when the dialer
	// was created. It's used when Dial is given no token.
	defaultToken string
}

var _ kvstore.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer for cfg.
func NewDialer(ctx context.Context, cfg Config) (*Dialer, error) {
	if cfg.Mount == "" {
		return nil, errors.New("the KV mount must not be empty")
	}

	// DefaultConfig reads BAO_ADDR and some other optional env variables.
	config := openbao.DefaultConfig()
	if config.Error != nil {
		return nil, fmt.Errorf("reading OpenBao client configuration: %w", config.Error)
	}
	if cfg.Address != "" {
		config.Address = cfg.Address
	}

	// Chunk size probing relies on the first capacity error coming straight
	// back, so the client must not retry on its own.
	config.MaxRetries = 0
	config.Logger = logging.HCLogger().Named("openbao")
	config.HttpClient.Transport = httpclient.WrapTransport(ctx, config.HttpClient.Transport)

	// NewClient reads BAO_TOKEN and some other optional env variables.
	client, err := openbao.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("creating OpenBao client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	d := &Dialer{
		client:       client,
		mount:        cfg.Mount,
		defaultToken: client.Token(),
	}
	client.ClearToken()

	log.Printf("[DEBUG] OpenBao dialer for %s, KV mount %q", config.Address, cfg.Mount)
	return d, nil
}

// Dial returns a session that authenticates with token. An empty token
// falls back to BAO_TOKEN or VAULT_TOKEN.
func (d *Dialer) Dial(_ context.Context, token string) (kvstore.Store, error) {
	if token == "" {
		token = d.defaultToken
	}
	if token == "" {
		return nil, kvstore.NewError("dial", d.mount, kvstore.ErrForbidden, errNoToken)
	}

	client, err := d.client.Clone()
	if err != nil {
		return nil, fmt.Errorf("cloning OpenBao client: %w", err)
	}
	client.SetToken(token)
	if ns := d.client.Namespace(); ns != "" {
		client.SetNamespace(ns)
	}
	return NewStore(client, d.mount), nil
}

// Store is a kvstore.Store session bound to one token.
type Store struct {
	client *openbao.Client
	kv     *openbao.KVv2
	mount  string
}

var _ kvstore.Store = (*Store)(nil)

// NewStore returns a Store that uses client against the KV engine at mount.
func NewStore(client *openbao.Client, mount string) *Store {
	return &Store{
		client: client,
		kv:     client.KVv2(mount),
		mount:  mount,
	}
}

func (s *Store) Put(ctx context.Context, path string, data map[string]any) error {
	_, err := s.kv.Put(ctx, path, data)
	return translateError("put", path, err)
}

func (s *Store) Get(ctx context.Context, path string) (*kvstore.Secret, error) {
	secret, err := s.kv.Get(ctx, path)
	if err != nil {
		return nil, translateError("get", path, err)
	}

	ret := &kvstore.Secret{Data: secret.Data}
	if meta := secret.VersionMetadata; meta != nil {
		ret.Version = meta.Version
		ret.DeletionTime = meta.DeletionTime
		if meta.Destroyed && ret.DeletionTime.IsZero() {
			// A destroyed version has no data left, which is all a reader
			// cares about.
			ret.DeletionTime = meta.CreatedTime
		}
	}
	if ret.Deleted() {
		ret.Data = nil
	}
	return ret, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	secret, err := s.client.Logical().ListWithContext(ctx, s.metadataPath(prefix))
	if err != nil {
		return nil, translateError("list", prefix, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrNotFound, nil)
	}

	raw, ok := secret.Data["keys"].([]any)
	if !ok || len(raw) == 0 {
		return nil, kvstore.NewError("list", prefix, kvstore.ErrNotFound, nil)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		key, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("list %s: unexpected key %#v in response", prefix, k)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) DeleteLatest(ctx context.Context, path string) error {
	return translateError("delete", path, s.kv.Delete(ctx, path))
}

func (s *Store) Create(ctx context.Context, path string, data map[string]any) error {
	_, err := s.kv.Put(ctx, path, data, openbao.WithCheckAndSet(0))
	return translateError("create", path, err)
}

func (s *Store) Destroy(ctx context.Context, path string) error {
	// Deleting metadata succeeds whether or not anything exists, so look
	// first to be able to report a missing secret.
	secret, err := s.client.Logical().ReadWithContext(ctx, s.metadataPath(path))
	if err != nil {
		return translateError("destroy", path, err)
	}
	if secret == nil {
		return kvstore.NewError("destroy", path, kvstore.ErrNotFound, nil)
	}
	return translateError("destroy", path, s.kv.DeleteMetadata(ctx, path))
}

func (s *Store) metadataPath(path string) string {
	return s.mount + "/metadata/" + strings.TrimPrefix(path, "/")
}
