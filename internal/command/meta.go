// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/opentofu/tofu-vault-backend/internal/chunkstate"
	"github.com/opentofu/tofu-vault-backend/internal/config"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/consul"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/filesystem"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/inmem"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/kubernetes"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/openbao"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/pg"
	"github.com/opentofu/tofu-vault-backend/internal/logging"
)

// Meta are the meta-options that are available on all or most commands.
type Meta struct {
	// Ui is where all user-facing output goes.
	Ui cli.Ui

	// CallerContext is the context the command was started with, carrying
	// the root tracing span. Defaults to context.Background.
	CallerContext context.Context

	// ShutdownCh receives a value whenever the process is asked to stop.
	ShutdownCh <-chan struct{}

	// testingDialer, when set, replaces the configured store.
	testingDialer kvstore.Dialer
}

func (m *Meta) callerContext() context.Context {
	if m.CallerContext == nil {
		return context.Background()
	}
	return m.CallerContext
}

// CommandContext returns a context that is cancelled on the first value
// from ShutdownCh.
func (m *Meta) CommandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(m.callerContext())
	if m.ShutdownCh == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-m.ShutdownCh:
			log.Printf("[INFO] Received interrupt, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// parseConfig resolves the configuration from args and applies its log
// level. It reports problems to the Ui and returns false on failure.
func (m *Meta) parseConfig(name string, args []string, extra func(*flag.FlagSet)) (*config.Config, []string, bool) {
	cfg, rest, err := config.Parse(name, args, extra)
	if err != nil {
		m.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err))
		return nil, nil, false
	}
	if cfg.LogLevel != "" {
		if err := logging.SetLevel(strings.ToUpper(cfg.LogLevel)); err != nil {
			m.Ui.Error(err.Error())
			return nil, nil, false
		}
	}
	return cfg, rest, true
}

// dialer returns the store dialer selected by cfg.
func (m *Meta) dialer(ctx context.Context, cfg *config.Config) (kvstore.Dialer, error) {
	if m.testingDialer != nil {
		return m.testingDialer, nil
	}

	switch cfg.Store {
	case config.StoreVault, config.StoreOpenBao:
		return openbao.NewDialer(ctx, openbao.Config{
			Address:   cfg.Vault.Address,
			Mount:     cfg.Vault.Mount,
			Namespace: cfg.Vault.Namespace,
		})
	case config.StoreConsul:
		return consul.NewDialer(ctx, consul.Config{
			Address:    cfg.Consul.Address,
			Prefix:     cfg.Consul.Prefix,
			Datacenter: cfg.Consul.Datacenter,
		})
	case config.StoreKubernetes:
		return kubernetes.NewDialer(ctx, kubernetes.Config{
			ConfigPath: cfg.Kubernetes.ConfigPath,
			Context:    cfg.Kubernetes.Context,
			Namespace:  cfg.Kubernetes.Namespace,
			Prefix:     cfg.Kubernetes.Prefix,
		})
	case config.StorePostgres:
		store, err := pg.Open(ctx, pg.Config{
			ConnStr:            cfg.Postgres.ConnStr,
			Schema:             cfg.Postgres.Schema,
			Table:              cfg.Postgres.Table,
			SkipSchemaCreation: cfg.Postgres.SkipSchemaCreation,
		})
		if err != nil {
			return nil, err
		}
		store.MaxEntrySize = cfg.Postgres.MaxEntrySize
		return store.Dialer(), nil
	case config.StoreFilesystem:
		store := filesystem.NewOS(cfg.Filesystem.Root)
		store.MaxEntrySize = cfg.Filesystem.MaxEntrySize
		return store.Dialer(), nil
	case config.StoreInmem:
		log.Printf("[WARN] Using the in-memory store; states are lost when the process exits")
		return inmem.New().Dialer(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// engine returns a state engine for the store selected by cfg.
func (m *Meta) engine(ctx context.Context, cfg *config.Config) (*chunkstate.Engine, error) {
	dialer, err := m.dialer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring the %s store: %w", cfg.Store, err)
	}
	return chunkstate.New(dialer, cfg.ChunkOptions())
}

// layoutArg turns a secrets path argument into a layout.
func layoutArg(arg string) (chunkstate.Layout, error) {
	base := config.NormalizePath(arg)
	if base == "" {
		return chunkstate.Layout{}, fmt.Errorf("the secrets path must not be empty")
	}
	return chunkstate.Layout{Base: base}, nil
}
