// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package config resolves the service configuration from defaults, an
// optional HCL file, the environment and command line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"log"
	"slices"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/mitchellh/go-homedir"

	"github.com/opentofu/tofu-vault-backend/internal/chunkstate"
	"github.com/opentofu/tofu-vault-backend/internal/logging"
)

// Names of the supported secret stores.
const (
	StoreVault      = "vault"
	StoreOpenBao    = "openbao"
	StoreConsul     = "consul"
	StoreKubernetes = "kubernetes"
	StorePostgres   = "pg"
	StoreFilesystem = "filesystem"
	StoreInmem      = "inmem"
)

var storeNames = []string{StoreVault, StoreOpenBao, StoreConsul, StoreKubernetes, StorePostgres, StoreFilesystem, StoreInmem}

// Config is the resolved configuration.
type Config struct {
	// Store selects the secret store implementation.
	Store string

	// Host and Port are where the HTTP server listens. Port 0 picks any
	// free port.
	Host string
	Port int

	// ChunkSize is the largest entry the store accepts in bytes, or
	// chunkstate.ChunkSizeAuto to probe for it.
	ChunkSize   int
	ChunkMargin int

	// LogLevel, when set, overrides the level taken from TOFU_VAULT_LOG.
	LogLevel string

	// Token is the credential command line operations use. It is only
	// read from flags and the environment, never from the config file.
	Token string

	Vault      VaultConfig
	Consul     ConsulConfig
	Kubernetes KubernetesConfig
	Postgres   PostgresConfig
	Filesystem FilesystemConfig
}

// VaultConfig configures the OpenBao and Vault store.
type VaultConfig struct {
	Address   string
	Mount     string
	Namespace string
}

// ConsulConfig configures the Consul store.
type ConsulConfig struct {
	Address    string
	Prefix     string
	Datacenter string
}

// KubernetesConfig configures the Kubernetes Secrets store.
type KubernetesConfig struct {
	ConfigPath string
	Context    string
	Namespace  string
	Prefix     string
}

// PostgresConfig configures the Postgres store. The connection string is
// read from flags and the environment only, as it usually carries a
// password.
type PostgresConfig struct {
	ConnStr            string
	Schema             string
	Table              string
	SkipSchemaCreation bool
	MaxEntrySize       int
}

// FilesystemConfig configures the filesystem store.
type FilesystemConfig struct {
	Root         string
	MaxEntrySize int
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Store:       StoreVault,
		Host:        "127.0.0.1",
		Port:        8300,
		ChunkSize:   chunkstate.ChunkSizeAuto,
		ChunkMargin: chunkstate.DefaultMargin,
		Vault: VaultConfig{
			Address: "127.0.0.1:8200",
			Mount:   "secret/",
		},
		Consul: ConsulConfig{
			Address: "127.0.0.1:8500",
			Prefix:  "tofu-vault-backend",
		},
		Kubernetes: KubernetesConfig{
			Prefix: "tofu-vault",
		},
		Postgres: PostgresConfig{
			Schema: "tofu_vault_backend",
			Table:  "secrets",
		},
		Filesystem: FilesystemConfig{
			Root: "~/.local/share/tofu-vault-backend",
		},
	}
}

// ChunkOptions returns the chunking options for the state engine.
func (c *Config) ChunkOptions() chunkstate.Options {
	return chunkstate.Options{
		ChunkSize: c.ChunkSize,
		Margin:    c.ChunkMargin,
	}
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Normalize coerces values into their canonical form, logging every value
// it changes.
func (c *Config) Normalize() {
	c.Vault.Address = coerce("store address", c.Vault.Address, NormalizeAddress)
	c.Vault.Mount = coerce("mount point", c.Vault.Mount, NormalizePath)
	c.Consul.Prefix = coerce("Consul key prefix", c.Consul.Prefix, NormalizePath)
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if root, err := homedir.Expand(c.Filesystem.Root); err == nil {
		c.Filesystem.Root = root
	}
}

func coerce(what, value string, fn func(string) string) string {
	coerced := fn(value)
	if coerced != value {
		log.Printf("[DEBUG] Coerced %s %q into %q", what, value, coerced)
	}
	return coerced
}

// NormalizeAddress prefixes https:// to an address that doesn't already
// start with "http".
func NormalizeAddress(addr string) string {
	if strings.HasPrefix(addr, "http") {
		return addr
	}
	return "https://" + addr
}

// NormalizePath strips leading and trailing slashes.
func NormalizePath(path string) string {
	return strings.Trim(path, "/")
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if !slices.Contains(storeNames, c.Store) {
		result = multierror.Append(result, fmt.Errorf("unknown store %q; valid stores are %s", c.Store, strings.Join(storeNames, ", ")))
	}
	if c.Port < 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("port %d is out of range", c.Port))
	}
	if c.ChunkSize < chunkstate.ChunkSizeAuto {
		result = multierror.Append(result, fmt.Errorf("chunk size must be positive, or %d to probe", chunkstate.ChunkSizeAuto))
	} else if err := c.ChunkOptions().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.LogLevel != "" && !slices.Contains(logging.ValidLevels, strings.ToUpper(c.LogLevel)) {
		result = multierror.Append(result, fmt.Errorf("invalid log level %q; valid levels are %s", c.LogLevel, strings.Join(logging.ValidLevels, ", ")))
	}

	switch c.Store {
	case StoreVault, StoreOpenBao:
		if c.Vault.Mount == "" {
			result = multierror.Append(result, fmt.Errorf("the mount point must not be empty"))
		}
	case StoreKubernetes:
		if c.Kubernetes.Prefix == "" {
			result = multierror.Append(result, fmt.Errorf("the Kubernetes Secret name prefix must not be empty"))
		}
	case StorePostgres:
		if c.Postgres.ConnStr == "" {
			result = multierror.Append(result, fmt.Errorf("the Postgres store needs a connection string"))
		}
		if c.Postgres.Schema == "" || c.Postgres.Table == "" {
			result = multierror.Append(result, fmt.Errorf("the Postgres schema and table names must not be empty"))
		}
		if c.Postgres.MaxEntrySize < 0 {
			result = multierror.Append(result, fmt.Errorf("max_entry_size must not be negative"))
		}
	case StoreFilesystem:
		if c.Filesystem.Root == "" {
			result = multierror.Append(result, fmt.Errorf("the filesystem store needs a root directory"))
		}
		if c.Filesystem.MaxEntrySize < 0 {
			result = multierror.Append(result, fmt.Errorf("max_entry_size must not be negative"))
		}
	}

	return result.ErrorOrNil()
}
