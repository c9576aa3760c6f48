// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfigFile = "TOFU_VAULT_CONFIG"
	EnvStore      = "TOFU_VAULT_STORE"
	EnvToken      = "TOFU_VAULT_TOKEN"
	EnvLogLevel   = "TOFU_VAULT_LOG"
)

// ApplyEnv overrides c with the settings found in the environment.
//
// BAO_ADDR wins over VAULT_ADDR when both are set, the same way the OpenBao
// client resolves them.
func (c *Config) ApplyEnv() {
	if v, ok := lookup("VAULT_ADDR"); ok {
		c.Vault.Address = v
	}
	if v, ok := lookup("BAO_ADDR"); ok {
		c.Vault.Address = v
	}
	if v, ok := lookup("BAO_NAMESPACE"); ok {
		c.Vault.Namespace = v
	}
	if v, ok := lookup("CONSUL_HTTP_ADDR"); ok {
		c.Consul.Address = v
	}
	if v, ok := lookup("PG_CONN_STR"); ok {
		c.Postgres.ConnStr = v
	}
	if v, ok := lookup("PG_SCHEMA_NAME"); ok {
		c.Postgres.Schema = v
	}
	if v, ok := lookup(EnvStore); ok {
		c.Store = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Token = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
}

// lookup treats empty variables as unset.
func lookup(name string) (string, bool) {
	v := os.Getenv(name)
	return v, v != ""
}
