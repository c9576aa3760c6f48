// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// verbosityLevels maps the number of -v flags to a log level.
var verbosityLevels = []string{"WARN", "INFO", "DEBUG", "TRACE"}

// Parse resolves the configuration for a command.
//
// Settings are layered from Default, the config file named by -config or
// TOFU_VAULT_CONFIG, the environment, and finally the flags that args sets
// explicitly. The extra function, when non-nil, registers command specific
// flags. Parse returns the positional arguments left after the flags.
func Parse(name string, args []string, extra func(*flag.FlagSet)) (*Config, []string, error) {
	// The first pass only finds the config file and rejects bad flags.
	var path string
	scratch := Default()
	fs := newFlagSet(name, scratch, &path, extra)
	args = expandVerbosity(fs, args)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, nil, err
		}
	}
	cfg.ApplyEnv()

	// The second pass writes only the explicitly set flags over the result.
	fs = newFlagSet(name, cfg, &path, extra)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

func newFlagSet(name string, cfg *Config, path *string, extra func(*flag.FlagSet)) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)

	f.StringVar(path, "config", "", "path")
	f.StringVar(&cfg.Store, "store", cfg.Store, "store")
	f.StringVar(&cfg.Host, "host", cfg.Host, "host")
	f.IntVar(&cfg.Port, "port", cfg.Port, "port")
	f.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "bytes")
	f.IntVar(&cfg.ChunkMargin, "chunk-margin", cfg.ChunkMargin, "bytes")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "level")
	f.StringVar(&cfg.Token, "token", cfg.Token, "token")

	f.StringVar(&cfg.Vault.Address, "vault-url", cfg.Vault.Address, "address")
	f.StringVar(&cfg.Vault.Mount, "mount-point", cfg.Vault.Mount, "mount")
	f.StringVar(&cfg.Vault.Namespace, "namespace", cfg.Vault.Namespace, "namespace")

	f.StringVar(&cfg.Consul.Address, "consul-address", cfg.Consul.Address, "address")
	f.StringVar(&cfg.Consul.Prefix, "consul-prefix", cfg.Consul.Prefix, "prefix")
	f.StringVar(&cfg.Consul.Datacenter, "consul-datacenter", cfg.Consul.Datacenter, "datacenter")

	f.StringVar(&cfg.Kubernetes.ConfigPath, "k8s-config-path", cfg.Kubernetes.ConfigPath, "path")
	f.StringVar(&cfg.Kubernetes.Context, "k8s-context", cfg.Kubernetes.Context, "context")
	f.StringVar(&cfg.Kubernetes.Namespace, "k8s-namespace", cfg.Kubernetes.Namespace, "namespace")
	f.StringVar(&cfg.Kubernetes.Prefix, "k8s-secret-prefix", cfg.Kubernetes.Prefix, "prefix")

	f.StringVar(&cfg.Postgres.ConnStr, "pg-conn-str", cfg.Postgres.ConnStr, "dsn")
	f.StringVar(&cfg.Postgres.Schema, "pg-schema", cfg.Postgres.Schema, "schema")
	f.StringVar(&cfg.Postgres.Table, "pg-table", cfg.Postgres.Table, "table")
	f.BoolVar(&cfg.Postgres.SkipSchemaCreation, "pg-skip-schema-creation", cfg.Postgres.SkipSchemaCreation, "skip")
	f.IntVar(&cfg.Postgres.MaxEntrySize, "pg-max-entry-size", cfg.Postgres.MaxEntrySize, "bytes")

	f.StringVar(&cfg.Filesystem.Root, "fs-root", cfg.Filesystem.Root, "dir")
	f.IntVar(&cfg.Filesystem.MaxEntrySize, "fs-max-entry-size", cfg.Filesystem.MaxEntrySize, "bytes")

	f.Var(&verbosity{level: &cfg.LogLevel}, "v", "verbosity")

	if extra != nil {
		extra(f)
	}
	return f
}

// expandVerbosity rewrites "-vv" style arguments into repeated "-v" flags,
// which the flag package can count. Only flags are rewritten: the values
// of non-boolean flags and everything from the first positional argument
// on are kept as given.
func expandVerbosity(fs *flag.FlagSet, args []string) []string {
	ret := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || arg == "-" || !strings.HasPrefix(arg, "-") {
			return append(ret, args[i:]...)
		}

		name := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		if len(name) > 1 && strings.Trim(name, "v") == "" {
			for range name {
				ret = append(ret, "-v")
			}
			continue
		}

		ret = append(ret, arg)
		if strings.Contains(name, "=") || !takesValue(fs, name) || i+1 >= len(args) {
			continue
		}
		i++
		ret = append(ret, args[i])
	}
	return ret
}

// takesValue reports whether the flag called name consumes the following
// argument as its value.
func takesValue(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
		return false
	}
	return true
}

// verbosity is a counting flag: every -v raises the log level one step,
// up to TRACE.
type verbosity struct {
	count int
	level *string
}

func (v *verbosity) String() string {
	return strconv.Itoa(v.count)
}

func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("-v takes no value")
	}
	if !b {
		return nil
	}
	v.count++
	*v.level = verbosityLevels[min(v.count, len(verbosityLevels)-1)]
	return nil
}
