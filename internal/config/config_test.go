// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeAddress(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:8200":          "https://127.0.0.1:8200",
		"vault.example.com":       "https://vault.example.com",
		"http://127.0.0.1:8200":   "http://127.0.0.1:8200",
		"https://bao.example.com": "https://bao.example.com",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := NormalizeAddress(in); got != want {
				t.Errorf("wrong result\ngot:  %s\nwant: %s", got, want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"secret/":  "secret",
		"/secret/": "secret",
		"kv/team":  "kv/team",
		"//kv/a//": "kv/a",
		"":         "",
	}
	for in, want := range tests {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse_defaults(t *testing.T) {
	clearEnv(t)

	cfg, rest, err := Parse("serve", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(rest) != 0 {
		t.Errorf("unexpected positional arguments %q", rest)
	}

	want := Default()
	want.Vault.Address = "https://127.0.0.1:8200"
	want.Vault.Mount = "secret"
	home, _ := os.UserHomeDir()
	want.Filesystem.Root = filepath.Join(home, ".local/share/tofu-vault-backend")
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("wrong config\n%s", diff)
	}
	if got, want := cfg.ListenAddr(), "127.0.0.1:8300"; got != want {
		t.Errorf("wrong listen address %q, want %q", got, want)
	}
}

func TestParse_precedence(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, `
store = "consul"
host  = "0.0.0.0"
port  = 9000

vault {
  address = "file.example.com"
  mount   = "kv/"
}

consul {
  prefix = "/from-file/"
}
`)
	t.Setenv("VAULT_ADDR", "http://env.example.com")
	t.Setenv(EnvConfigFile, path)

	cfg, _, err := Parse("serve", []string{"-port", "9100"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if got, want := cfg.Store, StoreConsul; got != want {
		t.Errorf("store from file: got %q, want %q", got, want)
	}
	if got, want := cfg.Host, "0.0.0.0"; got != want {
		t.Errorf("host from file: got %q, want %q", got, want)
	}
	if got, want := cfg.Port, 9100; got != want {
		t.Errorf("port from flag: got %d, want %d", got, want)
	}
	if got, want := cfg.Vault.Address, "http://env.example.com"; got != want {
		t.Errorf("address from env: got %q, want %q", got, want)
	}
	if got, want := cfg.Vault.Mount, "kv"; got != want {
		t.Errorf("mount from file: got %q, want %q", got, want)
	}
	if got, want := cfg.Consul.Prefix, "from-file"; got != want {
		t.Errorf("prefix from file: got %q, want %q", got, want)
	}
}

func TestParse_baoAddrWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULT_ADDR", "vault.example.com")
	t.Setenv("BAO_ADDR", "bao.example.com")

	cfg, _, err := Parse("serve", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got, want := cfg.Vault.Address, "https://bao.example.com"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParse_configFlag(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `chunk_size = 4096`)

	cfg, rest, err := Parse("state push", []string{"-config", path, "-chunk-margin", "96", "team/prod", "state.json"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got, want := cfg.ChunkOptions().ChunkSize, 4096; got != want {
		t.Errorf("wrong chunk size %d, want %d", got, want)
	}
	if got, want := cfg.ChunkOptions().Margin, 96; got != want {
		t.Errorf("wrong margin %d, want %d", got, want)
	}
	if diff := cmp.Diff([]string{"team/prod", "state.json"}, rest); diff != "" {
		t.Errorf("wrong positional arguments\n%s", diff)
	}
}

func TestParse_verbosity(t *testing.T) {
	tests := map[string]struct {
		args []string
		want string
	}{
		"none":     {nil, ""},
		"one":      {[]string{"-v"}, "INFO"},
		"two":      {[]string{"-v", "-v"}, "DEBUG"},
		"combined": {[]string{"-vv"}, "DEBUG"},
		"many":     {[]string{"-vvvvv"}, "TRACE"},
		"explicit": {[]string{"-log-level", "error"}, "error"},
		"dashdash": {[]string{"--vv"}, "DEBUG"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			cfg, _, err := Parse("serve", test.args, nil)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if cfg.LogLevel != test.want {
				t.Errorf("wrong log level %q, want %q", cfg.LogLevel, test.want)
			}
		})
	}
}

func TestParse_verbosityLeavesValuesAlone(t *testing.T) {
	tests := map[string]struct {
		args      []string
		wantToken string
		wantLevel string
		wantRest  []string
	}{
		"flag value": {
			args:      []string{"-store=inmem", "-token", "vvv", "team/vv"},
			wantToken: "vvv",
			wantRest:  []string{"team/vv"},
		},
		"positional": {
			args:     []string{"-store=inmem", "vv"},
			wantRest: []string{"vv"},
		},
		"after positional": {
			args:     []string{"-store=inmem", "team", "-vv"},
			wantRest: []string{"team", "-vv"},
		},
		"flag then value": {
			args:      []string{"-vv", "-token", "-vv", "team"},
			wantToken: "-vv",
			wantLevel: "DEBUG",
			wantRest:  []string{"team"},
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			cfg, rest, err := Parse("state pull", test.args, nil)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if cfg.Token != test.wantToken {
				t.Errorf("wrong token %q, want %q", cfg.Token, test.wantToken)
			}
			if cfg.LogLevel != test.wantLevel {
				t.Errorf("wrong log level %q, want %q", cfg.LogLevel, test.wantLevel)
			}
			if diff := cmp.Diff(test.wantRest, rest); diff != "" {
				t.Errorf("wrong positional arguments\n%s", diff)
			}
		})
	}
}

func TestParse_extraFlags(t *testing.T) {
	clearEnv(t)

	var force bool
	_, rest, err := Parse("force-unlock", []string{"-force", "team/prod"}, func(f *flag.FlagSet) {
		f.BoolVar(&force, "force", false, "force")
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !force {
		t.Error("extra flag was not set")
	}
	if diff := cmp.Diff([]string{"team/prod"}, rest); diff != "" {
		t.Errorf("wrong positional arguments\n%s", diff)
	}
}

func TestParse_invalid(t *testing.T) {
	tests := map[string]struct {
		args    []string
		file    string
		wantErr []string
	}{
		"unknown flag": {
			args:    []string{"-nope"},
			wantErr: []string{"flag provided but not defined"},
		},
		"several problems": {
			args:    []string{"-store", "s3", "-port", "70000", "-chunk-size", "500"},
			wantErr: []string{`unknown store "s3"`, "port 70000 is out of range", "chunk size"},
		},
		"negative chunk size": {
			args:    []string{"-chunk-size", "-7"},
			wantErr: []string{"chunk size must be positive"},
		},
		"bad log level": {
			args:    []string{"-log-level", "LOUD"},
			wantErr: []string{`invalid log level "LOUD"`},
		},
		"empty mount": {
			args:    []string{"-mount-point", "/"},
			wantErr: []string{"mount point must not be empty"},
		},
		"empty secret prefix": {
			args:    []string{"-store", "kubernetes", "-k8s-secret-prefix", ""},
			wantErr: []string{"Secret name prefix must not be empty"},
		},
		"pg without connection string": {
			args:    []string{"-store", "pg"},
			wantErr: []string{"needs a connection string"},
		},
		"pg empty table": {
			args:    []string{"-store", "pg", "-pg-conn-str", "postgres://localhost/tofu", "-pg-table", ""},
			wantErr: []string{"schema and table names must not be empty"},
		},
		"file syntax": {
			file:    `store = `,
			wantErr: []string{"invalid config file"},
		},
		"file unknown attribute": {
			file:    `colour = "blue"`,
			wantErr: []string{"Unsupported argument"},
		},
		"file wrong type": {
			file:    `port = "eighty"`,
			wantErr: []string{"invalid config file"},
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			args := test.args
			if test.file != "" {
				args = append([]string{"-config", writeFile(t, test.file)}, args...)
			}
			_, _, err := Parse("serve", args, nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			for _, want := range test.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLoadFile_blocks(t *testing.T) {
	path := writeFile(t, `
filesystem {
  root           = "/var/lib/states"
  max_entry_size = 2048
}
consul {
  address    = "consul.internal:8500"
  datacenter = "dc2"
}
vault {
  namespace = "team-a"
}
kubernetes {
  config_path   = "/etc/tofu/kubeconfig"
  namespace     = "states"
  secret_prefix = "infra"
}
pg {
  schema_name          = "states"
  skip_schema_creation = true
}
`)
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	want := Default()
	want.Filesystem = FilesystemConfig{Root: "/var/lib/states", MaxEntrySize: 2048}
	want.Consul.Address = "consul.internal:8500"
	want.Consul.Datacenter = "dc2"
	want.Vault.Namespace = "team-a"
	want.Kubernetes = KubernetesConfig{ConfigPath: "/etc/tofu/kubeconfig", Namespace: "states", Prefix: "infra"}
	want.Postgres = PostgresConfig{Schema: "states", Table: "secrets", SkipSchemaCreation: true}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("wrong config\n%s", diff)
	}
}

func TestLoadFile_missing(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.hcl"))
	if err == nil {
		t.Fatal("expected an error")
	}
}

func writeFile(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.hcl")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks every variable Parse consults; lookup treats empty values
// as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"VAULT_ADDR", "BAO_ADDR", "BAO_NAMESPACE", "CONSUL_HTTP_ADDR",
		"PG_CONN_STR", "PG_SCHEMA_NAME",
		EnvConfigFile, EnvStore, EnvToken, EnvLogLevel,
	} {
		t.Setenv(name, "")
	}
}
