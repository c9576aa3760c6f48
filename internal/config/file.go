// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/mitchellh/go-homedir"
)

// file mirrors the config file. Every attribute is optional; only those
// present override the values below them.
type file struct {
	Store       *string `hcl:"store,optional"`
	Host        *string `hcl:"host,optional"`
	Port        *int    `hcl:"port,optional"`
	ChunkSize   *int    `hcl:"chunk_size,optional"`
	ChunkMargin *int    `hcl:"chunk_margin,optional"`
	LogLevel    *string `hcl:"log_level,optional"`

	Vault      *vaultFile      `hcl:"vault,block"`
	Consul     *consulFile     `hcl:"consul,block"`
	Kubernetes *kubernetesFile `hcl:"kubernetes,block"`
	Postgres   *postgresFile   `hcl:"pg,block"`
	Filesystem *filesystemFile `hcl:"filesystem,block"`
}

type vaultFile struct {
	Address   *string `hcl:"address,optional"`
	Mount     *string `hcl:"mount,optional"`
	Namespace *string `hcl:"namespace,optional"`
}

type consulFile struct {
	Address    *string `hcl:"address,optional"`
	Prefix     *string `hcl:"prefix,optional"`
	Datacenter *string `hcl:"datacenter,optional"`
}

type kubernetesFile struct {
	ConfigPath *string `hcl:"config_path,optional"`
	Context    *string `hcl:"config_context,optional"`
	Namespace  *string `hcl:"namespace,optional"`
	Prefix     *string `hcl:"secret_prefix,optional"`
}

type postgresFile struct {
	Schema             *string `hcl:"schema_name,optional"`
	Table              *string `hcl:"table_name,optional"`
	SkipSchemaCreation *bool   `hcl:"skip_schema_creation,optional"`
	MaxEntrySize       *int    `hcl:"max_entry_size,optional"`
}

type filesystemFile struct {
	Root         *string `hcl:"root,optional"`
	MaxEntrySize *int    `hcl:"max_entry_size,optional"`
}

// LoadFile applies the settings of the HCL config file at path onto c.
func (c *Config) LoadFile(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expanding config file path %q: %w", path, err)
	}

	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(expanded)
	if diags.HasErrors() {
		return diagsError(parser, diags)
	}

	var parsed file
	diags = gohcl.DecodeBody(f.Body, nil, &parsed)
	if diags.HasErrors() {
		return diagsError(parser, diags)
	}

	log.Printf("[INFO] Loaded config file %s", expanded)
	c.apply(&parsed)
	return nil
}

func (c *Config) apply(f *file) {
	set(&c.Store, f.Store)
	set(&c.Host, f.Host)
	set(&c.Port, f.Port)
	set(&c.ChunkSize, f.ChunkSize)
	set(&c.ChunkMargin, f.ChunkMargin)
	set(&c.LogLevel, f.LogLevel)
	if v := f.Vault; v != nil {
		set(&c.Vault.Address, v.Address)
		set(&c.Vault.Mount, v.Mount)
		set(&c.Vault.Namespace, v.Namespace)
	}
	if v := f.Consul; v != nil {
		set(&c.Consul.Address, v.Address)
		set(&c.Consul.Prefix, v.Prefix)
		set(&c.Consul.Datacenter, v.Datacenter)
	}
	if v := f.Kubernetes; v != nil {
		set(&c.Kubernetes.ConfigPath, v.ConfigPath)
		set(&c.Kubernetes.Context, v.Context)
		set(&c.Kubernetes.Namespace, v.Namespace)
		set(&c.Kubernetes.Prefix, v.Prefix)
	}
	if v := f.Postgres; v != nil {
		set(&c.Postgres.Schema, v.Schema)
		set(&c.Postgres.Table, v.Table)
		set(&c.Postgres.SkipSchemaCreation, v.SkipSchemaCreation)
		set(&c.Postgres.MaxEntrySize, v.MaxEntrySize)
	}
	if v := f.Filesystem; v != nil {
		set(&c.Filesystem.Root, v.Root)
		set(&c.Filesystem.MaxEntrySize, v.MaxEntrySize)
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// diagsError renders diagnostics with source snippets.
func diagsError(parser *hclparse.Parser, diags hcl.Diagnostics) error {
	var buf strings.Builder
	wr := hcl.NewDiagnosticTextWriter(&buf, parser.Files(), 78, false)
	if err := wr.WriteDiagnostics(diags); err != nil {
		return diags
	}
	return fmt.Errorf("invalid config file:\n%s", buf.String())
}
