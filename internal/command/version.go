// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/opentofu/tofu-vault-backend/version"
)

// VersionCommand is a Command implementation prints the version.
type VersionCommand struct {
	Meta
}

type versionOutput struct {
	Version      string            `json:"version"`
	Platform     string            `json:"platform"`
	Dependencies map[string]string `json:"dependencies"`
}

func (c *VersionCommand) Run(args []string) int {
	var jsonOutput bool
	cmdFlags := flag.NewFlagSet("version", flag.ContinueOnError)
	cmdFlags.SetOutput(io.Discard)
	cmdFlags.BoolVar(&jsonOutput, "json", false, "json")
	if err := cmdFlags.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err.Error()))
		return 1
	}

	out := versionOutput{
		Version:      version.String(),
		Platform:     runtime.GOOS + "_" + runtime.GOARCH,
		Dependencies: map[string]string{},
	}
	for _, dep := range version.InterestingDependencies() {
		out.Dependencies[dep.Path] = dep.Version
	}

	if jsonOutput {
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to marshal version output: %s", err))
			return 1
		}
		c.Ui.Output(string(b))
		return 0
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "tofu-vault-backend v%s\non %s", out.Version, out.Platform)
	for _, dep := range version.InterestingDependencies() {
		fmt.Fprintf(&buf, "\n+ %s %s", dep.Path, dep.Version)
	}
	c.Ui.Output(buf.String())
	return 0
}

func (c *VersionCommand) Help() string {
	helpText := `
Usage: tofu-vault-backend version [options]

  Displays the version of tofu-vault-backend and of the store client
  libraries it was built with.

Options:

  -json       Output the version information as a JSON object.
`
	return strings.TrimSpace(helpText)
}

func (c *VersionCommand) Synopsis() string {
	return "Show the current version"
}
