// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"strings"

	"github.com/mitchellh/cli"
)

// StateCommand is a Command implementation that just shows help for
// the subcommands nested below it.
type StateCommand struct {
	Meta
}

func (c *StateCommand) Run(args []string) int {
	return cli.RunResultHelp
}

func (c *StateCommand) Help() string {
	helpText := `
Usage: tofu-vault-backend state <subcommand> [options] [args]

  This command has subcommands for reading and writing stored states
  directly, without going through the HTTP server.
`
	return strings.TrimSpace(helpText)
}

func (c *StateCommand) Synopsis() string {
	return "Read and write stored states"
}
