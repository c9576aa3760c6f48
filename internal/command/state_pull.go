// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/opentofu/tofu-vault-backend/internal/chunkstate"
)

// StatePullCommand is a Command implementation that prints a stored state
// to stdout.
type StatePullCommand struct {
	Meta
}

func (c *StatePullCommand) Run(args []string) int {
	cfg, args, ok := c.parseConfig("state pull", args, nil)
	if !ok {
		return 1
	}
	if len(args) != 1 {
		c.Ui.Error("Exactly one argument expected: the secrets path.\n")
		return cli.RunResultHelp
	}
	layout, err := layoutArg(args[0])
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	ctx, cancel := c.CommandContext()
	defer cancel()

	engine, err := c.engine(ctx, cfg)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	state, err := engine.GetState(ctx, cfg.Token, layout)
	if errors.Is(err, chunkstate.ErrStateNotFound) {
		c.Ui.Error(fmt.Sprintf("No state exists at %s.", layout.Base))
		return 1
	}
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to read state: %s", err))
		return 1
	}
	if state == nil {
		state = map[string]any{}
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to write state: %s", err))
		return 1
	}
	c.Ui.Output(string(out))
	return 0
}

func (c *StatePullCommand) Help() string {
	helpText := `
Usage: tofu-vault-backend state pull [options] PATH

  Read the state stored at the secrets path PATH and print it to stdout.
` + storeOptionsHelp
	return strings.TrimSpace(helpText)
}

func (c *StatePullCommand) Synopsis() string {
	return "Print a stored state to stdout"
}
