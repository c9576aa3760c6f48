// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/cli"
)

// StatePushCommand is a Command implementation that stores a state read
// from a file or stdin.
type StatePushCommand struct {
	Meta

	// Stdin is read when the file argument is "-". Defaults to os.Stdin.
	Stdin io.Reader
}

func (c *StatePushCommand) Run(args []string) int {
	flagLock := true
	cfg, args, ok := c.parseConfig("state push", args, func(f *flag.FlagSet) {
		f.BoolVar(&flagLock, "lock", true, "lock state")
	})
	if !ok {
		return 1
	}
	if len(args) != 2 {
		c.Ui.Error("Exactly two arguments expected: the secrets path and the state file.\n")
		return cli.RunResultHelp
	}
	layout, err := layoutArg(args[0])
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	// Determine our reader for the input state. This is the filepath
	// or stdin if "-" is given.
	var r io.Reader = c.Stdin
	if r == nil {
		r = os.Stdin
	}
	if args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			c.Ui.Error(err.Error())
			return 1
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var state any
	if err := dec.Decode(&state); err != nil {
		c.Ui.Error(fmt.Sprintf("Error reading source state %q: %s", args[1], err))
		return 1
	}

	ctx, cancel := c.CommandContext()
	defer cancel()

	engine, err := c.engine(ctx, cfg)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	if flagLock {
		info := newLockInfo("state-push", layout.Base)
		if err := engine.AcquireLock(ctx, cfg.Token, layout, info); err != nil {
			c.Ui.Error(fmt.Sprintf("Error acquiring the state lock: %s", err))
			return 1
		}
		defer func() {
			// Release even when the push was interrupted.
			if err := engine.ReleaseLock(context.WithoutCancel(ctx), cfg.Token, layout); err != nil {
				c.Ui.Error(fmt.Sprintf("Error releasing the state lock: %s\n\nRun \"tofu-vault-backend force-unlock %s\" to remove it.", err, layout.Base))
			}
		}()
	}

	result, err := engine.SetState(ctx, cfg.Token, layout, state)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to write state: %s", err))
		return 1
	}

	c.Ui.Output(fmt.Sprintf("Stored state at %s in %d fragment(s) of up to %d bytes.", layout.Base, result.Fragments, result.Cutoff))
	return 0
}

func (c *StatePushCommand) Help() string {
	helpText := `
Usage: tofu-vault-backend state push [options] PATH FILE

  Store the state in FILE at the secrets path PATH, replacing whatever is
  stored there. Use "-" as FILE to read the state from stdin.

Options:

  -lock=false          Don't hold the state lock while writing.
` + storeOptionsHelp
	return strings.TrimSpace(helpText)
}

func (c *StatePushCommand) Synopsis() string {
	return "Store a state read from a file or stdin"
}
