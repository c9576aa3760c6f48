// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/opentofu/tofu-vault-backend/internal/chunkstate"
)

// ForceUnlockCommand is a cli.Command implementation that manually
// releases a state lock.
type ForceUnlockCommand struct {
	Meta
}

func (c *ForceUnlockCommand) Run(args []string) int {
	var force bool
	cfg, args, ok := c.parseConfig("force-unlock", args, func(f *flag.FlagSet) {
		f.BoolVar(&force, "force", false, "force")
	})
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

	if !force {
		desc := fmt.Sprintf("The lock on the state at %s will be removed.\n", layout.Base) +
			"This will allow other OpenTofu runs to modify the state, even though it\n" +
			"may still be in use. Only 'yes' will be accepted to confirm."
		if info, err := engine.GetLockData(ctx, cfg.Token, layout); err == nil {
			desc = (&chunkstate.LockError{Err: errors.New("the state is locked"), Info: info}).Error() + "\n\n" + desc
		}
		c.Ui.Output(desc)

		v, err := c.Ui.Ask("Do you really want to force-unlock?\n  Enter a value:")
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error asking for confirmation: %s", err))
			return 1
		}
		if v != "yes" {
			c.Ui.Output("force-unlock cancelled.")
			return 1
		}
	}

	err = engine.ReleaseLock(ctx, cfg.Token, layout)
	if errors.Is(err, chunkstate.ErrLockNotFound) {
		c.Ui.Error(fmt.Sprintf("No lock is held on %s.", layout.Base))
		return 1
	}
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to unlock state: %s", err))
		return 1
	}

	c.Ui.Output(fmt.Sprintf("The state at %s has been successfully unlocked!\n\n", layout.Base) +
		"OpenTofu runs should now be able to obtain a new lock on it.")
	return 0
}

func (c *ForceUnlockCommand) Help() string {
	helpText := `
Usage: tofu-vault-backend force-unlock [options] PATH

  Manually unlock the state at the secrets path PATH.

  This will not modify the stored state, it only removes the lock. Use it
  when a run was interrupted and left its lock behind.

Options:

  -force               Don't ask for input for unlock confirmation.
` + storeOptionsHelp
	return strings.TrimSpace(helpText)
}

func (c *ForceUnlockCommand) Synopsis() string {
	return "Release a stuck lock on a state"
}
