// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/mitchellh/cli"

	"github.com/opentofu/tofu-vault-backend/internal/chunkstate"
	"github.com/opentofu/tofu-vault-backend/version"
)

// newLockInfo returns lock metadata shaped like the lock info OpenTofu
// itself records, so holders are reported the same way.
func newLockInfo(operation, path string) map[string]any {
	id, err := uuid.GenerateUUID()
	if err != nil {
		log.Printf("[WARN] Failed to generate a lock id: %s", err)
	}
	return map[string]any{
		"ID":        id,
		"Operation": operation,
		"Who":       lockWho(),
		"Version":   version.String(),
		"Created":   time.Now().UTC().Format(time.RFC3339Nano),
		"Path":      path,
	}
}

func lockWho() string {
	userName := ""
	if u, err := user.Current(); err == nil {
		userName = u.Username
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s@%s", userName, host)
}

// LockInfoCommand is a Command implementation that prints the metadata of
// a held lock.
type LockInfoCommand struct {
	Meta
}

func (c *LockInfoCommand) Run(args []string) int {
	cfg, args, ok := c.parseConfig("lock-info", args, nil)
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

	info, err := engine.GetLockData(ctx, cfg.Token, layout)
	if errors.Is(err, chunkstate.ErrLockNotFound) {
		c.Ui.Output(fmt.Sprintf("No lock is held on %s.", layout.Base))
		return 0
	}
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to read the lock: %s", err))
		return 1
	}

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output(string(out))
	return 0
}

func (c *LockInfoCommand) Help() string {
	helpText := `
Usage: tofu-vault-backend lock-info [options] PATH

  Print the metadata recorded by the holder of the lock at the secrets
  path PATH.
` + storeOptionsHelp
	return strings.TrimSpace(helpText)
}

func (c *LockInfoCommand) Synopsis() string {
	return "Show who holds a state lock"
}
