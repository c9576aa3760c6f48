// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"

	"github.com/mitchellh/cli"

	"github.com/opentofu/tofu-vault-backend/internal/command"
)

// commands is the mapping of all the available commands.
var commands map[string]cli.CommandFactory

func initCommands(ctx context.Context, shutdownCh <-chan struct{}) {
	meta := command.Meta{
		Ui:            Ui,
		CallerContext: ctx,
		ShutdownCh:    shutdownCh,
	}

	commands = map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &command.ServeCommand{Meta: meta}, nil
		},

		"state": func() (cli.Command, error) {
			return &command.StateCommand{Meta: meta}, nil
		},

		"state pull": func() (cli.Command, error) {
			return &command.StatePullCommand{Meta: meta}, nil
		},

		"state push": func() (cli.Command, error) {
			return &command.StatePushCommand{Meta: meta}, nil
		},

		"lock-info": func() (cli.Command, error) {
			return &command.LockInfoCommand{Meta: meta}, nil
		},

		"force-unlock": func() (cli.Command, error) {
			return &command.ForceUnlockCommand{Meta: meta}, nil
		},

		"version": func() (cli.Command, error) {
			return &command.VersionCommand{Meta: meta}, nil
		},
	}
}
