// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/cli"

	"github.com/opentofu/tofu-vault-backend/internal/command"
	"github.com/opentofu/tofu-vault-backend/internal/logging"
	"github.com/opentofu/tofu-vault-backend/internal/tracing"
	"github.com/opentofu/tofu-vault-backend/version"
)

const (
	// EnvCLI is the environment variable name to set additional CLI args.
	EnvCLI = "TOFU_VAULT_CLI_ARGS"

	binName = "tofu-vault-backend"
)

// Ui is the cli.Ui used for communicating to the outside world.
var Ui cli.Ui

func main() {
	os.Exit(realMain())
}

func realMain() int {
	args := os.Args[1:]

	noColor := os.Getenv("NO_COLOR") != ""
	args = slices.DeleteFunc(args, func(arg string) bool {
		if arg == "-no-color" {
			noColor = true
			return true
		}
		return false
	})
	Ui = command.NewBasicUI(noColor)

	ctx, err := tracing.OpenTelemetryInit(context.Background())
	if err != nil {
		// OpenTelemetryInit can only fail when tracing was explicitly
		// enabled through the environment.
		Ui.Error(fmt.Sprintf("Could not initialize telemetry: %s", err))
		Ui.Error(fmt.Sprintf("Unset environment variable %s if you don't intend to collect telemetry.", tracing.OTELExporterEnvVar))
		return 1
	}
	defer tracing.ForceFlush(5 * time.Second)

	ctx, span := tracing.Tracer().Start(ctx, binName)
	defer span.End()

	log.Printf("[INFO] tofu-vault-backend version: %s", version.String())
	if logging.IsDebugOrHigher() {
		for _, depMod := range version.InterestingDependencies() {
			log.Printf("[DEBUG] using %s %s", depMod.Path, depMod.Version)
		}
	}
	log.Printf("[INFO] Go runtime version: %s", runtime.Version())
	log.Printf("[INFO] CLI args: %#v", os.Args)

	// In tests, commands may already be set to provide mock commands
	if commands == nil {
		initCommands(ctx, makeShutdownCh())
	}

	// Build the CLI so far, we do this so we can query the subcommand.
	cliRunner := &cli.CLI{
		Args:       args,
		Commands:   commands,
		HelpFunc:   cli.BasicHelpFunc(binName),
		HelpWriter: os.Stdout,
	}

	// Prefix the args with any args from the EnvCLI
	args, err = mergeEnvArgs(EnvCLI, cliRunner.Subcommand(), args)
	if err != nil {
		Ui.Error(err.Error())
		return 1
	}

	// Prefix the args with any args from the EnvCLI targeting this command
	suffix := strings.ReplaceAll(strings.ReplaceAll(
		cliRunner.Subcommand(), "-", "_"), " ", "_")
	args, err = mergeEnvArgs(
		fmt.Sprintf("%s_%s", EnvCLI, suffix), cliRunner.Subcommand(), args)
	if err != nil {
		Ui.Error(err.Error())
		return 1
	}

	// We shortcut "-version" and "--version" to just show the version. "-v"
	// raises the log verbosity instead.
	for _, arg := range args {
		if arg == "-version" || arg == "--version" {
			args = append([]string{"version"}, args...)
			break
		}
	}

	// Rebuild the CLI with any modified args.
	log.Printf("[INFO] CLI command args: %#v", args)
	cliRunner = &cli.CLI{
		Name:       binName,
		Args:       args,
		Commands:   commands,
		HelpFunc:   cli.BasicHelpFunc(binName),
		HelpWriter: os.Stdout,

		Autocomplete:          true,
		AutocompleteInstall:   "install-autocomplete",
		AutocompleteUninstall: "uninstall-autocomplete",
	}

	// Check if this is being run via shell auto-complete, which uses the
	// binary name as the first argument and won't be listed as a subcommand.
	autoComplete := os.Getenv("COMP_LINE") != ""

	if cmd := cliRunner.Subcommand(); cmd != "" && !autoComplete {
		if _, exists := commands[cmd]; !exists {
			suggestions := make([]string, 0, len(commands))
			for name := range commands {
				suggestions = append(suggestions, name)
			}
			suggestion := nameSuggestion(cmd, suggestions)
			if suggestion != "" {
				suggestion = fmt.Sprintf(" Did you mean %q?", suggestion)
			}
			fmt.Fprintf(os.Stderr, "tofu-vault-backend has no command named %q.%s\n\nTo see all of the commands, run:\n  %s -help\n\n", cmd, suggestion, binName)
			return 1
		}
	}

	exitCode, err := cliRunner.Run()
	if err != nil {
		Ui.Error(fmt.Sprintf("Error executing CLI: %s", err.Error()))
		return 1
	}
	return exitCode
}

func mergeEnvArgs(envName string, cmd string, args []string) ([]string, error) {
	v := os.Getenv(envName)
	if v == "" {
		return args, nil
	}

	log.Printf("[INFO] %s value: %q", envName, v)
	extra, err := shellwords.Parse(v)
	if err != nil {
		return nil, fmt.Errorf(
			"Error parsing extra CLI args from %s: %s",
			envName, err)
	}

	// Find the command to look for in the args. If there is a space,
	// we need to find the last part.
	search := cmd
	if idx := strings.LastIndex(search, " "); idx >= 0 {
		search = cmd[idx+1:]
	}

	// Find the index to place the flags. We put them exactly
	// after the first non-flag arg.
	idx := -1
	for i, v := range args {
		if v == search {
			idx = i
			break
		}
	}

	// idx points to the exact arg that isn't a flag. We increment
	// by one so that all the copying below expects idx to be the
	// insertion point.
	idx++

	// Copy the args
	newArgs := make([]string, len(args)+len(extra))
	copy(newArgs, args[:idx])
	copy(newArgs[idx:], extra)
	copy(newArgs[len(extra)+idx:], args[idx:])
	return newArgs, nil
}

// nameSuggestion returns the name from suggestions closest to given, or
// an empty string if none is close enough to be a likely typo.
func nameSuggestion(given string, suggestions []string) string {
	sort.Strings(suggestions)
	for _, suggestion := range suggestions {
		if levenshtein.Distance(given, suggestion, nil) < 3 {
			return suggestion
		}
	}
	return ""
}
