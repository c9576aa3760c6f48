// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package logging routes the standard library logger through go-hclog so
// that "[LEVEL] message" lines are filtered and formatted consistently.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// These are the environmental variables that determine if we log, and if
// we log whether or not the log should go to a file.
const (
	envLog     = "TOFU_VAULT_LOG"
	envLogFile = "TOFU_VAULT_LOG_PATH"
)

// ValidLevels are the log level names that TOFU_VAULT_LOG and the
// -log-level option accept.
var ValidLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "OFF"}

var (
	mu     sync.Mutex
	logger hclog.InterceptLogger
)

func init() {
	logger = newHCLogger("")
	logWriter := logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})

	// set up the default std library logger to use our output
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(logWriter)
}

// HCLogger returns the default global hclog logger
func HCLogger() hclog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// SetLevel changes the level of the global logger. An empty or unknown
// level name leaves the current level alone and returns an error.
func SetLevel(name string) error {
	level := hclog.LevelFromString(name)
	if level == hclog.NoLevel {
		return fmt.Errorf("invalid log level %q; valid levels are %s", name, strings.Join(ValidLevels, ", "))
	}
	mu.Lock()
	defer mu.Unlock()
	logger.SetLevel(level)
	return nil
}

// CurrentLogLevel returns the name of the global logger's level, including
// changes made by SetLevel.
func CurrentLogLevel() string {
	mu.Lock()
	defer mu.Unlock()
	return strings.ToUpper(logger.GetLevel().String())
}

// newHCLogger returns a new hclog.Logger instance with the given name
func newHCLogger(name string) hclog.InterceptLogger {
	logOutput := io.Writer(os.Stderr)
	logLevel, json := globalLogLevel()

	if logPath := os.Getenv(envLogFile); logPath != "" {
		f, err := os.OpenFile(logPath, syscallFlags, 0666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		} else {
			logOutput = f
		}
	}

	return hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:              name,
		Level:             logLevel,
		Output:            logOutput,
		IndependentLevels: true,
		JSONFormat:        json,
	})
}

const syscallFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

func globalLogLevel() (hclog.Level, bool) {
	envLevel := strings.ToUpper(os.Getenv(envLog))
	if envLevel == "" {
		// A long-running service should still report warnings and errors
		// when nobody asked for logs.
		return hclog.Warn, false
	}
	if envLevel == "JSON" {
		return hclog.Trace, true
	}
	return parseLogLevel(envLevel), false
}

func parseLogLevel(envLevel string) hclog.Level {
	if envLevel == "" {
		return hclog.Off
	}

	logLevel := hclog.Trace
	if isValidLogLevel(envLevel) {
		logLevel = hclog.LevelFromString(envLevel)
	} else {
		fmt.Fprintf(os.Stderr, "[WARN] Invalid log level: %q. Defaulting to level: TRACE. Valid levels are: %+v",
			envLevel, ValidLevels)
	}

	return logLevel
}

// IsDebugOrHigher returns whether or not the current log level is debug or trace
func IsDebugOrHigher() bool {
	level, _ := globalLogLevel()
	return level == hclog.Debug || level == hclog.Trace
}

func isValidLogLevel(level string) bool {
	for _, l := range ValidLevels {
		if level == l {
			return true
		}
	}

	return false
}
