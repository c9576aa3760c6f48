// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"testing"

	"github.com/hashicorp/go-hclog"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]hclog.Level{
		"":      hclog.Off,
		"TRACE": hclog.Trace,
		"DEBUG": hclog.Debug,
		"INFO":  hclog.Info,
		"WARN":  hclog.Warn,
		"ERROR": hclog.Error,
		"OFF":   hclog.Off,
		"BOGUS": hclog.Trace,
	}

	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			if got := parseLogLevel(input); got != want {
				t.Errorf("wrong level for %q\ngot:  %s\nwant: %s", input, got, want)
			}
		})
	}
}

func TestGlobalLogLevel(t *testing.T) {
	t.Run("unset", func(t *testing.T) {
		t.Setenv(envLog, "")
		level, json := globalLogLevel()
		if level != hclog.Warn || json {
			t.Errorf("got (%s, %t), want (WARN, false)", level, json)
		}
	})
	t.Run("lowercase", func(t *testing.T) {
		t.Setenv(envLog, "debug")
		level, json := globalLogLevel()
		if level != hclog.Debug || json {
			t.Errorf("got (%s, %t), want (DEBUG, false)", level, json)
		}
		if !IsDebugOrHigher() {
			t.Error("IsDebugOrHigher returned false for debug level")
		}
	})
	t.Run("json", func(t *testing.T) {
		t.Setenv(envLog, "json")
		level, json := globalLogLevel()
		if level != hclog.Trace || !json {
			t.Errorf("got (%s, %t), want (TRACE, true)", level, json)
		}
	})
}

func TestSetLevel(t *testing.T) {
	orig := HCLogger().GetLevel()
	t.Cleanup(func() { HCLogger().SetLevel(orig) })

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got := HCLogger().GetLevel(); got != hclog.Debug {
		t.Errorf("wrong level %s; want DEBUG", got)
	}
	if got := CurrentLogLevel(); got != "DEBUG" {
		t.Errorf("CurrentLogLevel returned %q; want DEBUG", got)
	}

	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected error for an invalid level")
	}
	if got := HCLogger().GetLevel(); got != hclog.Debug {
		t.Errorf("invalid level changed the logger to %s", got)
	}
}
