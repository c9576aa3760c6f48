// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opentofu/tofu-vault-backend/internal/logging"
	"github.com/opentofu/tofu-vault-backend/internal/metrics"
	"github.com/opentofu/tofu-vault-backend/internal/server"
	"github.com/opentofu/tofu-vault-backend/version"
)

// ServeCommand is a Command implementation that runs the HTTP state
// backend server.
type ServeCommand struct {
	Meta

	// listening, when set, receives the bound address once the server
	// accepts connections.
	listening chan<- net.Addr
}

func (c *ServeCommand) Run(args []string) int {
	cfg, rest, ok := c.parseConfig("serve", args, nil)
	if !ok {
		return 1
	}
	if len(rest) != 0 {
		c.Ui.Error("The serve command expects no arguments.\n")
		return 1
	}

	ctx, cancel := context.WithCancel(c.callerContext())
	defer cancel()

	metrics.Init(metrics.DefaultNamespace)

	engine, err := c.engine(ctx, cfg)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to listen on %s: %s", cfg.ListenAddr(), err))
		return 1
	}
	c.Ui.Output(fmt.Sprintf("tofu-vault-backend v%s serving the %s store on http://%s", version.String(), cfg.Store, ln.Addr()))
	log.Printf("[INFO] Serving with log level %s", logging.CurrentLogLevel())
	if c.listening != nil {
		c.listening <- ln.Addr()
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := server.New(engine)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		select {
		case <-c.ShutdownCh:
			log.Printf("[INFO] Received interrupt, stopping the server")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		c.Ui.Error(fmt.Sprintf("Server failed: %s", err))
		return 1
	}
	return 0
}

func (c *ServeCommand) Help() string {
	helpText := `
Usage: tofu-vault-backend serve [options]

  Serve OpenTofu states over HTTP, storing them in a secret store.

  Point OpenTofu's "http" backend at the server, passing the store token
  as the username:

    terraform {
      backend "http" {
        address        = "http://127.0.0.1:8300/state/<path>"
        lock_address   = "http://127.0.0.1:8300/lock/<path>"
        unlock_address = "http://127.0.0.1:8300/lock/<path>"
        username       = "<token>"
      }
    }

Options:

  -host=host           Address to listen on. Defaults to 127.0.0.1.

  -port=port           Port to listen on. Defaults to 8300.
` + storeOptionsHelp
	return strings.TrimSpace(helpText)
}

func (c *ServeCommand) Synopsis() string {
	return "Run the HTTP state backend server"
}
