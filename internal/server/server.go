// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package server exposes the state engine over the protocol spoken by
// OpenTofu's "http" state backend.
//
// The secrets path is taken from the URL and the store token from the
// username of HTTP Basic authentication:
//
//	terraform {
//	  backend "http" {
//	    address        = "http://127.0.0.1:8300/state/team/prod"
//	    lock_address   = "http://127.0.0.1:8300/lock/team/prod"
//	    unlock_address = "http://127.0.0.1:8300/lock/team/prod"
//	    username       = "<token>"
//	  }
//	}
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentofu/tofu-vault-backend/internal/chunkstate"
	"github.com/opentofu/tofu-vault-backend/internal/logging"
	"github.com/opentofu/tofu-vault-backend/internal/metrics"
)

// Backend is the set of state and lock operations the server exposes.
// *chunkstate.Engine implements it.
type Backend interface {
	GetState(ctx context.Context, token string, layout chunkstate.Layout) (any, error)
	SetState(ctx context.Context, token string, layout chunkstate.Layout, value any) (chunkstate.WriteResult, error)
	AcquireLock(ctx context.Context, token string, layout chunkstate.Layout, info map[string]any) error
	ReleaseLock(ctx context.Context, token string, layout chunkstate.Layout) error
	GetLockData(ctx context.Context, token string, layout chunkstate.Layout) (map[string]any, error)
}

var _ Backend = (*chunkstate.Engine)(nil)

const shutdownTimeout = 10 * time.Second

// Server routes HTTP requests to a Backend.
type Server struct {
	backend Backend
	logger  hclog.Logger
	mux     *http.ServeMux
}

// New returns a Server for backend.
func New(backend Backend) *Server {
	s := &Server{
		backend: backend,
		logger:  logging.HCLogger().Named("server"),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)

	s.mux.HandleFunc("GET /state/{path...}", s.handleGetState)
	s.mux.HandleFunc("POST /state/{path...}", s.handleSetState)

	s.mux.HandleFunc("GET /lock/{path...}", s.handleGetLock)
	s.mux.HandleFunc("POST /lock/{path...}", s.handleAcquireLock)
	s.mux.HandleFunc("LOCK /lock/{path...}", s.handleAcquireLock)
	s.mux.HandleFunc("DELETE /lock/{path...}", s.handleReleaseLock)
	s.mux.HandleFunc("UNLOCK /lock/{path...}", s.handleReleaseLock)

	s.mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})
}

// Handler returns the fully instrumented handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.logRequests(s.mux), "tofu-vault-backend")
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is like Run for an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] Listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("[INFO] Shutting down the HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
