// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"

	"github.com/opentofu/tofu-vault-backend/internal/metrics"
	"github.com/opentofu/tofu-vault-backend/version"
)

// requestIDHeader carries the id that ties a response to its log lines.
const requestIDHeader = "X-Request-Id"

// logWithRequest returns a logger annotated with the request and a fresh
// request id.
func (s *Server) logWithRequest(r *http.Request) (hclog.Logger, string) {
	logger := s.logger.With(
		"method", r.Method,
		"path", r.URL.Path,
	)
	id, err := uuid.GenerateUUID()
	if err != nil {
		return logger, ""
	}
	return logger.With("req_id", id), id
}

// logRequests logs every request once it completes and counts it by route.
// Responses carry the request id and the backend's version.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger, id := s.logWithRequest(r)
		w.Header().Set(version.Header, version.String())
		if id != "" {
			w.Header().Set(requestIDHeader, id)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(hclog.WithContext(r.Context(), logger))
		start := time.Now()
		next.ServeHTTP(rec, req)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(route, rec.status)
		logger.Info("request completed", "status", rec.status, "duration", time.Since(start))
	})
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
