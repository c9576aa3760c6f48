// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/opentofu/tofu-vault-backend/internal/chunkstate"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	token, layout, ok := requestTarget(w, r)
	if !ok {
		return
	}

	state, err := s.backend.GetState(r.Context(), token, layout)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if state == nil {
		// A stored null is reported as an empty object.
		state = map[string]any{}
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	token, layout, ok := requestTarget(w, r)
	if !ok {
		return
	}

	var state any
	if err := decodeBody(r.Body, &state); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "Received malformed JSON")
		return
	}

	if _, err := s.backend.SetState(r.Context(), token, layout, state); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	token, layout, ok := requestTarget(w, r)
	if !ok {
		return
	}

	info, err := s.backend.GetLockData(r.Context(), token, layout)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	token, layout, ok := requestTarget(w, r)
	if !ok {
		return
	}

	var info map[string]any
	if err := decodeBody(r.Body, &info); err != nil {
		writeDetail(w, r, http.StatusBadRequest, "Received malformed JSON")
		return
	}

	if err := s.backend.AcquireLock(r.Context(), token, layout, info); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	token, layout, ok := requestTarget(w, r)
	if !ok {
		return
	}

	if err := s.backend.ReleaseLock(r.Context(), token, layout); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// requestTarget extracts the store token and the state layout from r. It
// writes an error response and returns false when either is missing.
func requestTarget(w http.ResponseWriter, r *http.Request) (string, chunkstate.Layout, bool) {
	token, _, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="tofu-vault-backend"`)
		writeDetail(w, r, http.StatusUnauthorized, "Not authenticated")
		return "", chunkstate.Layout{}, false
	}

	base := strings.Trim(r.PathValue("path"), "/")
	if base == "" {
		writeDetail(w, r, http.StatusBadRequest, "A secrets path is required")
		return "", chunkstate.Layout{}, false
	}
	return token, chunkstate.Layout{Base: base}, true
}

// decodeBody decodes exactly one JSON value from body, keeping numbers
// exact.
func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after the JSON value")
	}
	return nil
}
