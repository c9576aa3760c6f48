// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package openbao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore/inmem"
)

const testToken = "s.test-token"

// fakeKV serves the subset of the KV version 2 HTTP API that Store uses,
// keeping the secrets in an inmem.Store.
type fakeKV struct {
	mount string
	store *inmem.Store
	// created is the creation time reported for every version.
	created time.Time
}

func newFakeKV(t *testing.T, mount string) (*fakeKV, *httptest.Server) {
	t.Helper()
	f := &fakeKV{
		mount:   mount,
		store:   inmem.New(),
		created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeKV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.Header.Get("X-Vault-Token")
	if token == "" {
		token = r.Header.Get("X-Bao-Token")
	}
	if token != testToken {
		writeKVError(w, http.StatusForbidden, "permission denied")
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/v1/"+f.mount+"/")
	if !ok {
		writeKVError(w, http.StatusNotFound, "no handler for route")
		return
	}
	kind, path, _ := strings.Cut(rest, "/")

	switch {
	case kind == "data" && r.Method == http.MethodGet:
		f.read(ctx, w, path)
	case kind == "data" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		f.write(ctx, w, r, path)
	case kind == "data" && r.Method == http.MethodDelete:
		err := f.store.DeleteLatest(ctx, path)
		if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			writeKVError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case kind == "metadata" && (r.Method == "LIST" || r.URL.Query().Get("list") == "true"):
		keys, err := f.store.List(ctx, path)
		if err != nil {
			writeKVError(w, http.StatusNotFound)
			return
		}
		writeKVData(w, http.StatusOK, map[string]any{"keys": keys})
	case kind == "metadata" && r.Method == http.MethodGet:
		if f.store.Versions(path) == 0 {
			writeKVError(w, http.StatusNotFound)
			return
		}
		writeKVData(w, http.StatusOK, map[string]any{
			"current_version": f.store.Versions(path),
			"created_time":    f.created.Format(time.RFC3339),
			"updated_time":    f.created.Format(time.RFC3339),
		})
	case kind == "metadata" && r.Method == http.MethodDelete:
		_ = f.store.Destroy(ctx, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeKVError(w, http.StatusMethodNotAllowed, "unsupported operation")
	}
}

func (f *fakeKV) versionMetadata(path string, deleted time.Time) map[string]any {
	deletion := ""
	if !deleted.IsZero() {
		deletion = deleted.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"created_time":  f.created.Format(time.RFC3339),
		"deletion_time": deletion,
		"destroyed":     false,
		"version":       f.store.Versions(path),
	}
}

func (f *fakeKV) read(ctx context.Context, w http.ResponseWriter, path string) {
	secret, err := f.store.Get(ctx, path)
	if err != nil {
		writeKVError(w, http.StatusNotFound)
		return
	}
	if secret.Deleted() {
		// The server still describes a deleted version, with a 404.
		writeKVData(w, http.StatusNotFound, map[string]any{
			"data":     nil,
			"metadata": f.versionMetadata(path, secret.DeletionTime),
		})
		return
	}
	writeKVData(w, http.StatusOK, map[string]any{
		"data":     secret.Data,
		"metadata": f.versionMetadata(path, time.Time{}),
	})
}

func (f *fakeKV) write(ctx context.Context, w http.ResponseWriter, r *http.Request, path string) {
	var body struct {
		Data    map[string]any `json:"data"`
		Options map[string]any `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeKVError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	if cas, ok := body.Options["cas"]; ok && fmt.Sprint(cas) == "0" {
		err = f.store.Create(ctx, path, body.Data)
	} else {
		err = f.store.Put(ctx, path, body.Data)
	}
	switch {
	case errors.Is(err, kvstore.ErrAlreadyExists):
		writeKVError(w, http.StatusBadRequest, "check-and-set parameter did not match the current version")
		return
	case errors.Is(err, kvstore.ErrCapacityExceeded):
		writeKVError(w, http.StatusInternalServerError, "put failed due to value being too large; got 600000 bytes, max: 524288 bytes")
		return
	case err != nil:
		writeKVError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeKVData(w, http.StatusOK, f.versionMetadata(path, time.Time{}))
}

func writeKVData(w http.ResponseWriter, status int, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeKVError(w http.ResponseWriter, status int, msgs ...string) {
	if msgs == nil {
		msgs = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"errors": msgs})
}
