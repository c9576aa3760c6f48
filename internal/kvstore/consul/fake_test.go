// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package consul

import (
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeKV serves the part of Consul's /v1/kv API that Store uses.
type fakeKV struct {
	// MaxValueSize, when positive, is the largest value accepted.
	MaxValueSize int
	// Token, when set, is the only ACL token accepted.
	Token string

	mu     sync.Mutex
	values map[string][]byte
	index  map[string]uint64
	next   uint64
}

func newFakeKV(t *testing.T) (*fakeKV, *httptest.Server) {
	t.Helper()
	f := &fakeKV{
		values: map[string][]byte{},
		index:  map[string]uint64{},
		next:   1,
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeKV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Consul-Index", strconv.FormatUint(f.next, 10))
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("X-Consul-KnownLeader", "true")

	if f.Token != "" && r.Header.Get("X-Consul-Token") != f.Token {
		http.Error(w, "Permission denied: token lacks permission", http.StatusForbidden)
		return
	}

	key, ok := strings.CutPrefix(r.URL.Path, "/v1/kv/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	query := r.URL.Query()

	switch r.Method {
	case http.MethodGet:
		if query.Has("keys") {
			f.keys(w, key, query.Get("separator"))
			return
		}
		value, ok := f.values[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, []map[string]any{{
			"Key":         key,
			"Value":       value,
			"CreateIndex": f.index[key],
			"ModifyIndex": f.index[key],
			"Flags":       0,
		}})

	case http.MethodPut:
		value, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f.MaxValueSize > 0 && len(value) > f.MaxValueSize {
			http.Error(w, "Value exceeds "+strconv.Itoa(f.MaxValueSize)+" byte limit", http.StatusRequestEntityTooLarge)
			return
		}
		if query.Has("cas") {
			cas, _ := strconv.ParseUint(query.Get("cas"), 10, 64)
			if f.index[key] != cas {
				writeJSON(w, false)
				return
			}
		}
		f.values[key] = value
		f.index[key] = f.next
		f.next++
		writeJSON(w, true)

	case http.MethodDelete:
		delete(f.values, key)
		delete(f.index, key)
		writeJSON(w, true)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *fakeKV) keys(w http.ResponseWriter, prefix, separator string) {
	found := map[string]struct{}{}
	for k := range f.values {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		if separator != "" {
			if i := strings.Index(rest, separator); i >= 0 {
				rest = rest[:i+len(separator)]
			}
		}
		found[prefix+rest] = struct{}{}
	}
	if len(found) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, slices.Sorted(maps.Keys(found)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
