// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/opentofu/tofu-vault-backend/internal/chunkstate"
	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/logging"
)

const forbiddenDetail = "Vault authentication failed. Bad token or insufficient token scope."

// errorBody is the shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

// statusFor maps an error from the backend onto a response status and
// detail message.
func statusFor(err error) (int, string) {
	var lockErr *chunkstate.LockError
	switch {
	case errors.Is(err, chunkstate.ErrStateNotFound):
		return http.StatusNotFound, "No state exists"
	case errors.Is(err, chunkstate.ErrLockNotFound):
		return http.StatusNotFound, "No lock held"
	case errors.As(err, &lockErr):
		return http.StatusLocked, "Lock cannot be acquired: already locked"
	case errors.Is(err, kvstore.ErrForbidden):
		return http.StatusForbidden, forbiddenDetail
	case errors.Is(err, kvstore.ErrUnavailable):
		return http.StatusBadGateway, "The secret store could not be reached"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	logger := hclog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Debug("request refused", "status", status, "error", err)
	}

	// OpenTofu's http backend reads the current holder from the body of a
	// 423 response.
	var lockErr *chunkstate.LockError
	if status == http.StatusLocked && errors.As(err, &lockErr) && len(lockErr.Info) > 0 {
		writeJSON(w, status, lockErr.Info)
		return
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	hclog.FromContext(r.Context()).Debug("request refused", "status", status, "detail", detail)
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HCLogger().Warn("failed to write response body", "error", err)
	}
}
