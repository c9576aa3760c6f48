// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package consul

import (
	"errors"
	"net"
	"net/http"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

// translateError maps an error from the Consul client onto the kvstore
// error kinds.
func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var statusErr consulapi.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusRequestEntityTooLarge,
			strings.Contains(statusErr.Body, "Value exceeds"):
			return kvstore.NewError(op, path, kvstore.ErrCapacityExceeded, err)
		case statusErr.Code == http.StatusForbidden,
			strings.Contains(statusErr.Body, "Permission denied"),
			strings.Contains(statusErr.Body, "ACL not found"):
			return kvstore.NewError(op, path, kvstore.ErrForbidden, err)
		case statusErr.Code == http.StatusNotFound:
			return kvstore.NewError(op, path, kvstore.ErrNotFound, err)
		case statusErr.Code == http.StatusServiceUnavailable || statusErr.Code == http.StatusBadGateway:
			return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
		}
		return &kvstore.Error{Op: op, Path: path, Kind: errUnexpectedResponse, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
	}
	return &kvstore.Error{Op: op, Path: path, Kind: errUnexpectedResponse, Err: err}
}
