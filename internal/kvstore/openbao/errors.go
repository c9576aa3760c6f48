// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package openbao

import (
	"errors"
	"net"
	"net/http"
	"strings"

	openbao "github.com/openbao/openbao/api/v2"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

const (
	// tooLargeMessage is part of the error the server reports when its
	// storage refuses an entry because of its size.
	tooLargeMessage = "too large"

	casMismatchMessage = "check-and-set"
)

// translateError maps an error from the OpenBao client onto the kvstore
// error kinds. Errors it doesn't recognize are returned with the operation
// and path attached.
func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, openbao.ErrSecretNotFound) {
		return kvstore.NewError(op, path, kvstore.ErrNotFound, err)
	}

	var respErr *openbao.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusForbidden:
			return kvstore.NewError(op, path, kvstore.ErrForbidden, err)
		case respErr.StatusCode == http.StatusNotFound:
			return kvstore.NewError(op, path, kvstore.ErrNotFound, err)
		case respErr.StatusCode == http.StatusRequestEntityTooLarge:
			return kvstore.NewError(op, path, kvstore.ErrCapacityExceeded, err)
		case respErr.StatusCode == http.StatusBadRequest && mentions(respErr, casMismatchMessage):
			return kvstore.NewError(op, path, kvstore.ErrAlreadyExists, err)
		case respErr.StatusCode >= 500 && mentions(respErr, tooLargeMessage):
			return kvstore.NewError(op, path, kvstore.ErrCapacityExceeded, err)
		case respErr.StatusCode == http.StatusBadGateway || respErr.StatusCode == http.StatusServiceUnavailable:
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

var errUnexpectedResponse = errors.New("OpenBao request failed")

func mentions(respErr *openbao.ResponseError, msg string) bool {
	for _, e := range respErr.Errors {
		if strings.Contains(e, msg) {
			return true
		}
	}
	return false
}
