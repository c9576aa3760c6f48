// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package pg

import (
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

var errUnexpectedResponse = errors.New("Postgres request failed")

// translateError maps an error from the database onto the kvstore error
// kinds.
func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "28000", pqErr.Code == "28P01", pqErr.Code == "42501":
			return kvstore.NewError(op, path, kvstore.ErrForbidden, err)
		case pqErr.Code == "54000":
			return kvstore.NewError(op, path, kvstore.ErrCapacityExceeded, err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
		}
		return &kvstore.Error{Op: op, Path: path, Kind: errUnexpectedResponse, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
	}
	return &kvstore.Error{Op: op, Path: path, Kind: errUnexpectedResponse, Err: err}
}
