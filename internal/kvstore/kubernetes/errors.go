// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package kubernetes

import (
	"errors"
	"net"
	"strings"

	k8serrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

var errUnexpectedResponse = errors.New("Kubernetes request failed")

// translateError maps an error from the API server onto the kvstore error
// kinds.
func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case k8serrors.IsNotFound(err):
		return kvstore.NewError(op, path, kvstore.ErrNotFound, err)
	case k8serrors.IsAlreadyExists(err):
		return kvstore.NewError(op, path, kvstore.ErrAlreadyExists, err)
	case k8serrors.IsForbidden(err), k8serrors.IsUnauthorized(err):
		return kvstore.NewError(op, path, kvstore.ErrForbidden, err)
	case k8serrors.IsRequestEntityTooLargeError(err),
		k8serrors.IsInvalid(err) && strings.Contains(err.Error(), "Too long"):
		return kvstore.NewError(op, path, kvstore.ErrCapacityExceeded, err)
	case k8serrors.IsServiceUnavailable(err), k8serrors.IsTimeout(err),
		k8serrors.IsServerTimeout(err), k8serrors.IsTooManyRequests(err):
		return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return kvstore.NewError(op, path, kvstore.ErrUnavailable, err)
	}
	return &kvstore.Error{Op: op, Path: path, Kind: errUnexpectedResponse, Err: err}
}
