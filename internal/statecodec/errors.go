// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package statecodec

import (
	"errors"
	"fmt"
)

// ErrMissingVersion is returned when an envelope has no version prefix.
var ErrMissingVersion = errors.New("version format prefix is missing")

// UnsupportedVersionError is returned when an envelope carries a version
// prefix other than FormatVersion.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported state format version: %s", e.Version)
}

// PayloadError is returned when the payload following a valid version
// prefix cannot be decoded.
type PayloadError struct {
	// Step names the decoding stage that failed.
	Step string
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed state payload (%s): %s", e.Step, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err, or any error it wraps, was produced
// because an envelope could not be parsed.
func IsFormatError(err error) bool {
	var unsupported *UnsupportedVersionError
	var payload *PayloadError
	return errors.Is(err, ErrMissingVersion) ||
		errors.As(err, &unsupported) ||
		errors.As(err, &payload)
}
