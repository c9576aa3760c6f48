// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package statecodec converts state values to and from the versioned text
// envelope that is stored, in fragments, in the secret store.
//
// The envelope has the form
//
//	<version>:<base64(gzip(json(value)))>
//
// The compression is deterministic so that packing the same value twice
// yields byte-identical envelopes.
package statecodec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

// FormatVersion is the only envelope version this package reads and writes.
const FormatVersion = "v0"

const (
	separator = ":"

	// version + payload
	envelopePieces = 2
)

// Pack encodes the given JSON-representable value into an envelope.
//
// Pack is the inverse of Unpack.
func Pack(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding state as JSON: %w", err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", err
	}
	// The zero-valued header carries no name and a zero modification time,
	// which keeps the output reproducible.
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("compressing state: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compressing state: %w", err)
	}

	return FormatVersion + separator + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Unpack decodes an envelope produced by Pack.
//
// Numbers are decoded as json.Number so that large integers such as state
// serials survive a round trip unchanged.
func Unpack(envelope string) (any, error) {
	pieces := strings.SplitN(envelope, separator, envelopePieces)
	if len(pieces) != envelopePieces {
		return nil, ErrMissingVersion
	}
	version, payload := pieces[0], pieces[1]
	if version != FormatVersion {
		return nil, &UnsupportedVersionError{Version: version}
	}

	compressed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &PayloadError{Step: "base64", Err: err}
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &PayloadError{Step: "gzip", Err: err}
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, &PayloadError{Step: "gzip", Err: err}
	}
	if err := zr.Close(); err != nil {
		return nil, &PayloadError{Step: "gzip", Err: err}
	}

	if !utf8.Valid(raw) {
		return nil, &PayloadError{Step: "utf-8", Err: fmt.Errorf("payload is not valid UTF-8")}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &PayloadError{Step: "json", Err: err}
	}
	if dec.More() {
		return nil, &PayloadError{Step: "json", Err: fmt.Errorf("unexpected data after JSON value")}
	}
	return v, nil
}
