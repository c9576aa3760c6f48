// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import "fmt"

// PlanCutoff returns the fragment length to use for a store whose entries
// may be at most chunkSize bytes.
//
// The packed state is base64 text, so one character is one byte; margin
// leaves room for the JSON wrapper and request overhead around each
// fragment.
func PlanCutoff(chunkSize, margin int) (int, error) {
	cutoff := chunkSize - margin
	if cutoff <= 0 {
		return 0, fmt.Errorf("%w: chunk size %d leaves no room for data after the %d byte margin", ErrInvalidChunkSize, chunkSize, margin)
	}
	return cutoff, nil
}

// Split cuts text into consecutive pieces of cutoff bytes. The last piece
// may be shorter. Empty text yields no pieces.
func Split(text string, cutoff int) []string {
	if cutoff <= 0 {
		panic(fmt.Sprintf("chunkstate.Split called with non-positive cutoff %d", cutoff))
	}
	pieces := make([]string, 0, (len(text)+cutoff-1)/cutoff)
	for len(text) > cutoff {
		pieces = append(pieces, text[:cutoff])
		text = text[cutoff:]
	}
	if len(text) > 0 {
		pieces = append(pieces, text)
	}
	return pieces
}
