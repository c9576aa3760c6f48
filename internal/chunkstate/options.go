// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import "fmt"

const (
	// ChunkSizeAuto asks the writer to discover the largest fragment the
	// store accepts instead of using a configured size.
	ChunkSizeAuto = -1

	// DefaultMargin is the number of bytes of a configured chunk size that
	// are reserved for the request envelope around each fragment.
	DefaultMargin = 1000
)

// Options controls how states are split into fragments. It is fixed for the
// lifetime of an Engine.
type Options struct {
	// ChunkSize is the largest entry, in bytes, the store accepts, or
	// ChunkSizeAuto to probe for it on every write.
	ChunkSize int

	// Margin is subtracted from ChunkSize to get the fragment length.
	Margin int
}

// DefaultOptions returns options that probe for the chunk size.
func DefaultOptions() Options {
	return Options{
		ChunkSize: ChunkSizeAuto,
		Margin:    DefaultMargin,
	}
}

// Probing reports whether the chunk size is discovered at write time.
func (o Options) Probing() bool {
	return o.ChunkSize == ChunkSizeAuto
}

// Validate checks that the options describe a usable fragment length.
func (o Options) Validate() error {
	if o.Margin < 0 {
		return fmt.Errorf("%w: margin must not be negative, got %d", ErrInvalidChunkSize, o.Margin)
	}
	if o.Probing() {
		return nil
	}
	if _, err := PlanCutoff(o.ChunkSize, o.Margin); err != nil {
		return err
	}
	return nil
}
