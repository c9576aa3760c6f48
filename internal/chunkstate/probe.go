// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import (
	"context"
	"errors"
	"log"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/metrics"
)

// probeChunkSize finds a fragment length the store accepts by writing the
// head of packed as fragment 0, halving the length every time the store
// reports that the entry is too large.
//
// On success fragment 0 has been written with the first cutoff bytes of
// packed and must not be written again. The search gives up with
// ErrProbeExhausted once the length reaches zero.
func probeChunkSize(ctx context.Context, store kvstore.Store, layout Layout, packed string) (int, error) {
	cutoff := len(packed)
	log.Printf("[INFO] Chunk size probing starting at %d chars", cutoff)

	for cutoff > 0 {
		log.Printf("[DEBUG] Probing with a state chunk of %d chars", cutoff)
		err := store.Put(ctx, layout.FragmentPath(0), fragmentData(packed[:cutoff]))
		if err == nil {
			metrics.ProbeAttempt(true)
			log.Printf("[INFO] Chunk size probing succeeded: length of %d is OK", cutoff)
			return cutoff, nil
		}
		if !errors.Is(err, kvstore.ErrCapacityExceeded) {
			return 0, err
		}

		metrics.ProbeAttempt(false)
		next := cutoff / 2
		log.Printf("[INFO] Chunk length %d too long, retrying with %d", cutoff, next)
		cutoff = next
	}

	return 0, ErrProbeExhausted
}
