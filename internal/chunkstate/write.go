// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
	"github.com/opentofu/tofu-vault-backend/internal/metrics"
	"github.com/opentofu/tofu-vault-backend/internal/statecodec"
)

// WriteResult summarizes a completed state write.
type WriteResult struct {
	// Fragments is the number of fragments the state was written as.
	Fragments int

	// Cutoff is the fragment length that was used.
	Cutoff int

	// Truncated lists the keys of stale fragments that were deleted.
	Truncated []string
}

// writeState packs value and rewrites every fragment of the state at layout,
// then deletes fragments left over from a longer previous state.
//
// Fragments are written one at a time and the first failure aborts the
// write. Nothing is rolled back, so a failed write can leave a mix of old
// and new fragments behind; writing again repairs it because every index
// is rewritten and the tail truncated.
func writeState(ctx context.Context, store kvstore.Store, layout Layout, opts Options, value any) (WriteResult, error) {
	var result WriteResult

	log.Printf("[DEBUG] Encoding & compressing state into string")
	packed, err := statecodec.Pack(value)
	if err != nil {
		return result, err
	}

	done, pos := 0, 0
	if opts.Probing() {
		log.Printf("[INFO] Chunk size probing enabled")
		cutoff, err := probeChunkSize(ctx, store, layout, packed)
		if err != nil {
			return result, err
		}
		result.Cutoff = cutoff
		done, pos = 1, cutoff
		metrics.FragmentsWritten(1)
	} else {
		log.Printf("[INFO] Chunk size probing disabled, set at %d bytes", opts.ChunkSize)
		cutoff, err := PlanCutoff(opts.ChunkSize, opts.Margin)
		if err != nil {
			return result, err
		}
		result.Cutoff = cutoff
	}

	for _, fragment := range Split(packed[pos:], result.Cutoff) {
		log.Printf("[DEBUG] Sending chunk %d [%d:%d]", done, pos, pos+len(fragment))
		err := store.Put(ctx, layout.FragmentPath(done), fragmentData(fragment))
		if err != nil {
			if !opts.Probing() && errors.Is(err, kvstore.ErrCapacityExceeded) {
				err = &ChunkSizeError{ChunkSize: opts.ChunkSize, Cutoff: result.Cutoff, Err: err}
			}
			return result, fmt.Errorf("writing state chunk %d: %w", done, err)
		}
		metrics.FragmentsWritten(1)
		done++
		pos += len(fragment)
	}
	result.Fragments = done

	truncated, err := deleteStaleFragments(ctx, store, layout, done)
	if err != nil {
		return result, err
	}
	result.Truncated = truncated
	return result, nil
}

// deleteStaleFragments soft-deletes every fragment whose index is not below
// count.
func deleteStaleFragments(ctx context.Context, store kvstore.Store, layout Layout, count int) ([]string, error) {
	keys, err := listFragmentKeys(ctx, store, layout)
	if errors.Is(err, ErrStateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, key := range keys {
		index, err := parseFragmentKey(key)
		if err != nil {
			return nil, err
		}
		if index >= count {
			stale = append(stale, key)
		}
	}

	log.Printf("[INFO] Marking unset chunks %s as deleted", strtuple(stale))
	for _, key := range stale {
		log.Printf("[DEBUG] Marking %s as deleted", key)
		if err := store.DeleteLatest(ctx, kvstore.JoinPath(layout.StatePath(), key)); err != nil {
			return nil, fmt.Errorf("deleting stale state chunk %s: %w", key, err)
		}
		metrics.StaleFragmentDeleted()
	}
	return stale, nil
}

// fragmentCount is a helper for log lines.
func fragmentCount(n int) string {
	if n == 1 {
		return "1 chunk"
	}
	return strconv.Itoa(n) + " chunks"
}
