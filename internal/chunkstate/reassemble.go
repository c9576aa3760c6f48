// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package chunkstate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"

	"github.com/opentofu/tofu-vault-backend/internal/kvstore"
)

// fragmentValueKey is the field of a fragment secret holding its text.
const fragmentValueKey = "value"

func fragmentData(text string) map[string]any {
	return map[string]any{fragmentValueKey: text}
}

// Fragment is a state fragment as read back from the store.
type Fragment struct {
	// Key is the name the fragment was listed under.
	Key string

	Value string

	// Deleted is true when the latest version of the fragment carries a
	// deletion marker. Deleted fragments contribute nothing to the state.
	Deleted bool
}

// Reassemble rebuilds the packed state text from its fragments.
//
// Deleted fragments are skipped. The rest are ordered by the integer value
// of their keys, so "10" follows "9", and concatenated.
func Reassemble(fragments []Fragment) (string, error) {
	type indexed struct {
		index int
		value string
	}
	valid := make([]indexed, 0, len(fragments))
	for _, f := range fragments {
		if f.Deleted {
			continue
		}
		index, err := parseFragmentKey(f.Key)
		if err != nil {
			return "", err
		}
		valid = append(valid, indexed{index: index, value: f.Value})
	}

	slices.SortFunc(valid, func(a, b indexed) int {
		return a.index - b.index
	})

	var out strings.Builder
	for _, f := range valid {
		out.WriteString(f.value)
	}
	return out.String(), nil
}

func parseFragmentKey(key string) (int, error) {
	index, err := strconv.Atoi(key)
	if err != nil || index < 0 {
		return 0, &FragmentKeyError{Key: key}
	}
	return index, nil
}

// listFragmentKeys returns the keys under the state path, or
// ErrStateNotFound if there are none.
func listFragmentKeys(ctx context.Context, store kvstore.Store, layout Layout) ([]string, error) {
	log.Printf("[DEBUG] Looking for state chunks under %s", layout.StatePath())
	keys, err := store.List(ctx, layout.StatePath())
	if errors.Is(err, kvstore.ErrNotFound) || (err == nil && len(keys) == 0) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Found %d state chunks: %s", len(keys), strtuple(keys))
	return keys, nil
}

// readFragments reads every fragment listed under the state path.
func readFragments(ctx context.Context, store kvstore.Store, layout Layout) ([]Fragment, error) {
	keys, err := listFragmentKeys(ctx, store, layout)
	if err != nil {
		return nil, err
	}

	fragments := make([]Fragment, 0, len(keys))
	var valid, invalid []string
	for _, key := range keys {
		log.Printf("[DEBUG] Getting state chunk %s", key)
		secret, err := store.Get(ctx, kvstore.JoinPath(layout.StatePath(), key))
		if err != nil {
			return nil, fmt.Errorf("reading state chunk %s: %w", key, err)
		}
		if secret.Deleted() {
			log.Printf("[INFO] State chunk %s has been deleted, marked as invalid", key)
			invalid = append(invalid, key)
			fragments = append(fragments, Fragment{Key: key, Deleted: true})
			continue
		}
		value, ok := secret.Data[fragmentValueKey].(string)
		if !ok {
			return nil, &FragmentValueError{Key: key}
		}
		valid = append(valid, key)
		fragments = append(fragments, Fragment{Key: key, Value: value})
	}

	log.Printf("[INFO] Total chunks: %s", strtuple(keys))
	log.Printf("[INFO] Valid chunks: %s", strtuple(valid))
	log.Printf("[INFO] Invalid chunks: %s", strtuple(invalid))
	return fragments, nil
}

func strtuple(xs []string) string {
	return "(" + strings.Join(xs, ", ") + ")"
}
