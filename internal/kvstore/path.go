// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package kvstore

import "strings"

// JoinPath joins path elements with "/", skipping empty elements. Unlike
// path.Join it does not clean the result, so callers control the layout.
func JoinPath(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "/")
}
