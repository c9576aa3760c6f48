// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
)

const (
	appendUaEnvVar = "TOFU_VAULT_APPEND_USER_AGENT"
	customUaEnvVar = "TOFU_VAULT_USER_AGENT"

	DefaultApplicationName = "tofu-vault-backend"
)

type userAgentRoundTripper struct {
	inner     http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := req.Header["User-Agent"]; !ok {
		req.Header.Set("User-Agent", rt.userAgent)
	}
	log.Printf("[TRACE] HTTP client %s request to %s", req.Method, req.URL.String())
	return rt.inner.RoundTrip(req)
}

// UserAgent returns the User-Agent string sent to the secret store.
//
// TOFU_VAULT_USER_AGENT replaces the default entirely, and
// TOFU_VAULT_APPEND_USER_AGENT adds a suffix to whichever base is in use.
func UserAgent(version string) string {
	ua := fmt.Sprintf("%s/%s", DefaultApplicationName, version)
	if custom := os.Getenv(customUaEnvVar); custom != "" {
		ua = custom
		log.Printf("[DEBUG] Using custom User-Agent: %s", ua)
	}

	if add := os.Getenv(appendUaEnvVar); add != "" {
		add = strings.TrimSpace(add)
		if len(add) > 0 {
			ua += " " + add
			log.Printf("[DEBUG] Using modified User-Agent: %s", ua)
		}
	}

	return ua
}
