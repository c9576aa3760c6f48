// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package version holds the version information of the backend service.
package version

import (
	"fmt"

	version "github.com/hashicorp/go-version"
)

// Version is the main version number that is being run at the moment.
//
// Release builds override this with -ldflags.
var Version = "0.3.0"

// Prerelease is a pre-release marker for the version. If this is "" (empty
// string) then it means that it is a final release. Otherwise, this is a
// pre-release such as "dev" (in development), "beta", "rc1", etc.
var Prerelease = "dev"

// SemVer is an instance of version.Version. This has the secondary
// benefit of verifying during tests and init time that our version is a
// proper semantic version, which should always be the case.
var SemVer *version.Version

func init() {
	SemVer = version.Must(version.NewVersion(Version))
}

// Header is the header name used to send the current version
// in http requests.
const Header = "Tofu-Vault-Backend-Version"

// String returns the complete version string, including prerelease
func String() string {
	if Prerelease != "" {
		return fmt.Sprintf("%s-%s", Version, Prerelease)
	}
	return Version
}
