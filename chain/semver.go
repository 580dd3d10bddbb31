// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"strconv"
	"strings"
)

type semver struct {
	major, minor, patch uint32
}

// parseSemver parses a dotted "major.minor.patch" version string.
// Missing components default to zero and any pre-release or build
// suffix on the final component is ignored.
func parseSemver(s string) (semver, error) {
	var v semver
	parts := strings.SplitN(s, ".", 3)
	fields := []*uint32{&v.major, &v.minor, &v.patch}
	for i, part := range parts {
		if i == len(parts)-1 {
			if idx := strings.IndexAny(part, "-+"); idx != -1 {
				part = part[:idx]
			}
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return semver{}, fmt.Errorf("malformed version %q: %v", s, err)
		}
		*fields[i] = uint32(n)
	}
	return v, nil
}

// newerThan reports whether v is strictly newer than other.
func (v semver) newerThan(other semver) bool {
	switch {
	case v.major != other.major:
		return v.major > other.major
	case v.minor != other.minor:
		return v.minor > other.minor
	default:
		return v.patch > other.patch
	}
}
