package sockdiag

import (
	"strconv"
	"strings"
)

// Kernels older than this lack INET_DIAG_MARK in unprivileged dumps and
// a tcp_info that is stable enough to track.
const (
	minKernelMajor = 4
	minKernelMinor = 14
)

// releaseAtLeast reports whether a uname release string such as
// "5.15.0-91-generic" is at least major.minor.
func releaseAtLeast(release string, major, minor int) bool {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return false
	}
	maj, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minStr := parts[1]
	if i := strings.IndexFunc(minStr, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minStr = minStr[:i]
	}
	mnr, err := strconv.Atoi(minStr)
	if err != nil {
		return false
	}
	if maj != major {
		return maj > major
	}
	return mnr >= minor
}
