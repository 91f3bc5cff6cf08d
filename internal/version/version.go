// Package version carries build metadata stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("murmur %s (commit=%s, date=%s, go=%s)", Version, Commit, Date, runtime.Version())
}

// UserAgent identifies murmur to remote transcription endpoints.
func UserAgent() string {
	return "murmur/" + Version
}
