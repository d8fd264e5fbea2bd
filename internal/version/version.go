package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the full human-readable version line
func String() string {
	return fmt.Sprintf("fsguard %s (commit: %s, built: %s, go: %s)",
		Version, Commit, BuildTime, runtime.Version())
}
