package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set at build time:
//
//	-ldflags "-X github.com/MrSnakeDoc/factsync/internal/version.Version=v0.2.0 ..."
var (
	Version   = "dev"                           // ex: v0.2.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()               // go version
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("factsync %s (commit=%s, built=%s, go=%s, %s/%s)",
		Version, Commit, BuildDate, GoVersion, runtime.GOOS, runtime.GOARCH)
}
