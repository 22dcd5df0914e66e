// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X customllm/internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "1.0.0"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("customllm %s (commit: %s, built: %s)", Version, Commit, Date)
}
