// Package version exposes the build identity stamped into the binary.
//
// Release builds inject the variables through ldflags:
//
//	go build -ldflags "\
//	  -X github.com/membank-io/membank/pkg/version.Version=1.2.0 \
//	  -X github.com/membank-io/membank/pkg/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/membank-io/membank/pkg/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
)

// Build identity. Plain `go build` leaves the defaults in place.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"

	// GoVersion comes from the runtime, never from ldflags.
	GoVersion = runtime.Version()
)

// BuildInfo is the JSON shape behind `membank version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String renders the one-line human form.
func String() string {
	return fmt.Sprintf("membank %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

// Short returns the bare version.
func Short() string {
	return Version
}

// GetInfo collects the build identity plus the target platform.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
