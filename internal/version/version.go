// Package version contains build version information.
package version

// Set at build time via ldflags, for example
// -X .../internal/version.Version=1.2.3.
var (
	Version   = "0.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
