package version

import "fmt"

// Build metadata, overridden through -ldflags at release time. The
// defaults identify a local development build.
var (
	//nolint:gochecknoglobals // Set by the linker.
	Version = "1.0.0"
	//nolint:gochecknoglobals // Set by the linker.
	Commit = "none"
	//nolint:gochecknoglobals // Set by the linker.
	BuildTime = "unknown"
)

// Short returns the bare semantic version.
func Short() string {
	return Version
}

// Full returns the version with its commit and build timestamp, for the
// version subcommand and startup logging.
func Full() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime)
}
