package version

import "fmt"

// Version and Commit are overridden at build time via
// -ldflags "-X dialogical/internal/version.Version=... -X dialogical/internal/version.Commit=...".
var (
	Version = "0.1.0-dev"
	Commit  = ""
)

// String returns a human-readable version string.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
