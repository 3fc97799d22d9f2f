// Package version carries build metadata injected through ldflags.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String renders the version for logs, mDNS TXT records, and the
// status API: "v1.2.0+4f9c21d8", or just "dev" for local builds.
func String() string {
	s := Version
	if GitSHA != "" && GitSHA != "unknown" {
		sha := GitSHA
		if len(sha) > 8 {
			sha = sha[:8]
		}
		s += "+" + sha
	}
	return s
}
