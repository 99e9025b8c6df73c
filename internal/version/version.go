// Package version carries build metadata stamped in via -ldflags, e.g.
//
//	go build -ldflags "-X basis-alerts/internal/version.Version=v1.2.0"
package version

var (
	// Version is the release tag of this binary.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = "unknown"
	// BuildDate is when the binary was built.
	BuildDate = "unknown"
)
