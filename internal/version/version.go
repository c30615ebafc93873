// Package version exposes the collector's build identity.
//
// The variables are injected at build time:
//
//	go build -ldflags "-X github.com/avolkov/futures-data/internal/version.Version=1.0.0 \
//	                   -X github.com/avolkov/futures-data/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/avolkov/futures-data/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the semantic release version, "dev" for local builds.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp in ISO 8601.
	BuildTime = "unknown"
)

// String renders the build identity for -version output and startup logs.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
