// Package version carries build information for the backoffice binary.
// The variables are set at build time via ldflags and mirrored into
// prometheus/common/version so the build_info metric and the version
// command agree.
package version

import (
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	pversion "github.com/prometheus/common/version"
)

// Program is the name used in the version banner and as the metric namespace.
const Program = "backoffice"

// Build information variables.
// Example: go build -ldflags "-X backoffice/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version (e.g., "v1.2.3" or "dev" for development builds).
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

func mirror() {
	pversion.Version = Version
	if Commit != "none" {
		pversion.Revision = Commit
	}
	pversion.BuildDate = Date
}

// String formats the build information for humans.
func String() string {
	mirror()
	return pversion.Print(Program)
}

// NewCollector returns the backoffice_build_info collector.
func NewCollector() prometheus.Collector {
	mirror()
	return versioncollector.NewCollector(Program)
}
