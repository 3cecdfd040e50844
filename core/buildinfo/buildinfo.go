// Package buildinfo exposes version metadata stamped at link time:
//
//	go build -ldflags "-X 'github.com/m3rciful/pitarabot/core/buildinfo.Version=v1.2.3' \
//	  -X 'github.com/m3rciful/pitarabot/core/buildinfo.Commit=abcdef0' \
//	  -X 'github.com/m3rciful/pitarabot/core/buildinfo.Date=2026-01-30T12:00:00Z'"
package buildinfo

import "fmt"

var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders the build metadata on one line.
func String() string {
	if Date == "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, Date)
}
