// Package version provides information about the build version of the harvester.
package version

import "github.com/rs/zerolog"

// BuildInfo holds version information about the build.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are set at build time using -ldflags.
func Info() BuildInfo {
	// -ldflags "-X 'forumstats/internal/core/version.version=v0.1.0'
	// -X 'forumstats/internal/core/version.commit=abcd' -X 'forumstats/internal/core/version.date=2026-10-01'"
	return BuildInfo{
		Service: "forumstats-harvest",
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// MarshalZerologObject lets the build info ride along as a nested log object
func (b BuildInfo) MarshalZerologObject(e *zerolog.Event) {
	e.Str("service", b.Service).Str("version", b.Version).Str("commit", b.Commit).Str("date", b.Date)
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
