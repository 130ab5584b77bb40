// Package version holds build-time version information for shaker.
package version

import (
	"runtime"
	"runtime/debug"
)

// These variables can be overridden at build time using ldflags:
// go build -ldflags "-X shaker/internal/version.Version=1.0.0 -X shaker/internal/version.Commit=abc123"
var (
	// Version is the semantic version of shaker
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// Details is the machine-readable form of the version.
type Details struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the version details. A commit left unset at link time falls
// back to the VCS revision recorded by the Go toolchain.
func Get() Details {
	d := Details{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if d.Commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					d.Commit = s.Value
				case "vcs.time":
					if d.BuildDate == "unknown" {
						d.BuildDate = s.Value
					}
				}
			}
		}
	}
	return d
}

// Info returns a formatted version string
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	d := Get()
	return "shaker version " + d.Version + "\n" +
		"Commit: " + d.Commit + "\n" +
		"Built: " + d.BuildDate + "\n" +
		"Go: " + d.GoVersion + " " + d.Platform
}
