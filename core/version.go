package core

import (
	"runtime/debug"
	"strings"
)

// Build metadata, injected with ldflags:
//
//	go build -ldflags "-X promptbatch/core.Version=$(git describe --tags --always)"
//
// When GitCommit is not injected it falls back to the vcs.revision
// recorded by the Go toolchain.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const ldflagsPackage = "promptbatch/core"

// GetVersion returns the application version string.
func GetVersion() string {
	return Version
}

// GetBuildTime returns the build timestamp.
func GetBuildTime() string {
	return BuildTime
}

// GetGitCommit returns the injected commit, or the toolchain-recorded
// revision shortened to 7 characters.
func GetGitCommit() string {
	if GitCommit != "unknown" && GitCommit != "" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > 7 {
					return s.Value[:7]
				}
				return s.Value
			}
		}
	}
	return GitCommit
}

// GetVersionInfo returns e.g. "v1.0.0 (built 2024-01-15T10:30:00Z, commit abc1234)".
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GetGitCommit() + ")"
}

// BuildLdflags returns the -X flags injecting the given values. Empty
// values are skipped.
func BuildLdflags(version, buildTime, gitCommit string) string {
	var flags []string
	for _, kv := range [][2]string{
		{"Version", version},
		{"BuildTime", buildTime},
		{"GitCommit", gitCommit},
	} {
		if kv[1] != "" {
			flags = append(flags, "-X "+ldflagsPackage+"."+kv[0]+"="+kv[1])
		}
	}
	return strings.Join(flags, " ")
}
