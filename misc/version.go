// Package misc keeps program identity.
package misc

import (
	"runtime/debug"
)

// set with -ldflags "-X cssc/misc.version=... -X cssc/misc.gitHash=..."
var (
	version = "dev"
	gitHash = ""
)

const appName = "cssc"

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

// GetGitHash returns commit program was built from, falling back to VCS
// information recorded by the toolchain.
func GetGitHash() string {
	if gitHash != "" {
		return gitHash
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
