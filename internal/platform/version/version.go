// Package version describes the running build. Release builds stamp it through -ldflags
// "-X github.com/pscheid92/forumcast/internal/platform/version.Version=...". Plain go builds
// fall back to the VCS stamp the toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const unknown = "unknown"

var (
	Version   = "dev"
	Commit    = unknown
	BuildTime = unknown
)

// Info is served on /version and exported as the build_info metric.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime, GoVersion: runtime.Version()}
	if build, ok := debug.ReadBuildInfo(); ok {
		info = info.withVCS(build.Settings)
	}
	return info
}

// withVCS fills a commit or build time the linker left unset. A dirty tree marks the commit.
func (i Info) withVCS(settings []debug.BuildSetting) Info {
	stamped := i.Commit != unknown
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if !stamped {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.BuildTime == unknown {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if !stamped && dirty && i.Commit != unknown {
		i.Commit += "-dirty"
	}
	return i
}

// String is "version (commit)" with the commit cut to seven characters.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (%s)", i.Version, commit)
}
