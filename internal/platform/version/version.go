// Package version identifies the running build in logs, the /version
// endpoint and the User-Agent sent to the results feed.
package version

import (
	"runtime"
	"runtime/debug"
)

const product = "elections-2022"

// Set with -ldflags "-X .../version.Version=..." on release builds. Commit
// and BuildTime fall back to the VCS stamp the go tool embeds.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withVCS(bi.Settings)
	}
	return info
}

func (i Info) withVCS(settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "unknown" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "unknown" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
	return i
}

// UserAgent names component of this build for outbound requests, e.g.
// "elections-2022-collector/v1.2.0 (3f2a9c1)".
func UserAgent(component string) string {
	i := Get()
	ua := product + "-" + component + "/" + i.Version
	if i.Commit != "unknown" {
		ua += " (" + shortCommit(i.Commit) + ")"
	}
	return ua
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// LogAttrs returns the build as slog key/value pairs.
func (i Info) LogAttrs() []any {
	return []any{"version", i.Version, "commit", i.Commit, "build_time", i.BuildTime, "go_version", i.GoVersion}
}
