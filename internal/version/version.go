// Package version reports how the running binary was built. The values are
// stamped in by cmd/dockyard from its own linker variables:
//
//	go build -ldflags "-X main.Version=v1.2.0 -X main.GitCommit=$(git rev-parse HEAD)" ./cmd/dockyard
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info is served by /health and printed by "dockyard version".
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// UserAgent identifies Dockyard to the engines it drives.
func UserAgent() string {
	return "dockyard/" + Version
}

// ShortCommit is the first seven characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.GitCommit) > 7 {
		return i.GitCommit[:7]
	}
	return i.GitCommit
}

func (i Info) String() string {
	return fmt.Sprintf("Dockyard %s (commit %s, %s, built %s)",
		i.Version, i.ShortCommit(), i.Platform, i.BuildTime)
}
