package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the product name reported by the server and the CLI
const Name = "um-label-server"

// Set at build time with -ldflags "-X .../internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Info returns build metadata. Values not injected by ldflags are taken from
// the VCS stamp of the Go build when present.
func Info() BuildInfo {
	info := BuildInfo{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "unknown" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "unknown" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	return info
}

// String returns a one-line version banner
func String() string {
	i := Info()
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", i.Name, i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
}
