// Package version reports how the amanrag binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden by the release build through -ldflags "-X ...". Local builds
// fall back to the VCS stamp the Go toolchain embeds.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Modified  bool   `json:"modified,omitempty"`
}

// GetInfo combines the linker values with the embedded VCS stamp.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyVCS(&info, bi.Settings)
	}
	return info
}

// applyVCS fills fields the linker left at their placeholders.
func applyVCS(bi *BuildInfo, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if bi.Commit == "unknown" && s.Value != "" {
				bi.Commit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if bi.Date == "unknown" && s.Value != "" {
				bi.Date = s.Value
			}
		case "vcs.modified":
			bi.Modified = s.Value == "true"
		}
	}
}

// String is the one-line form printed by "amanrag version".
func String() string {
	i := GetInfo()
	dirty := ""
	if i.Modified {
		dirty = "+dirty"
	}
	return fmt.Sprintf("amanrag %s (commit: %s%s, built: %s, go: %s, %s/%s)",
		i.Version, i.Commit, dirty, i.Date, i.GoVersion, i.OS, i.Arch)
}

func Short() string { return Version }
