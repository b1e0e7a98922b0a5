// Package version carries build metadata. Release builds set the variables
// with -ldflags; dev builds fall back to the embedded VCS info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	devVersion  = "0.1.0-dev"
	devRevision = "HEAD"
)

var (
	AppName   = "docsync"
	Version   = devVersion
	Revision  = devRevision
	BuildDate = ""
)

// Info is the machine readable form printed by `docsync version --json`.
type Info struct {
	App       string `json:"app" yaml:"app"`
	Version   string `json:"version" yaml:"version"`
	Revision  string `json:"revision" yaml:"revision"`
	BuildDate string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
	Go        string `json:"go" yaml:"go"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Current snapshots the build metadata.
func Current() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// fillFromBuildInfo only touches values ldflags left at their defaults.
func fillFromBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == devRevision || Revision == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if len(rev) > 12 {
				rev = rev[:12]
			}
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Revision = rev
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

// Short is "0.1.0 (5e23a4b1c2d3)".
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// String is the one-line banner logged at startup.
func String() string {
	i := Current()
	s := fmt.Sprintf("%s %s (%s; %s; %s)", i.App, i.Version, i.Revision, i.Go, i.Platform)
	if i.BuildDate != "" {
		s += " built " + i.BuildDate
	}
	return s
}

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	fillFromBuildInfo(info.Main.Version, settings)
}
