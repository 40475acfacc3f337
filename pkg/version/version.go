// Package version carries build metadata, set with -ldflags at build time:
//
//	go build -ldflags "-X github.com/NERVsystems/co2mcp/pkg/version.BuildVersion=v1.2.0"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if BuildVersion == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		BuildVersion = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if BuildCommit == "unknown" {
				BuildCommit = s.Value
			}
		case "vcs.time":
			if BuildDate == "unknown" {
				BuildDate = s.Value
			}
		}
	}
}

// Info returns the build metadata as labels
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"go_version": runtime.Version(),
		"commit":     BuildCommit,
		"build_date": BuildDate,
	}
}

// String is the one-line form printed by --version
func String() string {
	return fmt.Sprintf("co2mcp %s (commit %s, built %s, %s)", BuildVersion, BuildCommit, BuildDate, runtime.Version())
}
