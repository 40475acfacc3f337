package tools

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/co2mcp/pkg/version"
)

// VersionInfo is the get_version output
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Platform  string `json:"platform"`
}

func GetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the version and build information of the CO2 estimator service"),
	)
}

// HandleGetVersion reports the build metadata stamped into the binary
var HandleGetVersion = WithParsedInput("get_version", func(ctx context.Context, _ struct{}, logger *slog.Logger) (interface{}, error) {
	return VersionInfo{
		Version:   version.BuildVersion,
		GoVersion: runtime.Version(),
		BuildTime: version.BuildDate,
		Commit:    version.BuildCommit,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}, nil
})
