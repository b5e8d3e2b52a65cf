// Package version reports codechat build information.
package version

import (
	"fmt"
	"runtime"
)

// Version is injected with -ldflags "-X github.com/Aman-CERP/codechat/pkg/version.Version=...".
var Version = "dev"

// Build metadata, injected the same way.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// BuildInfo is the JSON form of `codechat version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the one-line form used by the CLI and the MCP handshake log.
func String() string {
	return fmt.Sprintf("codechat %s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}
