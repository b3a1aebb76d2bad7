package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridable at build time through -ldflags.
var (
	// Version is the released server version.
	Version = "1.2.0"

	// GitCommit identifies the commit the binary was built from.
	GitCommit = "unknown"
)

// Get returns the server version, preferring the ldflags value and falling
// back to module build info.
func Get() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

// Banner returns the startup line peer tooling expects on stderr.
func Banner() string {
	return fmt.Sprintf("The CodeChat Server, v.%s\n", Get())
}

// UserAgent identifies the server in diagnostics.
func UserAgent() string {
	return fmt.Sprintf("codechat-server/%s (%s/%s)", Get(), runtime.GOOS, runtime.GOARCH)
}
