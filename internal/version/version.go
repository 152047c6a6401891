package version

import (
	"runtime"
	"time"
)

// Set at build time with -ldflags "-X github.com/MrSnakeDoc/concierge/internal/version.Version=..."
var (
	Version   = "dev"                           // ex: v0.3.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-10-19T09:12:00Z
	GoVersion = runtime.Version()               // go version
)

// UserAgent is sent on every downstream request.
func UserAgent() string {
	return "concierge/" + Version
}
