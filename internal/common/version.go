package common

// Build metadata injected via -ldflags at release time
var (
	Version = "0.1.0-dev"
	Commit  = "unknown"
)

// GetVersion returns the application version string
func GetVersion() string {
	return Version
}
