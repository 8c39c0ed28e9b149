// Package version exposes build-time version metadata.
package version

// Version is the semantic version string embedded at build time.
var Version = "0.0.0-src"

// UserAgent is sent with every blocklist request unless overridden in config.
func UserAgent() string {
	return "adghruletool/" + Version
}

// Set version at compile time with
// go build -ldflags "-X github.com/kelomina/ADGHRuleTool/pkg/version.Version=1.0.0" -o adghruletool

// For a release build with version and optimization flags:
// go build -ldflags "-s -w -X github.com/kelomina/ADGHRuleTool/pkg/version.Version=1.0.0" -o adghruletool
