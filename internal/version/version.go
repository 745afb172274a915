// Package version holds the build version of the service.
package version

// Version is the current release version. Overridden at build time via
// -ldflags "-X gymgate/internal/version.Version=...".
var Version = "1.0.0"
