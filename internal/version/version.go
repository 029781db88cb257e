// Package version provides build and version information for the ORLE worker.
package version

// Version is the current release version of the ORLE worker.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/orle/internal/version.Version=x.y.z"
var Version = "0.3.0"
