// Package version reports the build of the dataflow binary.
//
// Release builds set the variables with -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/dataflow/version.Version=1.2.0"
//
// Development builds fall back to the VCS stamp the Go toolchain embeds.
package version
