// Package version reports the version of the capsule binary, from link
// time flags or from the build info embedded by the Go toolchain.
package version
