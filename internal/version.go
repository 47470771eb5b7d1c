// Package internal provides build-time metadata for the sswap-node binary.
package internal

// Version is the current semantic version of sswap-node. Overridden at build
// time with -ldflags "-X github.com/sswap/sswap-node/internal.Version=...".
var Version = "dev"
