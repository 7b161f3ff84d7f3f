// Package buildinfo carries ldflags-injected build metadata, resolving
// the teacher's dangling import of a nonexistent "env" package in
// cmd/feed/main.go with the minimal version surface that package
// actually needed.
package buildinfo

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)
