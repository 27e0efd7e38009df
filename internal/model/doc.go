// Package model defines the domain types and value objects shared by the
// dockstack packages.
//
// This package contains pure data structures with no Docker SDK dependency.
// Observed container state (ContainerStatus, HealthStatus, ContainerInfo)
// is reconstructed from daemon queries at runtime and never written to disk.
//
// The package also defines the error taxonomy (Error, ErrorKind) surfaced to
// callers and the exit codes (ExitCode) the CLI derives from it.
package model
