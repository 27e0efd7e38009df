// Package docker is the daemon collaborator of dockstack: a thin wrapper
// around the Docker Engine SDK client.
//
// This package handles:
//   - Client initialization with explicit host, DOCKER_HOST, or automatic
//     socket detection (Linux, macOS, Windows)
//   - Translation of SDK errors into model.Error kinds (not found, conflict,
//     connection, auth, daemon)
//   - Container, image, network and volume operations, each a 1:1 mapping
//     onto one Engine API call
//   - Stack labels, the only record of which containers belong to which
//     stack and service
//   - Registry authentication as two mutually exclusive variants
//
// All SDK calls go through the API interface so tests can substitute a
// fake without a running daemon. The SDK's *client.Client satisfies it.
package docker
