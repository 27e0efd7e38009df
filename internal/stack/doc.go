// Package stack is the orchestration layer of dockstack. A Stack holds a
// named, ordered registry of service definitions and deploys them as
// labeled containers through a Runtime (the docker package's Client in
// production, an in-memory fake in tests).
//
// This package handles:
//   - Registration of uniquely named services, in insertion order
//   - Compose export and import through the compose package
//   - Dependency-ordered deployment with parallel creation of replicas of
//     the same service
//   - Best-effort teardown that reports every individual failure
//   - Scaling (highest replica index removed first) and restarts
//   - Status snapshots and service-tagged log aggregation
//   - Re-attachment to a stack deployed by another process, using labels
//
// Deployment state lives in the daemon. The tracked-container map of a
// Stack is an in-memory view that a new process rebuilds with Attach.
//
// Every exported method of Stack takes the stack's mutex, so mutating
// operations on one Stack never interleave.
package stack
