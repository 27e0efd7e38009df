// Package port checks host port availability before a stack is deployed.
//
// The daemon is the authority on port bindings; a preflight only warns
// about published host ports that are already bound on this machine, or
// that two replicas of the same stack would both try to bind.
package port
