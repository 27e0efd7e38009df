// Package service defines Definition, the declarative description of how to
// run zero or more identical container replicas.
//
// A Definition is a pure value object: its fluent setters mutate the
// receiver and return it for chaining, and nothing in this package talks to
// the Docker daemon. Range checks that only the daemon can make (port
// availability, image existence) are deferred to deploy time.
//
// Loosely typed settings are modeled as closed sets: RestartPolicy is one of
// four named policies, VolumeKind is bind or volume, and an image source is
// either an image reference or a BuildSpec, never both.
package service
