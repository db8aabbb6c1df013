// Package server implements the core HTTP and websocket functionality for
// the Parlor chat service.
//
// The implementation is organized into specialized files for configuration,
// the connection registry, the room broadcaster, client pumps, routing, and
// HTTP handlers to keep the codebase maintainable and testable as the
// project grows.
package server
