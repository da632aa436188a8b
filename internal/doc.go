// Package internal documents the gatherings server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses and routing
// - domain: events, RSVPs, reviews and the access rules between them
// - storage: the repository contract with PostgreSQL and SQLite backends
// - auth, audit, config, metrics, sanitize, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
