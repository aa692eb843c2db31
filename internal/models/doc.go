// Package models defines domain entities and persistence interfaces for the mixtape agent.
//
// The package contains two categories of types:
//
// 1. Canonical entities and value types shared across users:
//   - [Artist] / [Track] : Remote catalog items keyed by the service's immutable id
//   - [Association] : Per-user link between a user and a canonical item, tagged with a [Kind]
//   - [Candidate] : Association joined with its track for recommendation scoring
//
// 2. Persistent entities with full lifecycle management:
//   - [User] : Local accounts with bcrypt password hashing
//   - [Credential] : Access/refresh token pair, one per connected user
//   - [AuthRequest] : Transient record bridging the CLI and the callback listener
//
// Persistent entities implement the [Model] interface providing ID generation,
// timestamps and validation. The [Repository] interface defines standard CRUD
// operations for database access.
package models
