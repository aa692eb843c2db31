// Package repositories implements data access over SQLite for the mixtape agent.
//
// It covers four concerns:
//
//   - [UserRepository] : local account CRUD with soft deletes and sequences
//   - [CredentialRepository] : token-pair upsert plus compare-and-swap rotation,
//     safe for concurrent use from the CLI and the callback listener
//   - [AuthRequestRepository] : pending-authorization rows with single-shot
//     pending→terminal transitions
//   - [MusicRepository] : canonical artist/track upserts, batched association
//     writes, purge, and the candidate query feeding the recommender
package repositories
