// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [UserRepository] : Account persistence keyed by (provider, provider-local user id)
//   - [PlaylistRepository] : Playlist persistence with ordered track membership and owner-scoped listings
//   - [TrackRepository] : Track persistence with ISRC-based cross-provider matching
//   - [SyncJobRepository] : Sync history with status tracking
//
// The Upsert methods are the write path used during library synchronization:
// each inserts when the composite provider key is absent and otherwise
// replaces the stored contents, relying on UNIQUE constraints to stay correct
// when two syncs race on the same key.
//
// Sequence numbers provide stable, human-readable ordering (e.g., user #42, playlist #15) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
