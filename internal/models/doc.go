// Package models defines domain entities and persistence interfaces for the SNX library sync service.
//
// Every synced record is keyed by a [ProviderRef], the (provider, provider-local id)
// composite identity that makes upserts idempotent across sync passes:
//   - [User] : one per external identity, refreshed on every sync
//   - [Track] : one per provider-local track id, shared by all playlists that reference it
//   - [Playlist] : one per (owner, provider-local playlist id), with ordered [TrackRef] membership
//   - [SyncJob] : audit record for one synchronization pass
//
// Attribute bundles ([UserAttrs], [TrackAttrs], [PlaylistAttrs]) carry the
// normalized provider payload plus the raw JSON document, and implement Equal
// so the store can skip rewrites when a pass observes unchanged data.
//
// All persistent entities implement the Model interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
