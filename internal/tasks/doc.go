// Package tasks orchestrates provider library synchronization with real-time progress reporting.
//
// # Core Operations
//
// The [SyncEngine] interface defines three operations:
//
//  1. [SyncEngine.Sync] : Full provider → store library sync
//     - Upserts the authenticated user from their provider profile
//     - Fetches playlists, dropping provider-curated ones and skipping
//       playlists already synced (unless forced)
//     - Fans playlist track fetches out across a bounded worker pool
//     - Returns the full library copy re-read from the store
//
//  2. [SyncEngine.Diff] : Compare playlists across providers
//     - Fetches both source and destination playlist tracks
//     - Matches tracks via ISRC (preferred) or normalized title/artist
//     - Reports matched count, missing tracks, and extra tracks
//
//  3. [SyncEngine.Snapshot] : Assemble a synced library from the store
//     - Resolves every playlist's track references into full track rows
//     - Includes sync history when a job store is configured
//
// [LibraryEngine.BulkExport] additionally writes playlists to disk in
// JSON, CSV, markdown, or plain text form with a manifest summarizing
// the run.
//
// # Progress Reporting
//
// # All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Sync History
//
// When [Store].Jobs is set, each sync pass records a [models.SyncJob] row.
// History is best effort: job store failures never abort a pass.
//
// # Implementation
//
// [LibraryEngine] implements [SyncEngine] with dependencies on:
//   - [services.Service] : Spotify and Napster API clients
//   - [Store] : repository-backed persistence for users, tracks, playlists, and jobs
package tasks
