// Package web holds the plan for a browser front end over the sync engine,
// rendered server-side with HTMX partial swaps.
//
// # Overview
//
// The web view exposes the same library browser the TUI offers, one template
// and handler per screen:
//
//  1. Library List: server-rendered playlist table, rows load their tracks on demand
//  2. Track Preview: partial swap showing the stored track listing
//  3. Sync Trigger: button posting /sync to start a pass
//  4. Progress Monitor: server-sent events feeding a progress bar
//  5. History View: sync pass records with per-pass counters
//
// Core Components
//
//   - HTTP server: extends the internal/server API with HTML routes
//   - Engine integration: the same services.Service and tasks.LibraryEngine the TUI drives
//   - Session management: signed tokens from internal/session carried in a cookie
//   - SSE handler: streams progress while a pass runs
//
// Routes
//
//	GET  /                      → library list view (requires auth)
//	GET  /auth/spotify          → begin the OAuth dance
//	GET  /auth/callback         → complete the OAuth dance
//	GET  /playlists/{id}/tracks → HTMX partial: stored track list
//	POST /sync                  → open a sync pass, answer with the stream URL
//	GET  /sync/{id}/stream      → SSE progress stream
//	GET  /sync/history          → sync pass listing
//
// Templates
//
//   - base.html: layout, navigation, auth status
//   - library.html: playlist table wired with hx-get per row
//   - tracks.html: track preview partial
//   - progress.html: SSE consumer driving the progress bar
//   - history.html: pass counters and status badges
//
// # State
//
// Where the TUI keeps state in the bubbletea model, the web view leans on:
//   - the session cookie internal/session already issues
//   - SyncJob rows, which carry pass progress across requests
//   - per-pass channels backing open SSE connections
//
// # Progress Streaming
//
// A sync pass streams over server-sent events:
//  1. POST /sync records a SyncJob row and returns its ID
//  2. the client opens /sync/{id}/stream
//  3. the handler runs LibraryEngine.Sync in a goroutine
//  4. progress channel updates become SSE events
//  5. a final "done" event carries the redirect target
//
// Authentication
//
//  1. unauthenticated visits to / redirect to /auth/spotify
//  2. the OAuth callback issues a session token and sets the cookie
//  3. middleware verifies the token on protected routes
//  4. an expired token restarts the dance
//
// Dependencies
//
//   - html/template for rendering
//   - net/http for the server and SSE
//   - internal/session for token issue and verify
//
// Remaining Work
//
//  1. route registration on the shared router
//  2. template skeleton with the HTMX attributes above
//  3. session middleware for the HTML routes
//  4. library handler reading from the store
//  5. track preview partial
//  6. sync endpoint opening the SyncJob row
//  7. SSE handler bridging the progress channel
//  8. history handler over SyncJob listings
//  9. OAuth handlers delegating to the existing Spotify auth
//  10. input validation and error pages
//
// # Testing
//
// httptest end to end:
//   - canned services.Service for playlist and track data
//   - a seeded store for library and history views
//   - assertions on HTMX headers and partial structure
//   - SSE event framing checks
package web
