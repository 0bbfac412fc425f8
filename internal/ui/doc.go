// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow over the synced library:
//  1. [LibraryView] : Browse playlists stored by earlier sync passes
//  2. [TrackListView] : Inspect a stored playlist's tracks
//  3. [ConfirmView] : Confirm a sync (or forced sync) pass
//  4. [SyncView] : Monitor real-time progress updates
//  5. [ResultView] : Display the pass counters
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the LibraryEngine, providing non-blocking status reporting during syncs.
// Browsing reads only the store; the provider is contacted when a sync pass runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, s/f, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
