package ui

import (
	"github.com/desertthunder/snx/internal/tasks"
)

// snapshotMsg delivers the stored library snapshot, or the failure to load it.
type snapshotMsg struct {
	snapshot *tasks.LibrarySnapshot
	err      error
}

// progressUpdateMsg carries one engine progress update into the Elm loop.
type progressUpdateMsg tasks.ProgressUpdate

// syncCompleteMsg delivers the finished sync pass.
type syncCompleteMsg struct {
	result *tasks.SyncResult
	err    error
}
