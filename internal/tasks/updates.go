package tasks

import (
	"fmt"

	"github.com/desertthunder/snx/internal/models"
)

// ProgressUpdate is one progress event from a long-running engine operation,
// streamed to the CLI or TUI for display.
type ProgressUpdate struct {
	Phase   Phase  // which stage of the operation this reports
	Step    int    // current step within the phase
	Total   int    // steps the phase expects, 0 when unknown
	Message string // display text
	Data    any    // phase-specific payload, such as a fetched export
}

// Phase identifies a stage of a sync, diff, or export run.
type Phase int

const (
	FetchProfile Phase = iota
	FetchPlaylists
	SyncPlaylists
	SyncSaved
	Assemble
	FetchSource
	FetchDest
	Compare
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchProfile:
		return "fetch_profile"
	case FetchPlaylists:
		return "fetch_playlists"
	case SyncPlaylists:
		return "sync_playlists"
	case SyncSaved:
		return "sync_saved"
	case Assemble:
		return "assemble"
	case FetchSource:
		return "fetch_source"
	case FetchDest:
		return "fetch_dest"
	case Compare:
		return "compare"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func fetchProfileUpdate(provider string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchProfile,
		Message: fmt.Sprintf("Fetching %s profile...", provider),
	}
}

func fetchPlaylistsUpdate(provider string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Message: fmt.Sprintf("Fetching %s playlists...", provider),
	}
}

func playlistsFilteredUpdate(pending, filtered, skipped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Total:   pending,
		Message: fmt.Sprintf("Syncing %d playlists (%d filtered, %d already synced)", pending, filtered, skipped),
	}
}

func syncPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Syncing: %s...", step, total, name),
	}
}

func playlistSyncedUpdate(step, total int, name string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, name, tracks),
	}
}

func syncSavedUpdate(provider string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncSaved,
		Message: fmt.Sprintf("Fetching %s saved tracks...", provider),
	}
}

func assembleResultUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Assemble,
		Message: "Assembling library from store...",
	}
}

func fetchSourceUpdate(step, total int, id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching source playlist (%s)...", id),
	}
}

func fetchDestUpdate(step, total int, id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchDest,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching destination playlist (%s)...", id),
	}
}

func buildDestMapUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compare,
		Step:    step,
		Total:   total,
		Message: "Indexing destination tracks...",
	}
}

func missingTrackUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compare,
		Step:    step,
		Total:   total,
		Message: "Comparing against source...",
	}
}

func foundPlaylistUpdate(step, total int, export *models.PlaylistExport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Found playlist: %s (%d tracks)", export.Playlist.Name(), len(export.Tracks)),
		Data:    export,
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
