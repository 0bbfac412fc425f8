package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/snx/internal/services"
	"github.com/desertthunder/snx/internal/shared"
)

// DiffResult contains the results of comparing two playlists across providers.
type DiffResult struct {
	SourceID      string           `json:"source_id"`
	DestID        string           `json:"dest_id"`
	SourceTracks  int              `json:"source_tracks"`
	DestTracks    int              `json:"dest_tracks"`
	MatchedCount  int              `json:"matched_count"`
	MissingInDest []services.Track `json:"missing_in_dest"`
	ExtraInDest   []services.Track `json:"extra_in_dest"`
}

// Diff compares the tracks of two playlists, matching by ISRC first and
// falling back to a normalized artist/title key. Both services must already
// be authenticated.
func (e *LibraryEngine) Diff(ctx context.Context, sourceSvc, destSvc services.Service, sourceID, destID string, progress chan<- ProgressUpdate) (*DiffResult, error) {
	if sourceSvc == nil || destSvc == nil {
		return nil, fmt.Errorf("%w: no spotify service configured", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, fetchSourceUpdate(1, 2, sourceID))
	sourceTracks, err := sourceSvc.GetPlaylistTracks(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch source playlist: %v", shared.ErrPlaylistNotFound, err)
	}

	e.sendProgress(progress, fetchDestUpdate(2, 2, destID))
	destTracks, err := destSvc.GetPlaylistTracks(ctx, destID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch destination playlist: %v", shared.ErrPlaylistNotFound, err)
	}

	result := &DiffResult{
		SourceID:     sourceID,
		DestID:       destID,
		SourceTracks: len(sourceTracks),
		DestTracks:   len(destTracks),
	}

	e.sendProgress(progress, buildDestMapUpdate(1, 2))
	destTrackMap := make(map[string]services.Track)
	destISRCMap := make(map[string]services.Track)

	for _, track := range destTracks {
		normalizedKey := shared.NormalizeTrackKey(track.Artist, track.Title)
		destTrackMap[normalizedKey] = track
		if track.ISRC != "" {
			destISRCMap[track.ISRC] = track
		}
	}

	e.sendProgress(progress, missingTrackUpdate(2, 2))
	for _, srcTrack := range sourceTracks {
		matched := false

		if srcTrack.ISRC != "" {
			if _, found := destISRCMap[srcTrack.ISRC]; found {
				matched = true
			}
		}

		if !matched {
			normalizedKey := shared.NormalizeTrackKey(srcTrack.Artist, srcTrack.Title)
			if _, found := destTrackMap[normalizedKey]; found {
				matched = true
			}
		}

		if matched {
			result.MatchedCount++
		} else {
			result.MissingInDest = append(result.MissingInDest, srcTrack)
		}
	}

	sourceTrackMap := make(map[string]services.Track)
	sourceISRCMap := make(map[string]services.Track)

	for _, track := range sourceTracks {
		normalizedKey := shared.NormalizeTrackKey(track.Artist, track.Title)
		sourceTrackMap[normalizedKey] = track
		if track.ISRC != "" {
			sourceISRCMap[track.ISRC] = track
		}
	}

	for _, destTrack := range destTracks {
		matched := false

		if destTrack.ISRC != "" {
			if _, found := sourceISRCMap[destTrack.ISRC]; found {
				matched = true
			}
		}

		if !matched {
			normalizedKey := shared.NormalizeTrackKey(destTrack.Artist, destTrack.Title)
			if _, found := sourceTrackMap[normalizedKey]; found {
				matched = true
			}
		}

		if !matched {
			result.ExtraInDest = append(result.ExtraInDest, destTrack)
		}
	}

	return result, nil
}
