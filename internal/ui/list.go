package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/snx/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.PlaylistExport] to implement [list.Item].
type playlistItem struct {
	export *models.PlaylistExport
}

func (i playlistItem) FilterValue() string { return i.export.Playlist.Name() }
func (i playlistItem) Title() string       { return i.export.Playlist.Name() }
func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%d tracks", len(i.export.Tracks))
	if d := i.export.Playlist.Description(); d != "" {
		desc = fmt.Sprintf("%s • %s", desc, d)
	}
	return desc
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track *models.Track
}

func (i trackItem) FilterValue() string { return i.track.Title() }
func (i trackItem) Title() string       { return i.track.Title() }
func (i trackItem) Description() string {
	desc := i.track.Artist()
	if album := i.track.Album(); album != "" {
		desc = fmt.Sprintf("%s • %s", desc, album)
	}
	return desc
}
