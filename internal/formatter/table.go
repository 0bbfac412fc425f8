package formatter

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/shared"
)

// renderTable builds the bordered table used by the CLI listing commands.
func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...).
		Render()
}

// PlaylistTable renders a stored playlist listing as a terminal table.
func PlaylistTable(exports []*models.PlaylistExport) string {
	rows := make([][]string, 0, len(exports))
	for _, export := range exports {
		playlist := export.Playlist
		rows = append(rows, []string{
			playlist.ProviderPlaylistID(),
			playlist.Name(),
			strconv.Itoa(len(export.Tracks)),
			shared.VisibilityString(playlist.Public()),
		})
	}
	return renderTable([]string{"ID", "Name", "Tracks", "Visibility"}, rows)
}

// TrackTable renders stored tracks as a terminal table.
func TrackTable(tracks []*models.Track) string {
	rows := make([][]string, 0, len(tracks))
	for i, track := range tracks {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			track.Title(),
			track.Artist(),
			track.Album(),
			shared.FormatDuration(track.DurationMS()),
		})
	}
	return renderTable([]string{"#", "Title", "Artist", "Album", "Length"}, rows)
}

// JobTable renders sync history rows as a terminal table, newest first per
// the repository ordering.
func JobTable(jobs []*models.SyncJob) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		id := job.ID()
		if len(id) > 8 {
			id = id[:8]
		}

		started := ""
		if ts := job.StartedAt(); ts != nil {
			started = ts.Format("2006-01-02 15:04:05")
		}

		rows = append(rows, []string{
			id,
			job.Provider(),
			job.Status(),
			fmt.Sprintf("%d/%d", job.PlaylistsSynced(), job.PlaylistsTotal()),
			strconv.Itoa(job.TracksUpserted()),
			started,
		})
	}
	return renderTable([]string{"Job", "Provider", "Status", "Playlists", "Tracks", "Started"}, rows)
}
