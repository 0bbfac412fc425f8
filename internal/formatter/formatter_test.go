package formatter

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/snx/internal/models"
	th "github.com/desertthunder/snx/internal/testing"
)

func testExport() *models.PlaylistExport {
	playlist := models.NewPlaylist(0, "spotify", "pl_742", "user_42", models.PlaylistAttrs{
		Name:        "Night Shift",
		Description: "synthwave for late hours",
		TrackCount:  2,
		Public:      false,
	})
	playlist.SetTracks([]models.TrackRef{
		{ProviderTrackID: "trk_01", Position: 0},
		{ProviderTrackID: "trk_02", Position: 1},
	})

	return &models.PlaylistExport{
		Playlist: playlist,
		Tracks: []*models.Track{
			models.NewTrack(0, "spotify", "trk_01", models.TrackAttrs{
				Title:      "Neon Rain",
				Artist:     "Night Runner",
				Album:      "Analog Dreams",
				ISRC:       "USNR12400017",
				DurationMS: 180000,
			}),
			models.NewTrack(0, "spotify", "trk_02", models.TrackAttrs{
				Title:      "Afterglow",
				Artist:     "Violet Waves",
				ISRC:       "USVW32400090",
				DurationMS: 240000,
			}),
		},
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testExport())
		if err != nil {
			t.Fatalf("ExportToCSV: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "ID,Title,Artist,Album,Duration,ISRC") {
			t.Errorf("csv header row missing, got: %s", output)
		}
		if !strings.Contains(output, "trk_01") {
			t.Errorf("csv missing the track id")
		}
		if !strings.Contains(output, "Neon Rain") {
			t.Errorf("csv missing the title")
		}
		if !strings.Contains(output, "Night Runner") {
			t.Errorf("csv missing the artist")
		}
		if !strings.Contains(output, "180000") {
			t.Errorf("csv missing the duration")
		}
		if !strings.Contains(output, "USNR12400017") {
			t.Errorf("csv missing the isrc")
		}
	})

	t.Run("ExportToCSV Quotes Commas", func(t *testing.T) {
		export := testExport()
		export.Tracks = []*models.Track{
			models.NewTrack(0, "spotify", "trk_03", models.TrackAttrs{
				Title:  "Hello, World",
				Artist: "Artist Three",
			}),
		}

		data, err := ExportToCSV(export)
		if err != nil {
			t.Fatalf("ExportToCSV: %v", err)
		}

		if !strings.Contains(string(data), `"Hello, World"`) {
			t.Errorf("expected quoted title, got: %s", string(data))
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testExport())
		if err != nil {
			t.Fatalf("ExportToMarkdown: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "# Night Shift") {
			t.Errorf("markdown missing the heading")
		}
		if !strings.Contains(output, "**Description**: synthwave for late hours") {
			t.Errorf("markdown missing the description line")
		}
		if !strings.Contains(output, "**Tracks**: 2") {
			t.Errorf("markdown missing the track count")
		}
		if !strings.Contains(output, "**Visibility**: Private") {
			t.Errorf("markdown missing the visibility line")
		}
		if !strings.Contains(output, "1. Night Runner - Neon Rain (Analog Dreams) [3:00]") {
			t.Errorf("markdown missing the first track, got: %s", output)
		}
		if !strings.Contains(output, "2. Violet Waves - Afterglow [4:00]") {
			t.Errorf("album should be omitted when empty, got: %s", output)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(testExport())
		if err != nil {
			t.Fatalf("ExportToText: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "Playlist: Night Shift") {
			t.Errorf("text missing the playlist line")
		}
		if !strings.Contains(output, "Description: synthwave for late hours") {
			t.Errorf("text missing the description line")
		}
		if !strings.Contains(output, "1. Night Runner - Neon Rain") {
			t.Errorf("text missing first track")
		}
		if !strings.Contains(output, "2. Violet Waves - Afterglow") {
			t.Errorf("text missing second track")
		}
	})

	t.Run("ToMetadataJSON", func(t *testing.T) {
		data, err := ToMetadataJSON(testExport().Playlist)
		if err != nil {
			t.Fatalf("ToMetadataJSON: %v", err)
		}

		if !json.Valid(data) {
			t.Fatalf("metadata is not valid JSON: %s", string(data))
		}
		if !strings.Contains(string(data), "Night Shift") {
			t.Errorf("metadata missing playlist name")
		}
		if !strings.Contains(string(data), "pl_742") {
			t.Errorf("metadata missing provider playlist id")
		}
	})
}

func TestWriters(t *testing.T) {
	t.Run("WriteCSVExport", func(t *testing.T) {
		t.Run("WithDefaultPath", func(t *testing.T) {
			tempDir := t.TempDir()
			prevDir := th.MustGetwd(t)
			th.MustChdir(t, tempDir)
			defer th.MustChdir(t, prevDir)

			result, err := WriteCSVExport(testExport(), "")
			if err != nil {
				t.Fatalf("WriteCSVExport: %v", err)
			}

			if result.TracksFile != "pl_742_tracks.csv" {
				t.Errorf("tracks file = %s, want pl_742_tracks.csv", result.TracksFile)
			}
			if result.MetadataFile != "pl_742_metadata.json" {
				t.Errorf("metadata file = %s, want pl_742_metadata.json", result.MetadataFile)
			}

			th.AssertFileExists(t, result.TracksFile)
			th.AssertFileExists(t, result.MetadataFile)

			gotCSV := th.MustReadFile(t, result.TracksFile)
			if !strings.Contains(gotCSV, "Neon Rain") {
				t.Errorf("csv file missing the track rows")
			}

			gotMeta := th.MustReadFile(t, result.MetadataFile)
			if !strings.Contains(gotMeta, "Night Shift") {
				t.Errorf("metadata json missing the playlist name")
			}
		})

		t.Run("WithCustomPath", func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "my_export")

			result, err := WriteCSVExport(testExport(), base)
			if err != nil {
				t.Fatalf("WriteCSVExport: %v", err)
			}

			if result.TracksFile != base+"_tracks.csv" {
				t.Errorf("unexpected tracks file %s", result.TracksFile)
			}
			th.AssertFileExists(t, result.TracksFile)
			th.AssertFileExists(t, result.MetadataFile)
		})
	})

	t.Run("WriteMarkdownExport", func(t *testing.T) {
		t.Run("WithDefaultDirectory", func(t *testing.T) {
			tempDir := t.TempDir()
			prevDir := th.MustGetwd(t)
			th.MustChdir(t, tempDir)
			defer th.MustChdir(t, prevDir)

			result, err := WriteMarkdownExport(testExport(), "")
			if err != nil {
				t.Fatalf("WriteMarkdownExport: %v", err)
			}

			if result.Directory != "pl_742" {
				t.Errorf("directory = %s, want pl_742", result.Directory)
			}
			if len(result.Files) != 1 {
				t.Fatalf("wrote %d files, want 1", len(result.Files))
			}

			th.AssertDirExists(t, result.Directory)
			th.AssertFileExists(t, result.Files[0])

			content := th.MustReadFile(t, result.Files[0])
			if !strings.Contains(content, "# Night Shift") {
				t.Errorf("README.md missing the heading")
			}
		})

		t.Run("WithCustomDirectory", func(t *testing.T) {
			outputDir := filepath.Join(t.TempDir(), "markdown_out")

			result, err := WriteMarkdownExport(testExport(), outputDir)
			if err != nil {
				t.Fatalf("WriteMarkdownExport: %v", err)
			}

			if result.Directory != outputDir {
				t.Errorf("unexpected directory %s", result.Directory)
			}
			th.AssertFileExists(t, filepath.Join(outputDir, "README.md"))
		})
	})

	t.Run("WriteTextExport", func(t *testing.T) {
		t.Run("WithDefaultPath", func(t *testing.T) {
			tempDir := t.TempDir()
			prevDir := th.MustGetwd(t)
			th.MustChdir(t, tempDir)
			defer th.MustChdir(t, prevDir)

			path, err := WriteTextExport(testExport(), "")
			if err != nil {
				t.Fatalf("WriteTextExport: %v", err)
			}

			if path != "pl_742_tracks.txt" {
				t.Errorf("path = %s, want pl_742_tracks.txt", path)
			}
			th.AssertFileExists(t, path)
		})

		t.Run("WithCustomPath", func(t *testing.T) {
			target := filepath.Join(t.TempDir(), "tracks.txt")

			path, err := WriteTextExport(testExport(), target)
			if err != nil {
				t.Fatalf("WriteTextExport: %v", err)
			}

			if path != target {
				t.Errorf("unexpected path %s", path)
			}

			content := th.MustReadFile(t, path)
			if !strings.Contains(content, "Playlist: Night Shift") {
				t.Errorf("text export missing the playlist line")
			}
		})
	})

	t.Run("WriteBulkExportManifest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "export_manifest.json")

		summary := map[string]any{
			"total_playlists":    2,
			"successful_exports": 1,
			"failed_exports":     1,
		}

		if err := WriteBulkExportManifest(summary, "csv", path); err != nil {
			t.Fatalf("WriteBulkExportManifest: %v", err)
		}

		content := th.MustReadFile(t, path)

		var manifest BulkExportManifest
		if err := json.Unmarshal([]byte(content), &manifest); err != nil {
			t.Fatalf("manifest is not valid JSON: %v", err)
		}

		if manifest.Format != "csv" {
			t.Errorf("format = %s, want csv", manifest.Format)
		}
		if manifest.ExportedAt == "" {
			t.Error("expected a populated exported_at")
		}
		if !strings.Contains(content, "total_playlists") {
			t.Errorf("manifest missing summary fields")
		}

		t.Run("DefaultsFormat", func(t *testing.T) {
			defaultPath := filepath.Join(t.TempDir(), "manifest.json")
			if err := WriteBulkExportManifest(summary, "", defaultPath); err != nil {
				t.Fatalf("WriteBulkExportManifest: %v", err)
			}
			if !strings.Contains(th.MustReadFile(t, defaultPath), `"format": "json"`) {
				t.Errorf("expected default json format in manifest")
			}
		})
	})
}
