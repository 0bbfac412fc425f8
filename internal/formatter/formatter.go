// package formatter renders playlist exports as CSV, Markdown, or plain text
// files on disk.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/shared"
)

// ExportToCSV renders the export's tracks as CSV with a fixed header row of
// ID, Title, Artist, Album, Duration, ISRC. Durations stay in milliseconds.
func ExportToCSV(export *models.PlaylistExport) ([]byte, error) {
	rows := [][]string{{"ID", "Title", "Artist", "Album", "Duration", "ISRC"}}
	for _, track := range export.Tracks {
		rows = append(rows, []string{
			track.ProviderTrackID(),
			track.Title(),
			track.Artist(),
			track.Album(),
			strconv.Itoa(track.DurationMS()),
			track.ISRC(),
		})
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown renders the export as a Markdown document with a metadata
// block followed by a numbered track listing.
func ExportToMarkdown(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Playlist.Name())
	if desc := export.Playlist.Description(); desc != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", desc)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(export.Tracks))
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", shared.VisibilityString(export.Playlist.Public()))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s", i+1, track.Artist(), track.Title())
		if album := track.Album(); album != "" {
			fmt.Fprintf(&buf, " (%s)", album)
		}
		fmt.Fprintf(&buf, " [%s]\n", shared.FormatDuration(track.DurationMS()))
	}

	return buf.Bytes(), nil
}

// ExportToText renders the export as a minimal plain text listing.
func ExportToText(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.Playlist.Name())
	if desc := export.Playlist.Description(); desc != "" {
		fmt.Fprintf(&buf, "Description: %s\n", desc)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist(), track.Title())
	}

	return buf.Bytes(), nil
}

// ToMetadataJSON renders the playlist metadata, without tracks, as indented JSON.
func ToMetadataJSON(playlist *models.Playlist) ([]byte, error) {
	return shared.MarshalJSON(playlist, true)
}

// CSVExportResult names the files WriteCSVExport produced.
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport writes {base}_tracks.csv and {base}_metadata.json next to
// each other. An empty base falls back to the provider playlist ID.
func WriteCSVExport(export *models.PlaylistExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Playlist.ProviderPlaylistID()
	}

	result := &CSVExportResult{
		TracksFile:   baseFilepath + "_tracks.csv",
		MetadataFile: baseFilepath + "_metadata.json",
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(result.TracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", result.TracksFile, err)
	}

	metadataJSON, err := ToMetadataJSON(export.Playlist)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(result.MetadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", result.MetadataFile, err)
	}

	return result, nil
}

// MarkdownExportResult names the directory and files WriteMarkdownExport produced.
type MarkdownExportResult struct {
	Directory string
	Files     []string
}

// WriteMarkdownExport writes the playlist as {dir}/README.md, creating the
// directory if needed. An empty dir falls back to the provider playlist ID.
func WriteMarkdownExport(export *models.PlaylistExport, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = export.Playlist.ProviderPlaylistID()
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outputDir, err)
	}

	mdData, err := ExportToMarkdown(export)
	if err != nil {
		return nil, err
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", mdFile, err)
	}

	return &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{mdFile},
	}, nil
}

// WriteTextExport writes the playlist as a plain text file, defaulting to
// {providerPlaylistID}_tracks.txt, and returns the path written.
func WriteTextExport(export *models.PlaylistExport, path string) (string, error) {
	if path == "" {
		path = export.Playlist.ProviderPlaylistID() + "_tracks.txt"
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

// BulkExportManifest is the document written alongside a bulk export
// summarizing what was produced.
type BulkExportManifest struct {
	ExportedAt string `json:"exported_at"`
	Format     string `json:"format"`
	Summary    any    `json:"summary"`
}

// WriteBulkExportManifest writes a JSON manifest describing a bulk export run.
func WriteBulkExportManifest(summary any, format, path string) error {
	if format == "" {
		format = "json"
	}

	manifest := BulkExportManifest{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Format:     format,
		Summary:    summary,
	}

	data, err := shared.MarshalJSON(manifest, true)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}
