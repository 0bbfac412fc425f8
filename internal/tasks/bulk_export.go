package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/snx/internal/formatter"
	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/services"
	"github.com/desertthunder/snx/internal/shared"
	"golang.org/x/time/rate"
)

// BulkExportOpts tunes a bulk playlist export.
type BulkExportOpts struct {
	Format     string  // json, csv, markdown, or txt
	OutputDir  string  // defaults to {provider}_export_{epoch}
	NumWorkers int     // export workers, defaults to 5, capped at 10
	RateLimit  float64 // upstream requests per second, defaults to 5
}

// withDefaults normalizes zero or out-of-range options.
func (o BulkExportOpts) withDefaults(provider string) BulkExportOpts {
	if o.OutputDir == "" {
		o.OutputDir = fmt.Sprintf("%s_export_%d", provider, time.Now().Unix())
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = 5
	}
	if o.NumWorkers > 10 {
		o.NumWorkers = 10
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5.0
	}
	return o
}

// PlaylistExportJob carries one fetched playlist to the export workers.
type PlaylistExportJob struct {
	PlaylistID string
	Export     *models.PlaylistExport
}

// PlaylistExportResult records the outcome of exporting a single playlist.
type PlaylistExportResult struct {
	PlaylistID   string   `json:"playlist_id"`
	PlaylistName string   `json:"playlist_name"`
	Success      bool     `json:"success"`
	Files        []string `json:"files,omitempty"`
	Error        error    `json:"-"`
	ErrorMessage string   `json:"error,omitempty"`
}

func (r PlaylistExportResult) failed(err error) PlaylistExportResult {
	r.Success = false
	r.Error = err
	r.ErrorMessage = err.Error()
	return r
}

// BulkExportResult summarizes a bulk export run. It doubles as the manifest
// payload written next to the exported files.
type BulkExportResult struct {
	TotalPlaylists    int                    `json:"total_playlists"`
	SuccessfulExports int                    `json:"successful_exports"`
	FailedExports     int                    `json:"failed_exports"`
	OutputDirectory   string                 `json:"output_directory"`
	ManifestPath      string                 `json:"manifest_path,omitempty"`
	Results           []PlaylistExportResult `json:"results"`
}

// BulkExport writes each requested playlist to disk in the chosen format,
// fan-out across a worker pool with the fetch side rate limited. A failed
// playlist is recorded in the result rather than aborting the run, and a
// manifest summarizing the outcome lands next to the files. An empty ids
// slice exports the whole library.
func (e *LibraryEngine) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	srv services.Service,
	ids []string,
	opts BulkExportOpts,
) (*BulkExportResult, error) {
	if srv == nil {
		return nil, fmt.Errorf("%w: no spotify service configured", shared.ErrServiceUnavailable)
	}

	provider := srv.Name()
	opts = opts.withDefaults(provider)

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	e.sendProgress(prog, fetchPlaylistsUpdate(provider))

	available, err := srv.GetPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list playlists: %v", shared.ErrAPIRequest, err)
	}

	byID := make(map[string]services.Playlist, len(available))
	for _, pl := range available {
		byID[pl.ID] = pl
	}

	if len(ids) == 0 {
		ids = make([]string, 0, len(available))
		for _, pl := range available {
			ids = append(ids, pl.ID)
		}
	}

	result := &BulkExportResult{
		TotalPlaylists:  len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistExportResult, 0, len(ids)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	queue := make(chan PlaylistExportJob, len(ids))
	outcomes := make(chan PlaylistExportResult, len(ids))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, queue, outcomes, opts)
	}

	go func() {
		defer close(queue)
		for i, playlistID := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			meta, ok := byID[playlistID]
			if !ok {
				meta = services.Playlist{ID: playlistID, Name: fmt.Sprintf("Unknown (%s)", playlistID)}
			}

			dtos, err := srv.GetPlaylistTracks(ctx, playlistID)
			if err != nil {
				outcomes <- PlaylistExportResult{
					PlaylistID:   playlistID,
					PlaylistName: meta.Name,
					Error:        fmt.Errorf("fetch playlist: %w", err),
					ErrorMessage: err.Error(),
				}
				continue
			}

			export := exportFromDTOs(provider, meta, dtos)
			e.sendProgress(prog, foundPlaylistUpdate(i+1, len(ids), export))

			queue <- PlaylistExportJob{
				PlaylistID: playlistID,
				Export:     export,
			}

			e.sendProgress(prog, exportingPlaylistUpdate(i+1, len(ids), meta.Name))
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	completed := 0
	for res := range outcomes {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(
				completed,
				len(ids),
				res.PlaylistName,
				len(res.Files),
			))
		} else {
			result.FailedExports++
			e.sendProgress(prog, exportFailedUpdate(
				completed,
				len(ids),
				res.PlaylistName,
				res.Error,
			))
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteBulkExportManifest(result, opts.Format, manifestPath); err != nil {
		return result, fmt.Errorf("exports finished but the manifest write failed: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// exportWorker drains the queue, writing one playlist per job. Stops early
// when the context is canceled, leaving queued jobs unreported.
func (e *LibraryEngine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	queue <-chan PlaylistExportJob,
	outcomes chan<- PlaylistExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for job := range queue {
		select {
		case <-ctx.Done():
			return
		default:
		}

		outcomes <- exportSinglePlaylist(job, opts)
	}
}

// exportSinglePlaylist writes one playlist in the format opts selects,
// defaulting to JSON for unknown formats.
func exportSinglePlaylist(j PlaylistExportJob, opts BulkExportOpts) PlaylistExportResult {
	result := PlaylistExportResult{
		PlaylistID:   j.PlaylistID,
		PlaylistName: j.Export.Playlist.Name(),
		Success:      false,
		Files:        []string{},
	}

	switch opts.Format {
	case "csv":
		baseFilepath := filepath.Join(opts.OutputDir, j.Export.Playlist.ProviderPlaylistID())
		csvRes, err := formatter.WriteCSVExport(j.Export, baseFilepath)
		if err != nil {
			return result.failed(fmt.Errorf("CSV export failed: %w", err))
		}
		result.Files = []string{csvRes.TracksFile, csvRes.MetadataFile}
		result.Success = true

	case "markdown":
		outputDir := filepath.Join(opts.OutputDir, j.Export.Playlist.ProviderPlaylistID())
		mdRes, err := formatter.WriteMarkdownExport(j.Export, outputDir)
		if err != nil {
			return result.failed(fmt.Errorf("markdown export failed: %w", err))
		}
		result.Files = mdRes.Files
		result.Success = true

	case "txt":
		txtPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_tracks.txt", j.Export.Playlist.ProviderPlaylistID()))
		written, err := formatter.WriteTextExport(j.Export, txtPath)
		if err != nil {
			return result.failed(fmt.Errorf("text export failed: %w", err))
		}
		result.Files = []string{written}
		result.Success = true

	case "json":
		fallthrough
	default:
		jsonPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s.json", j.Export.Playlist.ProviderPlaylistID()))
		data, err := shared.MarshalJSON(j.Export, true)
		if err != nil {
			return result.failed(fmt.Errorf("JSON marshal failed: %w", err))
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return result.failed(fmt.Errorf("JSON write failed: %w", err))
		}
		result.Files = []string{jsonPath}
		result.Success = true
	}
	return result
}

// exportFromDTOs assembles a detached playlist export from provider data
// without touching the store.
func exportFromDTOs(provider string, meta services.Playlist, dtos []services.Track) *models.PlaylistExport {
	playlist := models.NewPlaylist(0, provider, meta.ID, meta.OwnerID, models.PlaylistAttrs{
		Name:        meta.Name,
		Description: meta.Description,
		TrackCount:  len(dtos),
		Public:      meta.Public,
		Raw:         meta.Raw,
	})

	refs := make([]models.TrackRef, 0, len(dtos))
	tracks := make([]*models.Track, 0, len(dtos))
	for i, dto := range dtos {
		tracks = append(tracks, trackFromDTO(provider, dto))
		refs = append(refs, models.TrackRef{ProviderTrackID: dto.ID, Position: i})
	}
	playlist.SetTracks(refs)

	return &models.PlaylistExport{Playlist: playlist, Tracks: tracks}
}
