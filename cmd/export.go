package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/snx/internal/shared"
	"github.com/desertthunder/snx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// ExportRun writes stored playlists to disk as portable files, fetching each
// listing from the provider through the export worker pool.
func (r *Runner) ExportRun(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	store, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer r.closeStore()

	source, err := r.resolveService(config, cmd.String("source"))
	if err != nil {
		return err
	}

	sess, err := r.sessionFromConfig(config)
	if err != nil {
		return err
	}

	if err := source.Authenticate(ctx, sess.Credentials()); err != nil {
		retry, handleErr := r.handleAuthError(ctx, err)
		if handleErr != nil {
			return handleErr
		}
		if retry {
			sess, err = r.sessionFromConfig(r.config)
			if err != nil {
				return err
			}
			if err := source.Authenticate(ctx, sess.Credentials()); err != nil {
				return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
			}
		}
	}

	opts := tasks.BulkExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  config.Sync.RateLimit,
	}

	ids := cmd.StringSlice("id")
	if len(ids) == 0 {
		r.writePlain("Exporting all %s playlists...\n\n", source.Name())
	} else {
		r.writePlain("Exporting %d %s playlists...\n\n", len(ids), source.Name())
	}

	engine := tasks.NewLibraryEngine(source, store, r.engineOpts(config))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchSource:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.ExportPlaylist:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := engine.BulkExport(ctx, progressCh, source, ids, opts)
	close(progressCh)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Export Complete!")
	r.writePlain("Output: %s\n", result.OutputDirectory)
	r.writePlain("Exported: %d/%d playlists\n", result.SuccessfulExports, result.TotalPlaylists)
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}

	if result.FailedExports > 0 {
		r.writePlain("\nFailed: %d\n", result.FailedExports)
		for _, exportResult := range result.Results {
			if !exportResult.Success {
				r.writePlain("  ✗ %s: %s\n", exportResult.PlaylistName, exportResult.ErrorMessage)
			}
		}
	}

	return nil
}
