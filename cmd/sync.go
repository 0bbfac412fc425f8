package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/snx/internal/formatter"
	"github.com/desertthunder/snx/internal/session"
	"github.com/desertthunder/snx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun pulls the source library into the local store. Playlists whose
// snapshot is already fresh are skipped unless --force is set.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
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

	opts := tasks.SyncOptions{
		Force:        cmd.Bool("force"),
		IncludeSaved: cmd.Bool("saved") || config.Sync.IncludeSaved,
	}

	r.writePlain("Syncing %s library into %s...\n\n", source.Name(), config.Database.Path)

	engine := tasks.NewLibraryEngine(source, store, r.engineOpts(config))
	result, err := r.runSyncPass(ctx, engine, sess, opts)
	if err != nil {
		retry, handleErr := r.handleAuthError(ctx, err)
		if handleErr != nil {
			return handleErr
		}
		if retry {
			sess, err = r.sessionFromConfig(r.config)
			if err != nil {
				return err
			}
			result, err = r.runSyncPass(ctx, engine, sess, opts)
		}
		if err != nil {
			return err
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Sync Complete!")
	r.writePlain("User: %s (%s)\n", result.User.DisplayName(), result.User.ProviderUserID())
	r.writePlain("Playlists: %d total, %d synced, %d skipped, %d filtered\n",
		result.PlaylistsTotal, result.PlaylistsSynced, result.PlaylistsSkipped, result.PlaylistsFiltered)
	r.writePlain("Tracks upserted: %d\n", result.TracksUpserted)
	if opts.IncludeSaved {
		r.writePlain("Saved tracks: %d\n", result.SavedTracks)
	}
	return nil
}

// runSyncPass drives engine.Sync while echoing its progress updates.
func (r *Runner) runSyncPass(ctx context.Context, engine *tasks.LibraryEngine, sess *session.Session, opts tasks.SyncOptions) (*tasks.SyncResult, error) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchProfile:
				r.writePlain("👤 %s\n", update.Message)
			case tasks.FetchPlaylists:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.SyncPlaylists:
				if update.Total > 0 {
					r.writePlain("   (%d/%d) %s\n", update.Step, update.Total, update.Message)
				} else {
					r.writePlain("🔄 %s\n", update.Message)
				}
			case tasks.SyncSaved:
				r.writePlain("❤️  %s\n", update.Message)
			case tasks.Assemble:
				r.writePlain("📦 %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Sync(ctx, sess, opts, progressCh)
	close(progressCh)
	return result, err
}

// SyncHistory lists recorded sync passes, newest first.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	store, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer r.closeStore()

	criteria := map[string]any{}
	if provider := cmd.String("provider"); provider != "" {
		criteria["provider"] = provider
	}
	if status := cmd.String("status"); status != "" {
		criteria["status"] = status
	}

	jobs, err := store.Jobs.List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list sync passes: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(jobs, cmd.Bool("pretty"))
	}

	if len(jobs) == 0 {
		r.writePlain("No sync passes recorded yet.\n")
		return nil
	}

	r.writePlainln(formatter.JobTable(jobs))
	return nil
}
