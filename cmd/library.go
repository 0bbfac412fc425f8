package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/snx/internal/formatter"
	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/shared"
	"github.com/desertthunder/snx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// LibraryPlaylists prints the synced playlist library from the store.
// Reads never touch the provider, so this works offline.
func (r *Runner) LibraryPlaylists(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	store, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer r.closeStore()

	snapshot, err := r.loadSnapshot(ctx, config, store)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(snapshot, cmd.Bool("pretty"))
	}

	if len(snapshot.Playlists) == 0 {
		r.writePlain("No playlists synced yet. Run 'snx sync run' first.\n")
		return nil
	}

	r.writePlain("Library of %s (%d playlists)\n\n", snapshot.User.DisplayName(), len(snapshot.Playlists))
	r.writePlainln(formatter.PlaylistTable(snapshot.Playlists))
	return nil
}

// LibraryTracks prints the stored track listing of one playlist.
func (r *Runner) LibraryTracks(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	store, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer r.closeStore()

	id := cmd.String("id")
	playlist, err := store.Playlists.GetByProviderID("spotify", id)
	if err != nil {
		return fmt.Errorf("failed to read playlist: %w", err)
	}
	if playlist == nil {
		return fmt.Errorf("%w: playlist '%s' is not in the store, run 'snx sync run' first", shared.ErrPlaylistNotFound, id)
	}

	refs := playlist.Tracks()
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.TrackID)
	}
	tracks, err := store.Tracks.ListByIDs(ids)
	if err != nil {
		return fmt.Errorf("failed to read tracks: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(&models.PlaylistExport{Playlist: playlist, Tracks: tracks}, cmd.Bool("pretty"))
	}

	r.writePlain("%s (%d tracks)\n\n", playlist.Name(), len(tracks))
	r.writePlainln(formatter.TrackTable(tracks))
	return nil
}

// loadSnapshot assembles the stored library of the logged-in user.
func (r *Runner) loadSnapshot(ctx context.Context, config *shared.Config, store tasks.Store) (*tasks.LibrarySnapshot, error) {
	userID := config.Credentials.Spotify.UserID
	if userID == "" {
		return nil, fmt.Errorf("%w: no saved login, run 'snx auth login' first", shared.ErrNotAuthenticated)
	}

	engine := tasks.NewLibraryEngine(nil, store, r.engineOpts(config))
	snapshot, err := engine.Snapshot(ctx, "spotify", userID)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
