package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/snx/internal/services"
	"github.com/desertthunder/snx/internal/shared"
	"github.com/desertthunder/snx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// storeLibrary exposes the local store through the provider read interface,
// so the diff engine can compare a live playlist against its stored snapshot.
type storeLibrary struct {
	provider string
	userID   string
	store    tasks.Store
}

func (s *storeLibrary) Authenticate(ctx context.Context, credentials map[string]string) error {
	return nil
}

func (s *storeLibrary) GetProfile(ctx context.Context) (*services.Profile, error) {
	user, err := s.store.Users.GetByProviderID(s.provider, s.userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s user %s has never been synced", shared.ErrUserNotFound, s.provider, s.userID)
	}
	return &services.Profile{ID: user.ProviderUserID(), DisplayName: user.DisplayName(), Email: user.Email()}, nil
}

func (s *storeLibrary) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	user, err := s.store.Users.GetByProviderID(s.provider, s.userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s user %s has never been synced", shared.ErrUserNotFound, s.provider, s.userID)
	}

	playlists, err := s.store.Playlists.ListByOwner(user.ID())
	if err != nil {
		return nil, err
	}

	out := make([]services.Playlist, 0, len(playlists))
	for _, pl := range playlists {
		out = append(out, services.Playlist{
			ID:          pl.ProviderPlaylistID(),
			Name:        pl.Name(),
			Description: pl.Description(),
			OwnerID:     pl.OwnerID(),
			TrackCount:  len(pl.Tracks()),
			Public:      pl.Public(),
			Raw:         pl.Raw(),
		})
	}
	return out, nil
}

func (s *storeLibrary) GetPlaylistTracks(ctx context.Context, playlistID string) ([]services.Track, error) {
	playlist, err := s.store.Playlists.GetByProviderID(s.provider, playlistID)
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, fmt.Errorf("%w: playlist '%s' is not in the store, run 'snx sync run' first", shared.ErrPlaylistNotFound, playlistID)
	}

	refs := playlist.Tracks()
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.TrackID)
	}

	tracks, err := s.store.Tracks.ListByIDs(ids)
	if err != nil {
		return nil, err
	}

	out := make([]services.Track, 0, len(tracks))
	for _, track := range tracks {
		out = append(out, services.Track{
			ID:         track.ProviderTrackID(),
			Title:      track.Title(),
			Artist:     track.Artist(),
			Album:      track.Album(),
			DurationMS: track.DurationMS(),
			ISRC:       track.ISRC(),
			Raw:        track.Raw(),
		})
	}
	return out, nil
}

func (s *storeLibrary) GetSavedTracks(ctx context.Context) ([]services.Track, error) {
	return nil, fmt.Errorf("%w: the store keeps no saved-track listing", shared.ErrNotImplemented)
}

func (s *storeLibrary) Name() string {
	return "store"
}

// DiffRun compares a live provider playlist against its stored snapshot and
// reports the drift in both directions.
func (r *Runner) DiffRun(ctx context.Context, cmd *cli.Command) error {
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

	stored := &storeLibrary{
		provider: source.Name(),
		userID:   config.Credentials.Spotify.UserID,
		store:    store,
	}

	id := cmd.String("id")
	engine := tasks.NewLibraryEngine(source, store, r.engineOpts(config))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchSource, tasks.FetchDest:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.Compare:
				r.writePlain("🔍 %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Diff(ctx, source, stored, id, id, progressCh)
	close(progressCh)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Drift Report")
	r.writePlain("Playlist: %s\n", id)
	r.writePlain("Live tracks: %d, stored tracks: %d, matched: %d\n\n", result.SourceTracks, result.DestTracks, result.MatchedCount)

	if len(result.MissingInDest) == 0 && len(result.ExtraInDest) == 0 {
		r.writePlain("✓ Store matches the provider.\n")
		return nil
	}

	if len(result.MissingInDest) > 0 {
		r.writePlain("Added upstream (not yet synced): %d\n", len(result.MissingInDest))
		for i, track := range result.MissingInDest {
			r.writePlain("%d. %s - %s [%s]\n", i+1, track.Artist, track.Title, track.Album)
		}
		r.writePlainln("")
	}

	if len(result.ExtraInDest) > 0 {
		r.writePlain("Removed upstream (store only): %d\n", len(result.ExtraInDest))
		for i, track := range result.ExtraInDest {
			r.writePlain("%d. %s - %s [%s]\n", i+1, track.Artist, track.Title, track.Album)
		}
	}

	return nil
}
