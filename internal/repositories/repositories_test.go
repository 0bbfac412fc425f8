package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/shared"
)

// openTestDB opens a throwaway database and applies every migration.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	return db
}

func testUser(localID, displayName, email string) *models.User {
	return models.NewUser(0, "spotify", localID, models.UserAttrs{
		DisplayName: displayName,
		Email:       email,
		Profile:     json.RawMessage(`{"country":"US"}`),
	})
}

func testTrack(localID, title, artist, isrc string) *models.Track {
	return models.NewTrack(0, "spotify", localID, models.TrackAttrs{
		Title:      title,
		Artist:     artist,
		Album:      "First Light",
		ISRC:       isrc,
		DurationMS: 180000,
		Raw:        json.RawMessage(`{"id":"` + localID + `"}`),
	})
}

func testPlaylist(localID, ownerID, name string) *models.Playlist {
	return models.NewPlaylist(0, "spotify", localID, ownerID, models.PlaylistAttrs{
		Name:        name,
		Description: "songs for the drive home",
		TrackCount:  0,
		Public:      true,
		Raw:         json.RawMessage(`{"id":"` + localID + `"}`),
	})
}

func TestUserRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")

		err := repo.Create(user)
		if err != nil {
			t.Fatalf("create user: %v", err)
		}

		if user.ID() == "" {
			t.Error("expected Create to assign an id")
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")

		if err := repo.Create(user); err != nil {
			t.Fatalf("create user: %v", err)
		}

		retrieved, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("get user: %v", err)
		}

		if retrieved.ID() != user.ID() {
			t.Errorf("want id %s, got %s", user.ID(), retrieved.ID())
		}

		if retrieved.Email() != user.Email() {
			t.Errorf("want email %s, got %s", user.Email(), retrieved.Email())
		}
	})

	t.Run("GetByProviderID", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")

		if err := repo.Create(user); err != nil {
			t.Fatalf("create user: %v", err)
		}

		retrieved, err := repo.GetByProviderID("spotify", "sp_user_a")
		if err != nil {
			t.Fatalf("failed to get user by provider id: %v", err)
		}
		if retrieved == nil {
			t.Fatal("expected user, got nil")
		}
		if retrieved.ID() != user.ID() {
			t.Errorf("want id %s, got %s", user.ID(), retrieved.ID())
		}

		missing, err := repo.GetByProviderID("spotify", "absent")
		if err != nil {
			t.Fatalf("lookup miss should not error: %v", err)
		}
		if missing != nil {
			t.Errorf("expected nil for missing key, got %v", missing)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)

		first, err := repo.Upsert(testUser("sp_user_a", "Avery Stone", "avery@snx.test"))
		if err != nil {
			t.Fatalf("failed to upsert new user: %v", err)
		}
		if first.ID() == "" {
			t.Fatal("upsert should assign a store id")
		}

		// Identical contents leave the stored row untouched.
		stored, err := repo.Get(first.ID())
		if err != nil {
			t.Fatalf("failed to read back user: %v", err)
		}

		second, err := repo.Upsert(testUser("sp_user_a", "Avery Stone", "avery@snx.test"))
		if err != nil {
			t.Fatalf("failed to upsert unchanged user: %v", err)
		}
		if second.ID() != first.ID() {
			t.Errorf("expected stable id %s, got %s", first.ID(), second.ID())
		}

		after, err := repo.Get(first.ID())
		if err != nil {
			t.Fatalf("failed to read back user: %v", err)
		}
		if !after.UpdatedAt().Equal(stored.UpdatedAt()) {
			t.Error("unchanged upsert should not rewrite the row")
		}

		// Changed contents replace the stored row under the same id.
		third, err := repo.Upsert(testUser("sp_user_a", "Renamed User", "avery@snx.test"))
		if err != nil {
			t.Fatalf("failed to upsert changed user: %v", err)
		}
		if third.ID() != first.ID() {
			t.Errorf("expected stable id %s, got %s", first.ID(), third.ID())
		}
		if third.DisplayName() != "Renamed User" {
			t.Errorf("expected refreshed display name, got %s", third.DisplayName())
		}

		users, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("list users: %v", err)
		}
		if len(users) != 1 {
			t.Errorf("expected 1 user after repeated upserts, got %d", len(users))
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")

		if err := repo.Create(user); err != nil {
			t.Fatalf("create user: %v", err)
		}

		retrieved, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("get user: %v", err)
		}

		if err := repo.Update(retrieved); err != nil {
			t.Fatalf("update user: %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")

		if err := repo.Create(user); err != nil {
			t.Fatalf("create user: %v", err)
		}

		if err := repo.Delete(user.ID()); err != nil {
			t.Fatalf("delete user: %v", err)
		}

		_, err := repo.Get(user.ID())
		if err == nil {
			t.Error("expected a miss after delete")
		}
	})

	t.Run("List", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)

		users := []*models.User{
			testUser("sp_user_a", "Blair North", "blair@snx.test"),
			testUser("sp_user_b", "Casey Fell", "casey@snx.test"),
			testUser("sp_user_c", "Drew Vance", "drew@snx.test"),
		}

		for _, user := range users {
			if err := repo.Create(user); err != nil {
				t.Fatalf("create user: %v", err)
			}
		}

		retrieved, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("list users: %v", err)
		}

		if len(retrieved) != 3 {
			t.Errorf("listed %d users, want 3", len(retrieved))
		}

		filtered, err := repo.List(map[string]any{"email": "casey@snx.test"})
		if err != nil {
			t.Fatalf("filtered list: %v", err)
		}

		if len(filtered) != 1 {
			t.Errorf("filtered to %d users, want 1", len(filtered))
		}

		if len(filtered) > 0 && filtered[0].Email() != "casey@snx.test" {
			t.Errorf("filtered email = %s, want casey@snx.test", filtered[0].Email())
		}
	})
}

func TestTrackRepository(t *testing.T) {
	t.Run("Create & Get", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)
		track := testTrack("sp_90210", "Golden Hour", "Wild Pines", "USWP52400314")

		if err := repo.Create(track); err != nil {
			t.Fatalf("create track: %v", err)
		}

		retrieved, err := repo.GetByProviderID("spotify", "sp_90210")
		if err != nil {
			t.Fatalf("get track: %v", err)
		}
		if retrieved == nil {
			t.Fatal("expected track, got nil")
		}

		if retrieved.Title() != "Golden Hour" {
			t.Errorf("Title = %s, want Golden Hour", retrieved.Title())
		}

		if retrieved.ISRC() != "USWP52400314" {
			t.Errorf("ISRC = %s, want USWP52400314", retrieved.ISRC())
		}
	})

	t.Run("GetByISRC", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)
		track := testTrack("sp_90210", "Golden Hour", "Wild Pines", "USWP52400314")

		if err := repo.Create(track); err != nil {
			t.Fatalf("create track: %v", err)
		}

		retrieved, err := repo.GetByISRC("USWP52400314")
		if err != nil {
			t.Fatalf("GetByISRC: %v", err)
		}

		if retrieved.ISRC() != "USWP52400314" {
			t.Errorf("ISRC = %s, want USWP52400314", retrieved.ISRC())
		}
	})

	t.Run("Exists", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)
		track := testTrack("sp_90210", "Golden Hour", "Wild Pines", "USWP52400314")

		if err := repo.Create(track); err != nil {
			t.Fatalf("create track: %v", err)
		}

		exists, err := repo.Exists("spotify", "sp_90210")
		if err != nil {
			t.Fatalf("failed to check existence: %v", err)
		}
		if !exists {
			t.Error("expected track to exist")
		}

		exists, err = repo.Exists("spotify", "absent")
		if err != nil {
			t.Fatalf("failed to check existence: %v", err)
		}
		if exists {
			t.Error("expected absent track to not exist")
		}
	})

	t.Run("Upsert deduplicates", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)

		first, err := repo.Upsert(testTrack("sp_90210", "Golden Hour", "Wild Pines", "USWP52400314"))
		if err != nil {
			t.Fatalf("failed to upsert track: %v", err)
		}

		second, err := repo.Upsert(testTrack("sp_90210", "Golden Hour", "Wild Pines", "USWP52400314"))
		if err != nil {
			t.Fatalf("failed to upsert duplicate track: %v", err)
		}

		if first.ID() != second.ID() {
			t.Errorf("expected one row for repeated key, got ids %s and %s", first.ID(), second.ID())
		}

		tracks, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("list tracks: %v", err)
		}
		if len(tracks) != 1 {
			t.Errorf("expected 1 track, got %d", len(tracks))
		}
	})
}

func TestPlaylistRepository(t *testing.T) {
	t.Run("Create & Get", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		userRepo := NewUserRepository(db)
		user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")
		if err := userRepo.Create(user); err != nil {
			t.Fatalf("create user: %v", err)
		}

		playlistRepo := NewPlaylistRepository(db)
		playlist := testPlaylist("sp_90210", user.ID(), "Trail Mix")

		if err := playlistRepo.Create(playlist); err != nil {
			t.Fatalf("create playlist: %v", err)
		}

		retrieved, err := playlistRepo.GetByProviderID("spotify", "sp_90210")
		if err != nil {
			t.Fatalf("get playlist: %v", err)
		}
		if retrieved == nil {
			t.Fatal("expected playlist, got nil")
		}

		if retrieved.Name() != "Trail Mix" {
			t.Errorf("Name = %s, want Trail Mix", retrieved.Name())
		}

		if retrieved.OwnerID() != user.ID() {
			t.Errorf("expected owner ID %s, got %s", user.ID(), retrieved.OwnerID())
		}
	})

	t.Run("Track membership", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		userRepo := NewUserRepository(db)
		user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")
		if err := userRepo.Create(user); err != nil {
			t.Fatalf("create user: %v", err)
		}

		trackRepo := NewTrackRepository(db)
		track1 := testTrack("t1", "Song One", "Artist", "US0000000001")
		track2 := testTrack("t2", "Song Two", "Artist", "US0000000002")
		for _, track := range []*models.Track{track1, track2} {
			if err := trackRepo.Create(track); err != nil {
				t.Fatalf("create track: %v", err)
			}
		}

		playlistRepo := NewPlaylistRepository(db)
		playlist := testPlaylist("sp_90210", user.ID(), "Trail Mix")
		playlist.SetTracks([]models.TrackRef{
			{TrackID: track1.ID(), ProviderTrackID: "t1", Position: 0},
			{TrackID: track2.ID(), ProviderTrackID: "t2", Position: 1},
		})

		if err := playlistRepo.Create(playlist); err != nil {
			t.Fatalf("create playlist: %v", err)
		}

		retrieved, err := playlistRepo.Get(playlist.ID())
		if err != nil {
			t.Fatalf("get playlist: %v", err)
		}

		refs := retrieved.Tracks()
		if len(refs) != 2 {
			t.Fatalf("expected 2 track refs, got %d", len(refs))
		}
		if refs[0].ProviderTrackID != "t1" || refs[1].ProviderTrackID != "t2" {
			t.Errorf("track refs out of order: %+v", refs)
		}

		// Replacement swaps membership wholesale.
		if err := playlistRepo.ReplaceTracks(playlist.ID(), []models.TrackRef{
			{TrackID: track2.ID(), ProviderTrackID: "t2", Position: 0},
		}); err != nil {
			t.Fatalf("failed to replace tracks: %v", err)
		}

		retrieved, err = playlistRepo.Get(playlist.ID())
		if err != nil {
			t.Fatalf("get playlist: %v", err)
		}
		refs = retrieved.Tracks()
		if len(refs) != 1 {
			t.Fatalf("expected 1 track ref after replacement, got %d", len(refs))
		}
		if refs[0].ProviderTrackID != "t2" {
			t.Errorf("expected t2 after replacement, got %s", refs[0].ProviderTrackID)
		}
	})

	t.Run("ListByOwner", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		userRepo := NewUserRepository(db)
		owner := testUser("sp_user_a", "Owner", "owner@snx.test")
		other := testUser("sp_user_b", "Other", "other@snx.test")
		for _, user := range []*models.User{owner, other} {
			if err := userRepo.Create(user); err != nil {
				t.Fatalf("create user: %v", err)
			}
		}

		playlistRepo := NewPlaylistRepository(db)
		for i, row := range []struct {
			localID string
			ownerID string
		}{
			{"pl1", owner.ID()},
			{"pl2", owner.ID()},
			{"pl3", other.ID()},
		} {
			playlist := testPlaylist(row.localID, row.ownerID, fmt.Sprintf("Playlist %d", i+1))
			if err := playlistRepo.Create(playlist); err != nil {
				t.Fatalf("create playlist: %v", err)
			}
		}

		playlists, err := playlistRepo.ListByOwner(owner.ID())
		if err != nil {
			t.Fatalf("failed to list playlists by owner: %v", err)
		}

		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists for owner, got %d", len(playlists))
		}
		if playlists[0].ProviderPlaylistID() != "pl1" || playlists[1].ProviderPlaylistID() != "pl2" {
			t.Errorf("expected insertion order pl1, pl2; got %s, %s",
				playlists[0].ProviderPlaylistID(), playlists[1].ProviderPlaylistID())
		}
	})

	t.Run("Upsert replaces contents", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close()

		userRepo := NewUserRepository(db)
		user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")
		if err := userRepo.Create(user); err != nil {
			t.Fatalf("create user: %v", err)
		}

		playlistRepo := NewPlaylistRepository(db)

		first, err := playlistRepo.Upsert(testPlaylist("sp_90210", user.ID(), "Original Name"))
		if err != nil {
			t.Fatalf("failed to upsert playlist: %v", err)
		}

		second, err := playlistRepo.Upsert(testPlaylist("sp_90210", user.ID(), "Renamed"))
		if err != nil {
			t.Fatalf("failed to upsert changed playlist: %v", err)
		}

		if first.ID() != second.ID() {
			t.Errorf("expected stable id across upserts, got %s and %s", first.ID(), second.ID())
		}
		if second.Name() != "Renamed" {
			t.Errorf("expected refreshed name, got %s", second.Name())
		}

		playlists, err := playlistRepo.List(map[string]any{})
		if err != nil {
			t.Fatalf("list playlists: %v", err)
		}
		if len(playlists) != 1 {
			t.Errorf("expected 1 playlist, got %d", len(playlists))
		}
	})
}

func TestSyncJobRepository_CreateAndUpdate(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	userRepo := NewUserRepository(db)
	user := testUser("sp_user_a", "Avery Stone", "avery@snx.test")
	if err := userRepo.Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	jobRepo := NewSyncJobRepository(db)
	job := models.NewSyncJob(0, user.ID(), "spotify")

	if err := jobRepo.Create(job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if job.Status() != models.JobPending {
		t.Errorf("expected status 'pending', got %s", job.Status())
	}

	job.SetStatus(models.JobRunning)
	job.SetPlaylistsTotal(10)
	job.SetPlaylistsSynced(5)
	job.SetTracksUpserted(120)

	if err := jobRepo.Update(job); err != nil {
		t.Fatalf("update job: %v", err)
	}

	retrieved, err := jobRepo.Get(job.ID())
	if err != nil {
		t.Fatalf("get job: %v", err)
	}

	if retrieved.Status() != models.JobRunning {
		t.Errorf("expected status 'running', got %s", retrieved.Status())
	}

	if retrieved.PlaylistsTotal() != 10 {
		t.Errorf("expected 10 total playlists, got %d", retrieved.PlaylistsTotal())
	}

	if retrieved.TracksUpserted() != 120 {
		t.Errorf("expected 120 upserted tracks, got %d", retrieved.TracksUpserted())
	}
}

func TestNextSequence(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	seq1, err := NextSequence(db, "users")
	if err != nil {
		t.Fatalf("first NextSequence: %v", err)
	}

	if seq1 != 1 {
		t.Errorf("first sequence = %d, want 1", seq1)
	}

	seq2, err := NextSequence(db, "users")
	if err != nil {
		t.Fatalf("second NextSequence: %v", err)
	}

	if seq2 != 2 {
		t.Errorf("second sequence = %d, want 2", seq2)
	}

	trackSeq, err := NextSequence(db, "tracks")
	if err != nil {
		t.Fatalf("tracks NextSequence: %v", err)
	}

	if trackSeq != 1 {
		t.Errorf("tracks sequence = %d, want 1", trackSeq)
	}
}

// TestUpsertConcurrent drives the same composite key from several goroutines
// and expects exactly one surviving row. Uses a file-backed database so the
// connection pool behaves the way it does outside of tests.
func TestUpsertConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snx_test.db")

	db, err := shared.NewDatabase(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewTrackRepository(db)

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Upsert(testTrack("sp_90210", "Golden Hour", "Wild Pines", "USWP52400314"))
			if err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent upsert failed: %v", err)
	}

	tracks, err := repo.List(map[string]any{})
	if err != nil {
		t.Fatalf("list tracks: %v", err)
	}
	if len(tracks) != 1 {
		t.Errorf("expected 1 track after concurrent upserts, got %d", len(tracks))
	}
}
