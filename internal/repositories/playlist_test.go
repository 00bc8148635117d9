package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

func TestPlaylistUpsertByOrigin(t *testing.T) {
	ctx := context.Background()

	t.Run("Idempotent", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		user := seedUser(t, db, "alice")

		first := &models.Playlist{
			OwnerID:  user.ID,
			Name:     "Road Trip",
			Origin:   models.OriginSpotify,
			OriginID: "sp-1",
		}
		if err := repo.UpsertByOrigin(ctx, first); err != nil {
			t.Fatalf("first upsert failed: %v", err)
		}

		second := &models.Playlist{
			OwnerID:     user.ID,
			Name:        "Road Trip (renamed)",
			Description: "summer edition",
			Origin:      models.OriginSpotify,
			OriginID:    "sp-1",
		}
		if err := repo.UpsertByOrigin(ctx, second); err != nil {
			t.Fatalf("second upsert failed: %v", err)
		}

		if second.ID != first.ID {
			t.Errorf("re-import created a new row: ids %d vs %d", first.ID, second.ID)
		}

		got, err := repo.Get(ctx, first.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Name != "Road Trip (renamed)" || got.Description != "summer edition" {
			t.Errorf("mutable fields not updated: %+v", got)
		}
	})

	t.Run("DistinctPerOwner", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		alice := seedUser(t, db, "alice")
		bob := seedUser(t, db, "bob")

		p1 := seedPlaylist(t, db, alice.ID, models.OriginSpotify, "sp-1")
		p2 := seedPlaylist(t, db, bob.ID, models.OriginSpotify, "sp-1")

		if p1.ID == p2.ID {
			t.Error("same origin id for different owners must be distinct rows")
		}
	})

	t.Run("Validation", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		err := repo.UpsertByOrigin(ctx, &models.Playlist{Name: "orphan", Origin: models.OriginSpotify})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestPlaylistReconcile(t *testing.T) {
	ctx := context.Background()

	track := func(title string) models.Track {
		return models.Track{Title: title, Artist: "Artist", Album: "Album"}
	}

	t.Run("ConvergesToRemote", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		user := seedUser(t, db, "alice")
		playlist := seedPlaylist(t, db, user.ID, models.OriginSpotify, "sp-1")

		added, removed, err := repo.Reconcile(ctx, playlist.ID, []models.Track{track("a"), track("b"), track("c")})
		if err != nil {
			t.Fatalf("initial reconcile failed: %v", err)
		}
		if added != 3 || removed != 0 {
			t.Errorf("got added=%d removed=%d, want 3/0", added, removed)
		}

		// Remote dropped "a" and gained "d".
		added, removed, err = repo.Reconcile(ctx, playlist.ID, []models.Track{track("b"), track("c"), track("d")})
		if err != nil {
			t.Fatalf("second reconcile failed: %v", err)
		}
		if added != 1 || removed != 1 {
			t.Errorf("got added=%d removed=%d, want 1/1", added, removed)
		}

		members, err := repo.Tracks(ctx, playlist.ID)
		if err != nil {
			t.Fatalf("tracks failed: %v", err)
		}
		titles := make(map[string]bool)
		for _, m := range members {
			titles[m.Title] = true
		}
		for _, want := range []string{"b", "c", "d"} {
			if !titles[want] {
				t.Errorf("missing member %q", want)
			}
		}
		if titles["a"] {
			t.Error("member a should have been removed")
		}
	})

	t.Run("NoOpWhenIdentical", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		user := seedUser(t, db, "alice")
		playlist := seedPlaylist(t, db, user.ID, models.OriginSpotify, "sp-1")

		remote := []models.Track{track("a"), track("b")}
		if _, _, err := repo.Reconcile(ctx, playlist.ID, remote); err != nil {
			t.Fatalf("first reconcile failed: %v", err)
		}

		added, removed, err := repo.Reconcile(ctx, playlist.ID, remote)
		if err != nil {
			t.Fatalf("second reconcile failed: %v", err)
		}
		if added != 0 || removed != 0 {
			t.Errorf("identical remote should be a no-op, got added=%d removed=%d", added, removed)
		}
	})

	t.Run("EmptyRemoteClearsMembership", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		user := seedUser(t, db, "alice")
		playlist := seedPlaylist(t, db, user.ID, models.OriginSpotify, "sp-1")

		if _, _, err := repo.Reconcile(ctx, playlist.ID, []models.Track{track("a")}); err != nil {
			t.Fatalf("initial reconcile failed: %v", err)
		}

		_, removed, err := repo.Reconcile(ctx, playlist.ID, nil)
		if err != nil {
			t.Fatalf("empty reconcile failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("got removed=%d, want 1", removed)
		}

		members, err := repo.Tracks(ctx, playlist.ID)
		if err != nil {
			t.Fatalf("tracks failed: %v", err)
		}
		if len(members) != 0 {
			t.Errorf("membership should be empty, got %d", len(members))
		}
	})

	t.Run("CanonicalTracksSurviveRemoval", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		tracks := NewTrackRepository(db)
		user := seedUser(t, db, "alice")
		playlist := seedPlaylist(t, db, user.ID, models.OriginSpotify, "sp-1")

		if _, _, err := repo.Reconcile(ctx, playlist.ID, []models.Track{track("a")}); err != nil {
			t.Fatalf("initial reconcile failed: %v", err)
		}
		if _, _, err := repo.Reconcile(ctx, playlist.ID, nil); err != nil {
			t.Fatalf("clearing reconcile failed: %v", err)
		}

		count, err := tracks.Count(ctx)
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("canonical track row should survive membership removal, got %d rows", count)
		}
	})
}

func TestPlaylistMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("AddDuplicateIsNoOp", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		tracks := NewTrackRepository(db)
		user := seedUser(t, db, "alice")
		playlist := seedPlaylist(t, db, user.ID, models.OriginSpotify, "sp-1")

		track := models.Track{Title: "a", Artist: "Artist"}
		if _, err := tracks.Upsert(ctx, track); err != nil {
			t.Fatalf("track upsert failed: %v", err)
		}

		for i := 0; i < 2; i++ {
			if err := repo.AddTrack(ctx, playlist.ID, track.Key()); err != nil {
				t.Fatalf("add %d failed: %v", i, err)
			}
		}

		members, err := repo.Tracks(ctx, playlist.ID)
		if err != nil {
			t.Fatalf("tracks failed: %v", err)
		}
		if len(members) != 1 {
			t.Errorf("duplicate add should be a no-op, got %d members", len(members))
		}
	})

	t.Run("RemoveMissing", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		user := seedUser(t, db, "alice")
		playlist := seedPlaylist(t, db, user.ID, models.OriginSpotify, "sp-1")

		err := repo.RemoveTrack(ctx, playlist.ID, models.TrackKey{Title: "x", Artist: "y"})
		if !errors.Is(err, shared.ErrNotInPlaylist) {
			t.Fatalf("expected ErrNotInPlaylist, got %v", err)
		}
	})
}

func TestPlaylistDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("CascadesSharesAndMemberships", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		shares := NewShareRepository(db)
		alice := seedUser(t, db, "alice")
		bob := seedUser(t, db, "bob")
		playlist := seedPlaylist(t, db, alice.ID, models.OriginSpotify, "sp-1")

		if _, _, err := repo.Reconcile(ctx, playlist.ID, []models.Track{{Title: "a", Artist: "b"}}); err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if err := shares.Create(ctx, playlist.ID, bob.ID, alice.ID); err != nil {
			t.Fatalf("share failed: %v", err)
		}

		if err := repo.Delete(ctx, playlist.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		if _, err := repo.Get(ctx, playlist.ID); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Fatalf("expected ErrPlaylistNotFound, got %v", err)
		}

		visible, err := shares.IsSharedWith(ctx, playlist.ID, bob.ID)
		if err != nil {
			t.Fatalf("IsSharedWith failed: %v", err)
		}
		if visible {
			t.Error("share should be gone after playlist delete")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		err := NewPlaylistRepository(db).Delete(ctx, 999)
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Fatalf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("ByOwnerOrigin", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaylistRepository(db)
		alice := seedUser(t, db, "alice")
		seedPlaylist(t, db, alice.ID, models.OriginSpotify, "sp-1")
		seedPlaylist(t, db, alice.ID, models.OriginSpotify, "sp-2")
		keeper := seedPlaylist(t, db, alice.ID, models.OriginDeezer, "dz-1")

		if err := repo.DeleteByOwnerOrigin(ctx, alice.ID, models.OriginSpotify); err != nil {
			t.Fatalf("delete by origin failed: %v", err)
		}

		remaining, err := repo.ListByOwner(ctx, alice.ID, "")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(remaining) != 1 || remaining[0].ID != keeper.ID {
			t.Errorf("only the deezer playlist should survive, got %+v", remaining)
		}
	})
}

func TestPlaylistListByOwnerWithTracks(t *testing.T) {
	ctx := context.Background()

	db := setupTestDB(t)
	defer db.Close()

	repo := NewPlaylistRepository(db)
	alice := seedUser(t, db, "alice")
	p1 := seedPlaylist(t, db, alice.ID, models.OriginSpotify, "sp-1")
	p2 := seedPlaylist(t, db, alice.ID, models.OriginSpotify, "sp-2")

	if _, _, err := repo.Reconcile(ctx, p1.ID, []models.Track{
		{Title: "a", Artist: "x"},
		{Title: "b", Artist: "x"},
	}); err != nil {
		t.Fatalf("reconcile p1 failed: %v", err)
	}

	loaded, err := repo.ListByOwnerWithTracks(ctx, alice.ID, models.OriginSpotify)
	if err != nil {
		t.Fatalf("list with tracks failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d playlists, want 2", len(loaded))
	}

	byID := map[int64]int{}
	for _, entry := range loaded {
		byID[entry.Playlist.ID] = len(entry.Tracks)
	}
	if byID[p1.ID] != 2 {
		t.Errorf("playlist 1 should have 2 tracks, got %d", byID[p1.ID])
	}
	if byID[p2.ID] != 0 {
		t.Errorf("playlist 2 should have 0 tracks, got %d", byID[p2.ID])
	}
}
