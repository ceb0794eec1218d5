package repositories

import (
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestPlaybackStateRepository(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		state, err := NewPlaybackStateRepository(db).Load()
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if state.IDs == nil || len(state.IDs) != 0 || state.Index != 0 || state.PositionMs != 0 {
			t.Errorf("expected empty defaults, got %+v", state)
		}
		if !state.Empty() {
			t.Error("expected Empty() to be true")
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaybackStateRepository(db)
		if err := repo.Save([]string{"a", "b", "c"}, 1, 5000); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		state, err := repo.Load()
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if !slices.Equal(state.IDs, []string{"a", "b", "c"}) || state.Index != 1 || state.PositionMs != 5000 {
			t.Errorf("unexpected state %+v", state)
		}
	})

	t.Run("IndependentWriters", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaybackStateRepository(db)
		if err := repo.Save([]string{"a", "b"}, 0, 0); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if err := repo.SavePosition(42_000); err != nil {
			t.Fatalf("failed to save position: %v", err)
		}
		if err := repo.SaveIndex(1); err != nil {
			t.Fatalf("failed to save index: %v", err)
		}

		state, err := repo.Load()
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if !slices.Equal(state.IDs, []string{"a", "b"}) || state.Index != 1 || state.PositionMs != 42_000 {
			t.Errorf("unexpected state %+v", state)
		}

		if err := repo.Save([]string{"z"}, 0, 10); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		state, _ = repo.Load()
		if !slices.Equal(state.IDs, []string{"z"}) || state.Index != 0 || state.PositionMs != 10 {
			t.Errorf("later Save should win, got %+v", state)
		}
	})

	t.Run("PositionBeforeSave", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaybackStateRepository(db)
		if err := repo.SavePosition(900); err != nil {
			t.Fatalf("failed to save position: %v", err)
		}
		state, err := repo.Load()
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if len(state.IDs) != 0 || state.PositionMs != 900 {
			t.Errorf("unexpected state %+v", state)
		}
	})

	t.Run("EmptyPlaylist", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaybackStateRepository(db)
		if err := repo.Save(nil, 0, 0); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		state, err := repo.Load()
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if len(state.IDs) != 0 {
			t.Errorf("expected no ids, got %v", state.IDs)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlaybackStateRepository(db)
		if err := repo.Save([]string{"a"}, 0, 1); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if err := repo.Clear(); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if state, _ := repo.Load(); !state.Empty() {
			t.Errorf("expected empty state, got %+v", state)
		}
	})

	t.Run("Persistent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.db")
		cfg := shared.DatabaseConfig{Path: path, MaxOpenConns: 1, MaxIdleConns: 1}

		db, err := shared.OpenDatabase(cfg)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if err := NewPlaybackStateRepository(db).Save([]string{"x", "y"}, 1, 77); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		db.Close()

		db, err = shared.OpenDatabase(cfg)
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		state, err := NewPlaybackStateRepository(db).Load()
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if !slices.Equal(state.IDs, []string{"x", "y"}) || state.Index != 1 || state.PositionMs != 77 {
			t.Errorf("unexpected state after reopen %+v", state)
		}
	})
}

func TestPlaybackStateRepositoryErrors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewPlaybackStateRepository(db)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"comma in id", func() error { return repo.Save([]string{"a,b"}, 0, 0) }},
		{"empty id", func() error { return repo.Save([]string{""}, 0, 0) }},
		{"negative index", func() error { return repo.Save([]string{"a"}, -1, 0) }},
		{"negative position", func() error { return repo.SavePosition(-5) }},
		{"negative saved index", func() error { return repo.SaveIndex(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	t.Run("corrupt value", func(t *testing.T) {
		if _, err := db.Exec(`INSERT INTO playback_state (key, value) VALUES (?, ?)`, KeyPlaylistIndex, "abc"); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
		if _, err := repo.Load(); err == nil {
			t.Error("expected error for corrupt index")
		}
	})
}

func TestCredentialRepository(t *testing.T) {
	cred := func(server, user string) *models.Credential {
		return &models.Credential{ServerURL: server, UserID: user, Username: "name-" + user, AccessToken: "tok-" + user, DeviceID: "dev"}
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		if err := repo.Save(cred("http://jf.local", "u1")); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		got, err := repo.Get("http://jf.local")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.UserID != "u1" || got.AccessToken != "tok-u1" || got.CreatedAt.IsZero() {
			t.Errorf("unexpected credential %+v", got)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		if err := repo.Save(cred("http://jf.local", "u1")); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if err := repo.Save(cred("http://jf.local", "u2")); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		got, err := repo.Latest()
		if err != nil {
			t.Fatalf("failed to get latest: %v", err)
		}
		if got.UserID != "u2" {
			t.Errorf("expected replaced credential, got %+v", got)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		if _, err := repo.Get("http://nope"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.Latest(); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.Delete("http://nope"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		if err := repo.Save(cred("http://jf.local", "u1")); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if err := repo.Delete("http://jf.local"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := repo.Get("http://jf.local"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		bad := cred("jf.local", "u1")
		if err := repo.Save(bad); err == nil {
			t.Error("expected validation error for relative server url")
		}
		bad = cred("http://jf.local", "u1")
		bad.AccessToken = ""
		if err := repo.Save(bad); err == nil {
			t.Error("expected validation error for missing token")
		}
	})

	t.Run("DeviceID", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		first, err := repo.DeviceID()
		if err != nil {
			t.Fatalf("failed to get device id: %v", err)
		}
		second, err := repo.DeviceID()
		if err != nil {
			t.Fatalf("failed to get device id: %v", err)
		}
		if first == "" || first != second {
			t.Errorf("device id should be stable, got %q then %q", first, second)
		}
	})
}
