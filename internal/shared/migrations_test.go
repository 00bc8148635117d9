package shared

import (
	"database/sql"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return count > 0
}

func TestRunMigrations(t *testing.T) {
	t.Run("CreatesSchema", func(t *testing.T) {
		db := openTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("migrations failed: %v", err)
		}

		for _, table := range []string{
			"users", "provider_credentials", "tracks", "playlists",
			"playlist_tracks", "friendships", "playlist_shares",
		} {
			if !tableExists(t, db, table) {
				t.Errorf("table %s missing after migration", table)
			}
		}
	})

	t.Run("CommentsMaySpanStatements", func(t *testing.T) {
		db := openTestDB(t)

		if _, err := db.Exec("CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY)"); err != nil {
			t.Fatalf("failed to create bookkeeping table: %v", err)
		}

		script := `-- commentary with a semicolon; it must not split the script
CREATE TABLE notes (id INTEGER PRIMARY KEY); -- trailing remark
INSERT INTO notes (id) VALUES (1);`
		if err := execMigration(db, script, "INSERT INTO schema_migrations (version) VALUES (?)", 7); err != nil {
			t.Fatalf("migration with commented script failed: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
			t.Fatalf("failed to query notes: %v", err)
		}
		if count != 1 {
			t.Errorf("got %d rows, want 1", count)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		db := openTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("second run should be a no-op: %v", err)
		}

		var applied int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
			t.Fatalf("failed to count applied migrations: %v", err)
		}
		if applied == 0 {
			t.Error("expected at least one recorded migration")
		}
	})
}

func TestRollbackMigration(t *testing.T) {
	t.Run("RemovesSchema", func(t *testing.T) {
		db := openTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("migrations failed: %v", err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}

		if tableExists(t, db, "users") {
			t.Error("users table should be gone after rollback")
		}
	})

	t.Run("NothingToRollback", func(t *testing.T) {
		db := openTestDB(t)

		if _, err := db.Exec("CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY)"); err != nil {
			t.Fatalf("failed to create bookkeeping table: %v", err)
		}
		if err := RollbackMigration(db); err == nil {
			t.Error("rollback on an empty history should fail")
		}
	})
}
