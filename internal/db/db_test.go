package db

import (
	"path/filepath"
	"testing"
)

func TestMigrate_CreatesAllTables(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	tables := []string{
		"schema_version",
		"games",
		"questions",
		"agents",
		"positions",
		"markets",
		"market_snapshots",
		"events",
		"bets",
		"reputation_deltas",
	}

	for _, table := range tables {
		row := database.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table)
		var count int
		if err := row.Scan(&count); err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	// Run twice; should not error.
	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	var versions int
	if err := database.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&versions); err != nil {
		t.Fatal(err)
	}
	if versions != 1 {
		t.Errorf("expected 1 schema version row, got %d", versions)
	}
}

func TestMigrate_ForeignKeysEnforced(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	_, err = database.Exec(`
		INSERT INTO events (game_id, day, type, body)
		VALUES ('missing', 0, 'day:changed', '{}')`)
	if err == nil {
		t.Error("expected foreign key violation for an unknown game")
	}
}

func TestMigrate_InsertAndQuery(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	if _, err := database.Exec(`INSERT INTO games (id, seed) VALUES ('g1', 42)`); err != nil {
		t.Fatal(err)
	}
	_, err = database.Exec(`
		INSERT INTO questions (game_id, id, text, status, created_date, resolution_date, predetermined_outcome)
		VALUES ('g1', 1, 'Will it ship?', 'active', '2025-10-01', '2025-10-04', 1)`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = database.Exec(`
		INSERT INTO bets (game_id, day, agent_id, question_id, action, side, amount, shares, price, fee)
		VALUES ('g1', 0, 'agent-001', 1, 'buy', 'YES', 100, 180, 0.55, 2)`)
	if err != nil {
		t.Fatal(err)
	}

	var count int
	row := database.QueryRow(`SELECT COUNT(*) FROM bets`)
	if err := row.Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 bet, got %d", count)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sim.db")
	database, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}
}
