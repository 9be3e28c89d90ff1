package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mindtrap/maze-server/internal/questions"
)

func TestMigrationIdempotency(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "migration_idempotency.db")

	db, err := NewSQLiteDB(path, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	// Run migrations three times; only the first applies anything
	for i := 0; i < 3; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Failed to migrate (pass %d): %v", i+1, err)
		}
	}

	// Test that we can still use the database normally
	q := &questions.Record{
		Text:         "What has keys but can't open locks?",
		Options:      []questions.Option{{Text: "Map"}, {Text: "Piano"}, {Text: "Keyboard"}},
		CorrectIndex: 1,
		Difficulty:   1,
		Category:     questions.BrainTeaser,
		Active:       true,
	}
	if err := db.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("Failed to save question after multiple migrations: %v", err)
	}

	retrieved, err := db.GetQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("Failed to get question after multiple migrations: %v", err)
	}
	if retrieved.Text != q.Text {
		t.Errorf("Data integrity issue after migrations: expected %q, got %q", q.Text, retrieved.Text)
	}
}

func TestMigrationSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	db, err := NewSQLiteDB(path, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if err := db.CreatePlayer(ctx, &Player{Name: "Ada", RollNumber: "R1", Seed: 5}); err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	db.Close()

	db, err = NewSQLiteDB(path, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate reopened database: %v", err)
	}

	players, err := db.ListPlayers(ctx)
	if err != nil {
		t.Fatalf("Failed to list players: %v", err)
	}
	if len(players) != 1 {
		t.Errorf("Expected 1 player after reopen, got %d", len(players))
	}
}
