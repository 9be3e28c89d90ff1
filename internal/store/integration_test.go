package store

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/mindtrap/maze-server/internal/questions"
)

func TestIntegrationWithRealDB(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "integration.db")

	db, err := NewSQLiteDB(path, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	// Seed the bank the way first boot does
	bank, err := questions.DefaultBank()
	if err != nil {
		t.Fatalf("Failed to load default bank: %v", err)
	}
	n, err := db.ImportQuestions(ctx, bank)
	if err != nil {
		t.Fatalf("Failed to import bank: %v", err)
	}
	if n != len(bank) {
		t.Errorf("Expected %d imported, got %d", len(bank), n)
	}

	// Two reads of the pool must agree on order
	first, err := db.ActiveQuestions(ctx)
	if err != nil {
		t.Fatalf("Failed to read pool: %v", err)
	}
	second, err := db.ActiveQuestions(ctx)
	if err != nil {
		t.Fatalf("Failed to read pool: %v", err)
	}
	if len(first) != len(bank) {
		t.Fatalf("Expected %d active questions, got %d", len(bank), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("Pool order differs at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}

	// Concurrent writers share the single connection
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &Player{Name: "player", RollNumber: strconv.Itoa(i), Seed: int32(i)}
			if err := db.CreatePlayer(ctx, p); err != nil {
				errs <- err
				return
			}
			errs <- db.RecordAnswer(ctx, p.SessionID, Answer{NodeID: "q1", Correct: i%2 == 0})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent write failed: %v", err)
		}
	}

	stats, err := db.PlayerStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Total != 20 || stats.AnswersTotal != 20 || stats.AnswersCorrect != 10 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.QuestionCount != len(bank) {
		t.Errorf("Expected %d active questions in stats, got %d", len(bank), stats.QuestionCount)
	}
}

func TestRetryStopsOnPlainErrors(t *testing.T) {
	db, _ := newTestDB(t)

	calls := 0
	boom := errors.New("constraint failed")
	err := db.withRetry(context.Background(), "test", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt for a non-busy error, got %d", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	db, _ := newTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.CreatePlayer(ctx, &Player{Name: "x", RollNumber: "y"}); err == nil {
		t.Fatal("Expected an error for a cancelled context")
	}
}
