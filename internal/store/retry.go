package store

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy bounds how often a write is retried while the database is busy.
type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
}

// DefaultRetryPolicy retries a busy write five times starting at 10ms.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Base: 10 * time.Millisecond}

func (p RetryPolicy) backoff() retry.Backoff {
	return retry.WithMaxRetries(p.Attempts, retry.NewExponential(p.Base))
}

// withRetry runs fn, retrying only when SQLite reports the database as busy
// or locked. Any other error is returned at once.
func (s *SQLiteDB) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, s.retry.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !isBusy(err) {
			return err
		}
		s.logger.Printf("busy_retry op=%s attempt=%d error=%q", op, attempt, err)
		return retry.RetryableError(err)
	})
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
