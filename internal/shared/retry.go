// Package shared holds helpers used by more than one store or client.
package shared

import (
	"context"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy bounds a retry loop with exponential backoff. Retryable picks
// the errors worth another attempt; nil retries nothing.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Retryable func(error) bool
}

// SQLiteWritePolicy retries busy/locked writes at 100ms, 200ms, 400ms.
var SQLiteWritePolicy = RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond, Retryable: IsRetryableSQLite}

// IsRetryableSQLite reports whether err means another connection holds the
// database (SQLITE_BUSY or SQLITE_LOCKED, including extended codes).
func IsRetryableSQLite(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	// database/sql can flatten driver errors into text.
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Retry runs op until it succeeds, returns an error the policy does not
// retry, or the attempts are used up. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil || p.Retryable == nil || !p.Retryable(err) || i == attempts-1 {
			return err
		}

		delay := p.BaseDelay * time.Duration(1<<i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
