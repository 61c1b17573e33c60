package database

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

const (
	backoffBase = 50 * time.Millisecond
	backoffCap  = 2 * time.Second
)

// busyMarkers are the substrings SQLite drivers (mattn/go-sqlite3 and
// modernc.org/sqlite) put in BUSY and LOCKED errors.
var busyMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"(5)",
	"(6)",
}

// IsBusyError checks if the error is a SQLite BUSY or LOCKED error.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range busyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTransientError reports whether err is worth retrying: a SQLite BUSY or
// LOCKED error, or an error that reports itself as temporary.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return true
	}
	return IsBusyError(err)
}

// RetryWithBackoff runs fn until it succeeds, fails with a non-transient
// error, or has been retried maxRetries times. fn is re-run from scratch on
// every attempt. Waiting between attempts stops early when ctx is done.
func RetryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	_, err := retry(ctx, maxRetries, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func retry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil || !IsTransientError(err) || attempt >= maxRetries {
			return v, err
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(backoffDelay(attempt)):
		}
	}
}

// backoffDelay doubles per attempt, adds up to 25% jitter and caps at
// backoffCap.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase << attempt
	if delay <= 0 || delay > backoffCap {
		return backoffCap
	}
	delay += time.Duration(rand.Int63n(int64(delay/4) + 1))
	return min(delay, backoffCap)
}
