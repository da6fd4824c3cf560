package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSerializableRetryConflictExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withSerializableRetry(func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	if !errors.Is(err, ErrSerializationFailure) {
		t.Fatalf("expected ErrSerializationFailure, got %v", err)
	}
	if calls != serializableAttempts {
		t.Fatalf("expected %d attempts, got %d", serializableAttempts, calls)
	}
}

func TestSerializableRetryDeadlockThenSuccess(t *testing.T) {
	calls := 0
	err := withSerializableRetry(func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("update charge: %w", &pgconn.PgError{Code: "40P01"})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestSerializableRetryOtherErrorReturnsImmediately(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	err := withSerializableRetry(func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryableTxError(t *testing.T) {
	if !retryableTxError(&pgconn.PgError{Code: "40001"}) {
		t.Fatal("serialization failure should be retryable")
	}
	if !retryableTxError(&pgconn.PgError{Code: "40P01"}) {
		t.Fatal("deadlock should be retryable")
	}
	if retryableTxError(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation should not be retryable")
	}
	if retryableTxError(errors.New("nope")) {
		t.Fatal("plain errors should not be retryable")
	}
}
