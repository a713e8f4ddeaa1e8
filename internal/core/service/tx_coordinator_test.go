package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rl1809/record-store/internal/port"
)

func TestRunInTransaction_Commit(t *testing.T) {
	store := newMockStore(testRecord("r1", 5))
	c := NewTxCoordinator(store, zerolog.Nop())

	got, err := RunInTransaction(context.Background(), c, func(ctx context.Context, tx port.Tx) (int, error) {
		return 42, tx.Records().UpdateQuantity(ctx, testRecord("r1", 5), 4)
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected result 42, got %d", got)
	}
	if q := store.record("r1").Qty; q != 4 {
		t.Errorf("expected committed stock 4, got %d", q)
	}

	begins, commits, aborts, ends := store.counts()
	if begins != 1 || commits != 1 || aborts != 0 || ends != 1 {
		t.Errorf("unexpected lifecycle: begins=%d commits=%d aborts=%d ends=%d", begins, commits, aborts, ends)
	}
}

func TestRunInTransaction_WorkErrorAborts(t *testing.T) {
	store := newMockStore(testRecord("r1", 5))
	c := NewTxCoordinator(store, zerolog.Nop())
	workErr := &InsufficientStockError{RecordID: "r1", Album: "x", Available: 0, Requested: 1}

	_, err := RunInTransaction(context.Background(), c, func(ctx context.Context, tx port.Tx) (struct{}, error) {
		if err := tx.Records().UpdateQuantity(ctx, testRecord("r1", 5), 0); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, workErr
	})
	if err != workErr {
		t.Fatalf("expected the work error unchanged, got: %v", err)
	}
	if q := store.record("r1").Qty; q != 5 {
		t.Errorf("expected stock 5 after abort, got %d", q)
	}

	_, commits, aborts, ends := store.counts()
	if commits != 0 || aborts != 1 || ends != 1 {
		t.Errorf("unexpected lifecycle: commits=%d aborts=%d ends=%d", commits, aborts, ends)
	}
}

func TestRunInTransaction_AbortFailureKeepsWorkError(t *testing.T) {
	store := newMockStore()
	store.abortErr = errors.New("connection lost")
	c := NewTxCoordinator(store, zerolog.Nop())

	_, err := RunInTransaction(context.Background(), c, func(ctx context.Context, tx port.Tx) (int, error) {
		return 0, ErrRecordNotFound
	})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", err)
	}

	_, _, _, ends := store.counts()
	if ends != 1 {
		t.Errorf("expected session released once, got %d", ends)
	}
}

func TestRunInTransaction_CommitFailure(t *testing.T) {
	store := newMockStore(testRecord("r1", 5))
	commitErr := errors.New("deadlock found")
	store.commitErr = commitErr
	c := NewTxCoordinator(store, zerolog.Nop())

	_, err := RunInTransaction(context.Background(), c, func(ctx context.Context, tx port.Tx) (int, error) {
		return 1, tx.Records().UpdateQuantity(ctx, testRecord("r1", 5), 4)
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected wrapped commit error, got: %v", err)
	}
	if q := store.record("r1").Qty; q != 5 {
		t.Errorf("expected stock 5, got %d", q)
	}

	_, _, _, ends := store.counts()
	if ends != 1 {
		t.Errorf("expected session released once, got %d", ends)
	}
}

func TestRunInTransaction_BeginFailure(t *testing.T) {
	store := newMockStore()
	beginErr := errors.New("too many connections")
	store.beginErr = beginErr
	c := NewTxCoordinator(store, zerolog.Nop())

	called := false
	_, err := RunInTransaction(context.Background(), c, func(ctx context.Context, tx port.Tx) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, beginErr) {
		t.Fatalf("expected begin error, got: %v", err)
	}
	if called {
		t.Error("work must not run without a transaction")
	}
}

func TestRunInTransaction_PanicAbortsAndReleases(t *testing.T) {
	store := newMockStore(testRecord("r1", 5))
	c := NewTxCoordinator(store, zerolog.Nop())

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		RunInTransaction(context.Background(), c, func(ctx context.Context, tx port.Tx) (int, error) {
			tx.Records().UpdateQuantity(ctx, testRecord("r1", 5), 1)
			panic("boom")
		})
	}()

	if q := store.record("r1").Qty; q != 5 {
		t.Errorf("expected stock 5, got %d", q)
	}
	_, commits, aborts, ends := store.counts()
	if commits != 0 || aborts != 1 || ends != 1 {
		t.Errorf("unexpected lifecycle: commits=%d aborts=%d ends=%d", commits, aborts, ends)
	}

	// the store lock was released, so a new transaction can start
	if _, err := RunInTransaction(context.Background(), c, func(ctx context.Context, tx port.Tx) (int, error) {
		return 0, nil
	}); err != nil {
		t.Fatalf("expected next transaction to succeed, got: %v", err)
	}
}
