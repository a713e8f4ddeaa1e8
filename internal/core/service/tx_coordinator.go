package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rl1809/record-store/internal/port"
)

type TxCoordinator struct {
	beginner port.TxBeginner
	log      zerolog.Logger
}

func NewTxCoordinator(beginner port.TxBeginner, log zerolog.Logger) *TxCoordinator {
	return &TxCoordinator{
		beginner: beginner,
		log:      log.With().Str("component", "tx").Logger(),
	}
}

// RunInTransaction runs work inside one transaction. The transaction commits when work
// returns nil and aborts otherwise, in which case work's error is returned unchanged.
// The session is released exactly once on every path, including commit or abort
// failures and panics.
func RunInTransaction[T any](ctx context.Context, c *TxCoordinator, work func(ctx context.Context, tx port.Tx) (T, error)) (result T, err error) {
	var zero T

	tx, err := c.beginner.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("begin transaction: %w", err)
	}

	finished := false
	defer func() {
		if !finished {
			// work panicked
			if abortErr := tx.Abort(ctx); abortErr != nil {
				c.log.Error().Err(abortErr).Msg("abort after panic failed")
			}
		}
		if endErr := tx.End(); endErr != nil {
			c.log.Warn().Err(endErr).Msg("end session failed")
		}
	}()

	result, err = work(ctx, tx)
	finished = true
	if err != nil {
		if abortErr := tx.Abort(ctx); abortErr != nil {
			c.log.Error().Err(abortErr).AnErr("cause", err).Msg("abort transaction failed")
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("commit transaction: %w", err)
	}

	return result, nil
}
