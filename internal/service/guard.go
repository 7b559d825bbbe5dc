package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pdvsystem/backend/internal/store"
)

// Guard runs a unit of work in a single transaction. Retryable storage
// failures restart the whole unit, so fn must build its results from scratch
// on every call.
type Guard struct {
	tx          store.Transactor
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

func NewGuard(tx store.Transactor, maxAttempts int, backoff time.Duration, logger zerolog.Logger) *Guard {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	return &Guard{tx: tx, maxAttempts: maxAttempts, backoff: backoff, log: logger}
}

func (g *Guard) Run(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		err = g.tx.WithinTx(ctx, fn)
		if err == nil || !store.IsRetryable(err) {
			return err
		}
		if attempt == g.maxAttempts {
			break
		}

		g.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("retrying transaction")
		timer := time.NewTimer(g.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, g.maxAttempts, err)
}
