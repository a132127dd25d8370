package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxAttempts = 3

// incrementSQL bumps the counter for (kind, period), creating it at 1 on
// first use. Insert-or-update in a single statement: there is deliberately
// no separate existence check, that check-then-act window is the race this
// package exists to close.
const incrementSQL = `
	INSERT INTO sequence_counters (kind, period, last_value)
	VALUES ($1, $2, 1)
	ON CONFLICT (kind, period)
	DO UPDATE SET last_value = sequence_counters.last_value + 1
	RETURNING last_value
`

type PgGenerator struct {
	pool *pgxpool.Pool
}

func NewPgGenerator(pool *pgxpool.Pool) *PgGenerator {
	return &PgGenerator{pool: pool}
}

func (g *PgGenerator) Next(ctx context.Context, kind Kind, period string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var ordinal int64
		err := g.pool.QueryRow(ctx, incrementSQL, kind, period).Scan(&ordinal)
		if err == nil {
			return Format(kind, period, ordinal), nil
		}
		if !retryable(err) {
			return "", fmt.Errorf("increment %s/%s counter: %w", kind, period, err)
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrContention, lastErr)
}

// retryable reports whether the error is a transient serialization or
// deadlock failure worth another attempt.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
