// Package cockroach implements the relational stores of the chat service on
// CockroachDB: conversations with their participants, user blocks and notifications.
package cockroach

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"travelchat-backend/internal/domain"
	"travelchat-backend/pkg/metrics"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables and indexes this package needs
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply cockroach schema: %w", err)
	}
	return nil
}

// Postgres error codes CockroachDB reports for contention
const (
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
)

// classify maps contention errors onto domain.ErrConflict so callers can retry
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeUniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		}
	}
	return err
}

func observe(operation string, start time.Time, err error) {
	metrics.RecordStoreQuery("cockroach", operation, start, err)
}
