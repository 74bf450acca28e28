package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// relayLockKey names the advisory lock held by the relay that is currently
// publishing. Other relays find it taken and wait for the next tick, so rows
// of one aggregate are never published by two relays out of order.
const relayLockKey int64 = 0x6576656e74 // "event"

const (
	claimLeaderSQL = `SELECT pg_try_advisory_xact_lock($1)`

	claimEntriesSQL = `
		SELECT id, event_type, aggregate_type, aggregate_id, payload, created_at, attempts
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE`
)

// PgOutbox reads event_logs rows written by the booking service. Several
// relays may run side by side; only the one holding the advisory lock claims
// rows at a time, the rest stand by.
type PgOutbox struct {
	pool *pgxpool.Pool
}

func NewPgOutbox(pool *pgxpool.Pool) *PgOutbox {
	return &PgOutbox{pool: pool}
}

func (o *PgOutbox) Claim(ctx context.Context, limit int, publish func(Entry) error) (int, error) {
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	var leader bool
	if err := tx.QueryRow(ctx, claimLeaderSQL, relayLockKey).Scan(&leader); err != nil {
		return 0, fmt.Errorf("acquire relay lock: %w", err)
	}
	if !leader {
		return 0, nil
	}

	rows, err := tx.Query(ctx, claimEntriesSQL, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.EventType, &e.AggregateType, &e.AggregateID, &e.Payload, &e.CreatedAt, &e.Attempts)
		return e, err
	})
	if err != nil {
		return 0, fmt.Errorf("scan outbox: %w", err)
	}

	published := 0
	for _, e := range entries {
		if perr := publish(e); perr != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE event_logs SET attempts = attempts + 1, last_error = $2 WHERE id = $1
			`, e.ID, perr.Error()); err != nil {
				return 0, fmt.Errorf("record publish failure: %w", err)
			}
			break
		}
		if _, err := tx.Exec(ctx, `UPDATE event_logs SET published_at = now() WHERE id = $1`, e.ID); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return published, nil
}
