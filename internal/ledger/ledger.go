// Package ledger provides the durable dedup store for gateway webhook events.
// Uniqueness is enforced by the database primary key, not by in-process state,
// so restarts and concurrent deliveries cannot replay an event.
package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Ledger struct {
	Pool *pgxpool.Pool
}

// TryInsert records an event id and reports whether this delivery is the
// first. A conflicting insert affects zero rows and is the duplicate signal.
func (l Ledger) TryInsert(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := l.Pool.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Seen reports whether an event id has already been recorded.
func (l Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := l.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`,
		eventID).Scan(&exists)
	return exists, err
}

// PurgeOlderThan deletes entries past the retention window. Providers stop
// retrying long before the window ends, so dropped ids cannot resurface.
func (l Ledger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := l.Pool.Exec(ctx,
		`DELETE FROM webhook_events WHERE created_at < now() - $1::interval`,
		retention.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
