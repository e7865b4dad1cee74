package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Ledger is the database-backed dispatch ledger. The insert-or-nothing
// primary key write makes BeginCall atomic across dispatcher replicas,
// so a redelivered threat never dials twice even with two dispatchers
// running.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a ledger over the pool. The schema must already be
// initialized.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// BeginCall claims the single call attempt for a threat. It returns
// true for exactly one caller per threat ID.
func (l *Ledger) BeginCall(ctx context.Context, threatID string) (bool, error) {
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO dispatch_calls (threat_id) VALUES ($1)
		 ON CONFLICT (threat_id) DO NOTHING`,
		threatID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim call for threat %s: %w", threatID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordCallOutcome stores how the claimed call went.
func (l *Ledger) RecordCallOutcome(ctx context.Context, threatID, status, outcome string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE dispatch_calls
		 SET status = $2, outcome = $3, updated_at = now()
		 WHERE threat_id = $1`,
		threatID, status, outcome,
	)
	if err != nil {
		return fmt.Errorf("failed to record call outcome for threat %s: %w", threatID, err)
	}
	return nil
}

// CallRecord returns the stored call attempt, if any.
func (l *Ledger) CallRecord(ctx context.Context, threatID string) (status, outcome string, attempted bool, err error) {
	row := l.pool.QueryRow(ctx,
		`SELECT status, outcome FROM dispatch_calls WHERE threat_id = $1`,
		threatID,
	)
	if scanErr := row.Scan(&status, &outcome); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("failed to read call record for threat %s: %w", threatID, scanErr)
	}
	return status, outcome, true, nil
}

// Notified returns the recipients already messaged for a threat.
func (l *Ledger) Notified(ctx context.Context, threatID string) (map[string]struct{}, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT recipient FROM dispatch_notifications WHERE threat_id = $1`,
		threatID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for threat %s: %w", threatID, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var recipient string
		if err := rows.Scan(&recipient); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out[recipient] = struct{}{}
	}
	return out, rows.Err()
}

// RecordNotification marks a recipient as messaged for a threat.
// Duplicate records are ignored.
func (l *Ledger) RecordNotification(ctx context.Context, threatID, recipient string) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO dispatch_notifications (threat_id, recipient) VALUES ($1, $2)
		 ON CONFLICT (threat_id, recipient) DO NOTHING`,
		threatID, recipient,
	)
	if err != nil {
		return fmt.Errorf("failed to record notification for threat %s: %w", threatID, err)
	}
	return nil
}
