// Package postgres provides PostgreSQL implementation of the delivery
// record repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// fetchLease keeps a fetched record out of subsequent polls while it
// sits on an in-memory queue. The compare-and-set claim is the actual
// concurrency guard; the lease only reduces duplicate offers.
const fetchLease = 30 * time.Second

const recordColumns = `
	id, intent_user_id, event_source, event_id, event_version,
	user_id, channel, target, subject, body, priority,
	status, attempts, max_attempts, max_per_window, window_seconds,
	next_attempt_at, last_error, created_at, updated_at, delivered_at
`

// Repository implements delivery.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateRecords persists new delivery records in one transaction.
func (r *Repository) CreateRecords(ctx context.Context, records []*domain.DeliveryRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO delivery_records (
			id, intent_user_id, event_source, event_id, event_version,
			user_id, channel, target, subject, body, priority,
			status, attempts, max_attempts, max_per_window, window_seconds,
			next_attempt_at, last_error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	for _, rec := range records {
		_, err := tx.Exec(ctx, query,
			rec.ID,
			rec.IntentKey.UserID,
			rec.IntentKey.Event.Source,
			rec.IntentKey.Event.ID,
			rec.IntentKey.Event.Version,
			rec.UserID,
			rec.Channel,
			rec.Target,
			rec.Subject,
			rec.Body,
			rec.Priority,
			rec.Status,
			rec.Attempts,
			rec.MaxAttempts,
			rec.MaxPerWindow,
			int64(rec.WindowDuration/time.Second),
			rec.NextAttemptAt,
			rec.LastError,
			rec.CreatedAt,
			rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert delivery record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by ID.
func (r *Repository) GetRecord(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrRecordNotFound
		}
		return nil, fmt.Errorf("get delivery record: %w", err)
	}
	return rec, nil
}

// MarkDispatched claims a record via compare-and-set on its status and
// increments the attempt counter.
func (r *Repository) MarkDispatched(ctx context.Context, id string, expected domain.DeliveryStatus) (*domain.DeliveryRecord, error) {
	query := `
		UPDATE delivery_records
		SET status = 'dispatched', attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + recordColumns
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id, expected))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMissing(ctx, id)
		}
		return nil, fmt.Errorf("mark dispatched: %w", err)
	}
	return rec, nil
}

// MarkDelivered records terminal success.
func (r *Repository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE delivery_records
		SET status = 'delivered', delivered_at = $2, last_error = '', updated_at = NOW()
		WHERE id = $1 AND status = 'dispatched'
	`
	return r.execTransition(ctx, query, id, at)
}

// MarkRetryScheduled schedules a retry after a transient failure.
func (r *Repository) MarkRetryScheduled(ctx context.Context, id string, nextAttempt time.Time, lastError string) error {
	query := `
		UPDATE delivery_records
		SET status = 'retry_scheduled', next_attempt_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'dispatched'
	`
	return r.execTransition(ctx, query, id, nextAttempt, lastError)
}

// MarkFailedPermanent records terminal failure.
func (r *Repository) MarkFailedPermanent(ctx context.Context, id string, lastError string) error {
	query := `
		UPDATE delivery_records
		SET status = 'failed_permanent', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('dispatched', 'retry_scheduled')
	`
	return r.execTransition(ctx, query, id, lastError)
}

// Requeue returns a record to a dispatchable state at the given time.
func (r *Repository) Requeue(ctx context.Context, id string, status domain.DeliveryStatus, at time.Time) error {
	query := `
		UPDATE delivery_records
		SET status = $2, next_attempt_at = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'deferred')
	`
	return r.execTransition(ctx, query, id, status, at)
}

// FetchDue returns due non-terminal records ordered by creation time.
// Fetched records get a short lease on next_attempt_at so overlapping
// polls do not re-offer them; SKIP LOCKED keeps pollers from blocking
// each other.
func (r *Repository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		SELECT ` + recordColumns + `
		FROM delivery_records
		WHERE status IN ('pending', 'deferred', 'retry_scheduled')
		  AND next_attempt_at <= $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due records: %w", err)
	}

	records := make([]*domain.DeliveryRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due records: %w", err)
	}

	if len(records) > 0 {
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		_, err = tx.Exec(ctx,
			`UPDATE delivery_records SET next_attempt_at = $1 WHERE id = ANY($2)`,
			now.Add(fetchLease), ids,
		)
		if err != nil {
			return nil, fmt.Errorf("lease due records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return records, nil
}

// ListRecords returns records filtered by status and optionally user.
func (r *Repository) ListRecords(ctx context.Context, status domain.DeliveryStatus, userID string, limit int) ([]*domain.DeliveryRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM delivery_records
		WHERE status = $1 AND ($2 = '' OR user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, status, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivery records: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.DeliveryRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetQueueStats returns record counts by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*delivery.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM delivery_records GROUP BY status`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	defer rows.Close()

	stats := &delivery.QueueStats{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch domain.DeliveryStatus(status) {
		case domain.DeliveryStatusPending:
			stats.Pending = count
		case domain.DeliveryStatusDeferred:
			stats.Deferred = count
		case domain.DeliveryStatusDispatched:
			stats.Dispatched = count
		case domain.DeliveryStatusDelivered:
			stats.Delivered = count
		case domain.DeliveryStatusRetryScheduled:
			stats.RetryScheduled = count
		case domain.DeliveryStatusFailedPermanent:
			stats.FailedPermanent = count
		}
	}
	return stats, rows.Err()
}

// execTransition runs a guarded status update and maps a zero row count
// to the right sentinel.
func (r *Repository) execTransition(ctx context.Context, query, id string, args ...any) error {
	allArgs := append([]any{id}, args...)
	result, err := r.db.Exec(ctx, query, allArgs...)
	if err != nil {
		return fmt.Errorf("update delivery record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.classifyMissing(ctx, id)
	}
	return nil
}

// classifyMissing distinguishes a missing record from a concurrent
// status change.
func (r *Repository) classifyMissing(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM delivery_records WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check delivery record: %w", err)
	}
	if !exists {
		return delivery.ErrRecordNotFound
	}
	return delivery.ErrStaleStatus
}

// scanRecord scans a delivery record from a row.
func scanRecord(row pgx.Row) (*domain.DeliveryRecord, error) {
	var (
		rec           domain.DeliveryRecord
		windowSeconds int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.IntentKey.UserID,
		&rec.IntentKey.Event.Source,
		&rec.IntentKey.Event.ID,
		&rec.IntentKey.Event.Version,
		&rec.UserID,
		&rec.Channel,
		&rec.Target,
		&rec.Subject,
		&rec.Body,
		&rec.Priority,
		&rec.Status,
		&rec.Attempts,
		&rec.MaxAttempts,
		&rec.MaxPerWindow,
		&windowSeconds,
		&rec.NextAttemptAt,
		&rec.LastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	rec.WindowDuration = time.Duration(windowSeconds) * time.Second
	return &rec, nil
}
