// Package postgres provides PostgreSQL implementation of the ingest repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Repository implements ingest.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertEvent stores an event. The table is append-only: a conflict on
// (source, source_id, version) means the event was already ingested and
// the insert is a no-op.
func (r *Repository) InsertEvent(ctx context.Context, event *domain.OpportunityEvent) (bool, error) {
	query := `
		INSERT INTO opportunity_events (source, source_id, version, kind, title, skills, location, deadline, raw_payload, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source, source_id, version) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query,
		event.Key.Source,
		event.Key.ID,
		event.Key.Version,
		event.Kind,
		event.Title,
		event.Skills,
		event.Location,
		event.Deadline,
		event.RawPayload,
		event.IngestedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// DeleteEventsBefore removes events ingested before the cutoff.
func (r *Repository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM opportunity_events WHERE ingested_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return result.RowsAffected(), nil
}
