// Package postgres provides PostgreSQL implementation of the preference
// read boundary.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Repository implements preferences.Repository using PostgreSQL.
// The preferences table is written by the profile service; all access
// here is read-only.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetActivePreferences returns a page of active preferences ordered by
// user ID, using keyset pagination on the cursor.
func (r *Repository) GetActivePreferences(ctx context.Context, cursor string, limit int) ([]domain.UserPreference, string, error) {
	query := `
		SELECT user_id, skills, location, kinds, channels,
		       max_per_window, window_seconds, lead_time_seconds, active, updated_at
		FROM user_preferences
		WHERE active = TRUE AND user_id > $1
		ORDER BY user_id
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	prefs := make([]domain.UserPreference, 0, limit)
	for rows.Next() {
		var (
			pref            domain.UserPreference
			kinds           []string
			channelsJSON    []byte
			windowSeconds   int64
			leadTimeSeconds int64
		)
		err := rows.Scan(
			&pref.UserID,
			&pref.Skills,
			&pref.Location,
			&kinds,
			&channelsJSON,
			&pref.MaxPerWindow,
			&windowSeconds,
			&leadTimeSeconds,
			&pref.Active,
			&pref.UpdatedAt,
		)
		if err != nil {
			return nil, "", fmt.Errorf("scan preference: %w", err)
		}

		for _, k := range kinds {
			pref.Kinds = append(pref.Kinds, domain.EventKind(k))
		}
		if len(channelsJSON) > 0 {
			if err := json.Unmarshal(channelsJSON, &pref.Channels); err != nil {
				return nil, "", fmt.Errorf("decode channels for user %s: %w", pref.UserID, err)
			}
		}
		pref.WindowDuration = time.Duration(windowSeconds) * time.Second
		pref.LeadTime = time.Duration(leadTimeSeconds) * time.Second

		prefs = append(prefs, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate preferences: %w", err)
	}

	next := ""
	if len(prefs) == limit {
		next = prefs[len(prefs)-1].UserID
	}
	return prefs, next, nil
}
