// Package preferences provides read access to per-user subscription criteria.
// The preference store is owned by the external profile service; this
// pipeline only reads it and tolerates staleness between match passes.
package preferences

import (
	"context"
	"fmt"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Repository defines the preference read boundary.
type Repository interface {
	// GetActivePreferences returns a page of active preferences after
	// the cursor (last user ID of the previous page; empty starts over).
	// The returned cursor is empty when no more pages remain.
	GetActivePreferences(ctx context.Context, cursor string, limit int) ([]domain.UserPreference, string, error)
}

// Snapshot reads all active preferences into an immutable slice for one
// match pass. Preferences changing mid-read are acceptable; the store is
// eventually consistent.
func Snapshot(ctx context.Context, repo Repository, pageSize int) ([]domain.UserPreference, error) {
	var all []domain.UserPreference
	cursor := ""
	for {
		page, next, err := repo.GetActivePreferences(ctx, cursor, pageSize)
		if err != nil {
			return nil, fmt.Errorf("read preferences: %w", err)
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
