//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

var eventSeq atomic.Int64

// uniqueEventID returns an event ID unused by previous tests so dedup
// state never bleeds between tests.
func uniqueEventID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), eventSeq.Add(1))
}

// seedPreference inserts an active preference directly into the store.
func seedPreference(t *testing.T, pref domain.UserPreference) {
	t.Helper()

	channels, err := json.Marshal(pref.Channels)
	require.NoError(t, err)

	kinds := make([]string, 0, len(pref.Kinds))
	for _, k := range pref.Kinds {
		kinds = append(kinds, string(k))
	}

	_, err = testDB.Exec(context.Background(), `
		INSERT INTO user_preferences
			(user_id, skills, location, kinds, channels, max_per_window, window_seconds, lead_time_seconds, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			skills = EXCLUDED.skills,
			location = EXCLUDED.location,
			kinds = EXCLUDED.kinds,
			channels = EXCLUDED.channels,
			max_per_window = EXCLUDED.max_per_window,
			window_seconds = EXCLUDED.window_seconds,
			lead_time_seconds = EXCLUDED.lead_time_seconds,
			active = TRUE,
			updated_at = NOW()
	`,
		pref.UserID,
		pref.Skills,
		pref.Location,
		kinds,
		channels,
		pref.MaxPerWindow,
		int64(pref.WindowDuration.Seconds()),
		int64(pref.LeadTime.Seconds()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = testDB.Exec(context.Background(),
			`UPDATE user_preferences SET active = FALSE WHERE user_id = $1`, pref.UserID)
	})
}

// postJSON posts a JSON body and decodes the enveloped response data.
func postJSON(t *testing.T, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(testServer.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		envelope := struct {
			Data interface{} `json:"data"`
		}{Data: out}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	}
	return resp
}

// getJSON fetches a path and decodes the enveloped response data.
func getJSON(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()

	resp, err := http.Get(testServer.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		envelope := struct {
			Data interface{} `json:"data"`
		}{Data: out}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	}
	return resp
}

// recordStatus reads the current status of a delivery record for a user
// and channel straight from the store.
func recordStatuses(t *testing.T, userID string) map[string]string {
	t.Helper()

	rows, err := testDB.Query(context.Background(),
		`SELECT channel, status FROM delivery_records WHERE user_id = $1`, userID)
	require.NoError(t, err)
	defer rows.Close()

	statuses := make(map[string]string)
	for rows.Next() {
		var channel, status string
		require.NoError(t, rows.Scan(&channel, &status))
		statuses[channel] = status
	}
	require.NoError(t, rows.Err())
	return statuses
}

// statusCounts tallies delivery record statuses for a user across all
// channels, for cases where one channel carries multiple records.
func statusCounts(t *testing.T, userID string) map[string]int {
	t.Helper()

	rows, err := testDB.Query(context.Background(),
		`SELECT status FROM delivery_records WHERE user_id = $1`, userID)
	require.NoError(t, err)
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		require.NoError(t, rows.Scan(&status))
		counts[status]++
	}
	require.NoError(t, rows.Err())
	return counts
}
