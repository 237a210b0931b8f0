// Package push provides push notification delivery via an HTTP provider.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Config holds push adapter configuration.
type Config struct {
	Enabled     bool
	ProviderURL string
	APIKey      string
	RateLimit   float64
	Timeout     time.Duration
}

// Adapter delivers notifications through a push provider. The record ID
// doubles as the collapse key so a provider-side retry replaces rather
// than duplicates the notification.
type Adapter struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAdapter creates a new push adapter.
// Returns error if enabled but required config is missing.
func NewAdapter(config Config) (*Adapter, error) {
	if config.Enabled {
		if config.ProviderURL == "" {
			return nil, errors.New("push adapter: provider URL is required when enabled")
		}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	slog.Info("push adapter configured",
		"enabled", config.Enabled,
		"rate_limit", config.RateLimit,
	)

	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

// Channel returns the channel this adapter serves.
func (a *Adapter) Channel() domain.Channel {
	return domain.ChannelPush
}

// pushRequest is the provider request body.
type pushRequest struct {
	Token       string `json:"token"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	CollapseKey string `json:"collapse_key"`
	Priority    string `json:"priority"`
}

// AttemptDelivery sends one push notification and classifies the
// provider response. An unregistered device token is a permanent
// failure; 429 is throttled and backs off; 5xx is transient.
func (a *Adapter) AttemptDelivery(ctx context.Context, record *domain.DeliveryRecord) (delivery.Outcome, error) {
	if !a.config.Enabled {
		slog.Debug("push adapter disabled, skipping", "record_id", record.ID)
		return delivery.OutcomeDelivered, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return delivery.OutcomeTransientFailure, fmt.Errorf("rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(pushRequest{
		Token:       record.Target,
		Title:       record.Subject,
		Body:        record.Body,
		CollapseKey: record.ID,
		Priority:    string(record.Priority),
	})
	if err != nil {
		return delivery.OutcomePermanentFailure, fmt.Errorf("marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.ProviderURL, bytes.NewReader(payload))
	if err != nil {
		return delivery.OutcomePermanentFailure, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return delivery.OutcomeTransientFailure, fmt.Errorf("send push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return delivery.OutcomeDelivered, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	respErr := fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return delivery.OutcomeThrottled, respErr
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		// Token no longer registered.
		return delivery.OutcomePermanentFailure, respErr
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return delivery.OutcomePermanentFailure, respErr
	default:
		return delivery.OutcomeTransientFailure, respErr
	}
}
