// Package sms provides SMS delivery via an HTTP gateway provider.
package sms

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

// Config holds SMS adapter configuration.
type Config struct {
	Enabled     bool
	ProviderURL string
	APIKey      string
	RateLimit   float64 // requests per second to the provider; 0 disables throttling
	Timeout     time.Duration
}

// Adapter delivers notifications through an SMS gateway. The record ID
// is passed as the provider client reference so the provider can
// deduplicate repeated sends of the same record.
type Adapter struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAdapter creates a new SMS adapter.
// Returns error if enabled but required config is missing.
func NewAdapter(config Config) (*Adapter, error) {
	if config.Enabled {
		if config.ProviderURL == "" {
			return nil, errors.New("sms adapter: provider URL is required when enabled")
		}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	slog.Info("sms adapter configured",
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
	return domain.ChannelSMS
}

// smsRequest is the gateway request body.
type smsRequest struct {
	To        string `json:"to"`
	Message   string `json:"message"`
	ClientRef string `json:"client_ref"`
}

// AttemptDelivery sends one SMS and classifies the provider response.
func (a *Adapter) AttemptDelivery(ctx context.Context, record *domain.DeliveryRecord) (delivery.Outcome, error) {
	if !a.config.Enabled {
		slog.Debug("sms adapter disabled, skipping", "record_id", record.ID)
		return delivery.OutcomeDelivered, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return delivery.OutcomeTransientFailure, fmt.Errorf("rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(smsRequest{
		To:        record.Target,
		Message:   record.Subject + "\n" + record.Body,
		ClientRef: record.ID,
	})
	if err != nil {
		return delivery.OutcomePermanentFailure, fmt.Errorf("marshal sms request: %w", err)
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
		return delivery.OutcomeTransientFailure, fmt.Errorf("send sms: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return classifyStatus(resp)
}

// classifyStatus maps a provider HTTP status to a delivery outcome.
func classifyStatus(resp *http.Response) (delivery.Outcome, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return delivery.OutcomeDelivered, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err := fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return delivery.OutcomeThrottled, err
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return delivery.OutcomePermanentFailure, err
	default:
		return delivery.OutcomeTransientFailure, err
	}
}
