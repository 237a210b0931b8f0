// Package email provides email delivery via SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// Config holds email adapter configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
}

// Adapter delivers notifications over SMTP with STARTTLS.
type Adapter struct {
	config Config
	auth   smtp.Auth
}

// NewAdapter creates a new email adapter.
// Returns error if enabled but required config is missing.
func NewAdapter(config Config) (*Adapter, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email adapter: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email adapter: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email adapter configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
	)

	return &Adapter{config: config, auth: auth}, nil
}

// Channel returns the channel this adapter serves.
func (a *Adapter) Channel() domain.Channel {
	return domain.ChannelEmail
}

// AttemptDelivery sends one email and classifies the result.
func (a *Adapter) AttemptDelivery(ctx context.Context, record *domain.DeliveryRecord) (delivery.Outcome, error) {
	if !a.config.Enabled {
		slog.Warn("email adapter disabled, skipping send", "record_id", record.ID)
		return delivery.OutcomeDelivered, nil
	}

	if err := a.send(ctx, record.Target, record.Subject, record.Body); err != nil {
		return classify(err), err
	}
	return delivery.OutcomeDelivered, nil
}

// send delivers the message to a single recipient over SMTP.
func (a *Adapter) send(ctx context.Context, to, subject, body string) error {
	msg := a.buildMessage(to, subject, body)
	addr := fmt.Sprintf("%s:%d", a.config.SMTPHost, a.config.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: a.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, a.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if a.auth != nil {
		if err := client.Auth(a.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	from := extractEmail(a.config.FromAddress)
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// buildMessage constructs the email message with headers.
func (a *Adapter) buildMessage(to, subject, body string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", a.config.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

// classify maps an SMTP error to a delivery outcome. 4xx codes are
// temporary server conditions; 5xx recipient rejections do not recover
// on retry.
func classify(err error) delivery.Outcome {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return delivery.OutcomeTransientFailure
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return delivery.OutcomeTransientFailure
	}

	errStr := err.Error()

	if strings.Contains(errStr, "421") || // service not available
		strings.Contains(errStr, "450") || // mailbox unavailable
		strings.Contains(errStr, "451") || // local error
		strings.Contains(errStr, "452") { // insufficient storage
		return delivery.OutcomeTransientFailure
	}

	if strings.Contains(errStr, "550") || // no such user
		strings.Contains(errStr, "551") ||
		strings.Contains(errStr, "553") { // bad mailbox name
		return delivery.OutcomePermanentFailure
	}

	return delivery.OutcomeTransientFailure
}
