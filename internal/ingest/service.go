package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pkg/ctxlog"
)

// RecordStatus represents the ingestion outcome for a single source record.
type RecordStatus string

// Record statuses.
const (
	RecordStatusAccepted  RecordStatus = "accepted"
	RecordStatusDuplicate RecordStatus = "duplicate"
	RecordStatusRejected  RecordStatus = "rejected"
)

// SourceRecord is a raw inbound record from an external source.
type SourceRecord struct {
	Source    string          `json:"source" validate:"required"`
	ID        string          `json:"id" validate:"required"`
	Version   int             `json:"version" validate:"required,min=1"`
	Kind      string          `json:"kind" validate:"required"`
	Title     string          `json:"title"`
	Skills    []string        `json:"skills"`
	Location  string          `json:"location"`
	Deadline  *time.Time      `json:"deadline,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// FieldError describes a single field rejection reason.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// RecordResult is the per-record outcome of a batch ingestion.
type RecordResult struct {
	Source  string       `json:"source"`
	ID      string       `json:"id"`
	Version int          `json:"version"`
	Status  RecordStatus `json:"status"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// BatchResult summarizes a batch ingestion.
type BatchResult struct {
	Accepted   int            `json:"accepted"`
	Duplicates int            `json:"duplicates"`
	Rejected   int            `json:"rejected"`
	Records    []RecordResult `json:"records"`
}

// Sink receives canonical events accepted by ingestion.
type Sink interface {
	Submit(ctx context.Context, events []*domain.OpportunityEvent) error
}

// Service validates, normalizes and deduplicates inbound source records.
type Service struct {
	repo      Repository
	sink      Sink
	validator *validator.Validate
	folder    cases.Caser
}

// NewService creates a new ingestion service.
func NewService(repo Repository, sink Sink) *Service {
	return &Service{
		repo:      repo,
		sink:      sink,
		validator: validator.New(),
		folder:    cases.Fold(),
	}
}

// IngestBatch processes a batch of source records with partial-failure
// semantics: invalid records are rejected with field details, valid ones
// proceed. Records already seen at the same (source, id, version) are
// dropped silently as duplicates.
func (s *Service) IngestBatch(ctx context.Context, records []SourceRecord) (*BatchResult, error) {
	result := &BatchResult{Records: make([]RecordResult, 0, len(records))}
	accepted := make([]*domain.OpportunityEvent, 0, len(records))

	for _, rec := range records {
		rr := RecordResult{Source: rec.Source, ID: rec.ID, Version: rec.Version}

		if fieldErrs := s.validate(rec); len(fieldErrs) > 0 {
			rr.Status = RecordStatusRejected
			rr.Errors = fieldErrs
			result.Rejected++
			result.Records = append(result.Records, rr)
			recordIngested("rejected")
			continue
		}

		event := s.normalize(rec)

		inserted, err := s.repo.InsertEvent(ctx, event)
		if err != nil {
			return nil, err
		}
		if !inserted {
			rr.Status = RecordStatusDuplicate
			result.Duplicates++
			result.Records = append(result.Records, rr)
			recordIngested("duplicate")
			continue
		}

		rr.Status = RecordStatusAccepted
		result.Accepted++
		result.Records = append(result.Records, rr)
		recordIngested("accepted")
		accepted = append(accepted, event)
	}

	if len(accepted) > 0 && s.sink != nil {
		if err := s.sink.Submit(ctx, accepted); err != nil {
			return nil, err
		}
	}

	ctxlog.FromContext(ctx).Info("batch ingested",
		"total", len(records),
		"accepted", result.Accepted,
		"duplicates", result.Duplicates,
		"rejected", result.Rejected,
	)

	return result, nil
}

// validate applies struct tags plus kind-specific rules.
func (s *Service) validate(rec SourceRecord) []FieldError {
	var fieldErrs []FieldError

	if err := s.validator.Struct(rec); err != nil {
		if validationErrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrs {
				fieldErrs = append(fieldErrs, FieldError{
					Field:  strings.ToLower(e.Field()),
					Reason: e.Tag(),
				})
			}
		} else {
			fieldErrs = append(fieldErrs, FieldError{Field: "record", Reason: err.Error()})
		}
		return fieldErrs
	}

	kind := domain.EventKind(rec.Kind)
	if !kind.IsValid() {
		fieldErrs = append(fieldErrs, FieldError{Field: "kind", Reason: "unknown kind"})
		return fieldErrs
	}

	if kind == domain.EventKindCertificationDeadline && rec.Deadline == nil {
		fieldErrs = append(fieldErrs, FieldError{Field: "deadline", Reason: "required for certification deadlines"})
	}

	if len(rec.Skills) == 0 && rec.Location == "" && rec.Deadline == nil {
		fieldErrs = append(fieldErrs, FieldError{Field: "attributes", Reason: "at least one matchable attribute required"})
	}

	return fieldErrs
}

// normalize converts a validated record into its canonical shape.
// Skills and locations are case folded so matching is case insensitive.
func (s *Service) normalize(rec SourceRecord) *domain.OpportunityEvent {
	skills := make([]string, 0, len(rec.Skills))
	seen := make(map[string]bool, len(rec.Skills))
	for _, skill := range rec.Skills {
		folded := s.folder.String(strings.TrimSpace(skill))
		if folded == "" || seen[folded] {
			continue
		}
		seen[folded] = true
		skills = append(skills, folded)
	}

	return &domain.OpportunityEvent{
		Key: domain.EventKey{
			Source:  rec.Source,
			ID:      rec.ID,
			Version: rec.Version,
		},
		Kind:       domain.EventKind(rec.Kind),
		Title:      strings.TrimSpace(rec.Title),
		Skills:     skills,
		Location:   s.folder.String(strings.TrimSpace(rec.Location)),
		Deadline:   rec.Deadline,
		RawPayload: rec.Payload,
		IngestedAt: time.Now().UTC(),
	}
}

// RunRetentionSweep periodically removes events past the retention horizon.
func (s *Service) RunRetentionSweep(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.repo.DeleteEventsBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				slog.Error("retention sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("retention sweep completed", "deleted", deleted)
			}
		}
	}
}
