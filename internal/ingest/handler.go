package ingest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pkg/ctxlog"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pkg/httputil"
)

// maxBatchSize bounds a single ingestion request.
const maxBatchSize = 1000

// Handler handles HTTP requests on the event ingestion boundary.
type Handler struct {
	service *Service
}

// NewHandler creates a new ingestion handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers ingestion routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/events", h.IngestEvents)
}

// IngestBatchRequest represents the request body for batch ingestion.
type IngestBatchRequest struct {
	Records []SourceRecord `json:"records"`
}

// IngestEvents handles POST /events. Rejected records are reported per
// record and are never retried by this subsystem.
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	var req IngestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if len(req.Records) == 0 {
		httputil.Error(w, http.StatusBadRequest, "empty batch")
		return
	}
	if len(req.Records) > maxBatchSize {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "batch too large")
		return
	}

	ctx := ctxlog.With(r.Context(), "batch_size", len(req.Records))
	result, err := h.service.IngestBatch(ctx, req.Records)
	if err != nil {
		ctxlog.FromContext(ctx).Error("batch ingestion failed", "error", err)
		httputil.Error(w, http.StatusServiceUnavailable, "ingestion unavailable")
		return
	}

	status := http.StatusOK
	if result.Accepted > 0 {
		status = http.StatusCreated
	}
	httputil.Success(w, status, result)
}
