package delivery

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pkg/httputil"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Handler exposes read access to delivery records for operators and the
// analytics collaborator.
type Handler struct {
	repo Repository
}

// NewHandler creates a new delivery handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers delivery record routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/deliveries", h.ListDeliveries)
	r.Get("/deliveries/dead-letter", h.ListDeadLetters)
}

// ListDeliveries handles GET /deliveries?status=&user_id=&limit=.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	status := domain.DeliveryStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.DeliveryStatusPending
	}
	switch status {
	case domain.DeliveryStatusPending, domain.DeliveryStatusDeferred,
		domain.DeliveryStatusDispatched, domain.DeliveryStatusDelivered,
		domain.DeliveryStatusRetryScheduled, domain.DeliveryStatusFailedPermanent:
	default:
		httputil.Error(w, http.StatusBadRequest, "unknown status")
		return
	}

	h.list(w, r, status)
}

// ListDeadLetters handles GET /deliveries/dead-letter. Dead-lettered
// records are surfaced for external follow-up only; they are never fed
// back into the pipeline here.
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.DeliveryStatusFailedPermanent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, status domain.DeliveryStatus) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.repo.ListRecords(r.Context(), status, r.URL.Query().Get("user_id"), limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, records)
}
