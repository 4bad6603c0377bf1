// Package api exposes the operator HTTP endpoints of the bot.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xmasacrex/club-rpg/internal/auth"
	"github.com/xmasacrex/club-rpg/internal/domain"
	"github.com/xmasacrex/club-rpg/internal/persistence"
)

// TripService is the part of domain.Service operators can reach.
type TripService interface {
	ActivityOf(participantID string) (domain.Activity, bool)
	IsCompleting(participantID string) bool
	CancelActivity(ctx context.Context, participantID string) (*domain.Activity, error)
	SyncFromStore(ctx context.Context) (int, error)
	ListActivitiesByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error)
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service TripService
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service TripService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/trips/", h.tripByUser)
	mux.HandleFunc("/v1/trips/rebuild", auth.RequireScope(auth.ScopeTripsAdmin, h.rebuild))
	mux.HandleFunc("/v1/users/", auth.RequireScope(auth.ScopeTripsRead, h.userActivities))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) tripByUser(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		auth.RequireScope(auth.ScopeTripsRead, h.getTrip)(w, r)
	case http.MethodDelete:
		auth.RequireScope(auth.ScopeTripsAdmin, h.cancelTrip)(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getTrip(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/v1/trips/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}

	activity, ok := h.service.ActivityOf(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "user has no active trip")
		return
	}
	view := toTripView(activity)
	view.Completing = h.service.IsCompleting(activity.UserID)
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) cancelTrip(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/v1/trips/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}

	cancelled, err := h.service.CancelActivity(r.Context(), userID)
	if err != nil {
		h.logger.Error("operator cancel failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if cancelled == nil {
		writeError(w, http.StatusNotFound, "not_found", "user has no active trip")
		return
	}
	h.logger.Info("operator cancelled trip", zap.String("user_id", userID), zap.String("activity_id", cancelled.ID))
	writeJSON(w, http.StatusOK, toTripView(*cancelled))
}

func (h *Handler) rebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	n, err := h.service.SyncFromStore(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse{Activities: n})
}

func (h *Handler) userActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, rest, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if !ok || userID == "" || rest != "activities" {
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivitiesByUser(r.Context(), userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]TripView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toTripView(a))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

// TripView exposes a trip to operators.
type TripView struct {
	ActivityID   string          `json:"activity_id"`
	UserID       string          `json:"user_id"`
	Participants []string        `json:"participants"`
	Type         string          `json:"type"`
	ChannelID    string          `json:"channel_id,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishAt     time.Time       `json:"finish_at"`
	DurationSec  int64           `json:"duration_sec"`
	Completed    bool            `json:"completed"`
	Completing   bool            `json:"completing,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []TripView `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// RebuildResponse reports how many incomplete trips were reloaded.
type RebuildResponse struct {
	Activities int `json:"activities"`
}

func toTripView(a domain.Activity) TripView {
	return TripView{
		ActivityID:   a.ID,
		UserID:       a.UserID,
		Participants: a.ParticipantIDs(),
		Type:         a.Type,
		ChannelID:    a.ChannelID,
		StartedAt:    a.StartedAt,
		FinishAt:     a.FinishAt,
		DurationSec:  int64(a.Duration / time.Second),
		Completed:    a.Completed,
		Data:         a.Data,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
