// Package api exposes the HTTP surface of the activity ledger.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/timebudget/internal/auth"
	"example.com/timebudget/internal/domain"
)

// Handler coordinates HTTP requests with the ledger service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/activities", h.activities)
	mux.HandleFunc("/api/activities/", h.activityByPath)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// activityByPath dispatches /api/activities/{date}, /api/activities/{date}/total
// and /api/activities/{id}. Date keys and record ids never collide: ids are
// purely numeric, date keys contain dashes.
func (h *Handler) activityByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/activities/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(segments) == 1 && segments[0] != "":
		switch r.Method {
		case http.MethodGet:
			h.listActivities(w, r, segments[0])
		case http.MethodPut:
			h.updateActivity(w, r, segments[0])
		case http.MethodDelete:
			h.deleteActivity(w, r, segments[0])
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		}
	case len(segments) == 2 && segments[1] == "total":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.totalForDate(w, r, segments[0])
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown path")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "unable to parse body")
		return
	}

	activity, err := h.service.CreateActivity(r.Context(), claims.Subject, req.toInput())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request, rawID string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		// A malformed id can never name an owned record.
		writeError(w, http.StatusNotFound, "not_found", "Activity not found")
		return
	}

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "unable to parse body")
		return
	}

	activity, err := h.service.UpdateActivity(r.Context(), claims.Subject, id, req.toInput())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request, rawID string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Activity not found")
		return
	}

	if err := h.service.DeleteActivity(r.Context(), claims.Subject, id); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request, date string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	activities, err := h.service.ListActivities(r.Context(), claims.Subject, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) totalForDate(w http.ResponseWriter, r *http.Request, date string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	total, err := h.service.TotalForDate(r.Context(), claims.Subject, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TotalView{Total: total})
}

// requireScope resolves claims from the request context and enforces that at
// least one of the scopes is present. It writes the error response itself and
// reports whether the handler may proceed.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

// ActivityRequest is the payload for POST /api/activities and PUT
// /api/activities/{id}.
type ActivityRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Duration int    `json:"duration"`
	Date     string `json:"activity_date"`
}

func (r ActivityRequest) toInput() domain.ActivityInput {
	return domain.ActivityInput{
		Name:        r.Name,
		Category:    domain.Category(r.Category),
		DurationMin: r.Duration,
		Date:        r.Date,
	}
}

// ActivityView is the JSON shape of a persisted activity.
type ActivityView struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Date      string    `json:"activity_date"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Duration  int       `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalView carries the summed minutes for one date.
type TotalView struct {
	Total int `json:"total"`
}

// errorResponse is the uniform failure body: a human-readable message plus a
// machine-readable kind, with extra detail per kind.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var budgetErr *domain.BudgetError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: validationErr.Error(),
			Code:  "invalid_input",
			Field: validationErr.Field,
		})
	case errors.As(err, &budgetErr):
		remaining := budgetErr.Remaining
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     budgetErr.Error(),
			Code:      "budget_exceeded",
			Remaining: &remaining,
		})
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Activity not found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ID:        a.ID,
		OwnerID:   a.OwnerID,
		Date:      a.Date,
		Name:      a.Name,
		Category:  string(a.Category),
		Duration:  a.DurationMin,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
