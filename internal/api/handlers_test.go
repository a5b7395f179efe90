package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/timebudget/internal/auth"
	"example.com/timebudget/internal/domain"
)

func TestCreateActivitySuccess(t *testing.T) {
	repo := &mockRepo{}
	handler := NewHandler(domain.NewService(repo))

	body := `{"name":"Deep work","category":"Work","duration":800,"activity_date":"2024-01-01"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/activities", strings.NewReader(body)), "user-1", auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.createActivity(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	var view ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.ID == 0 {
		t.Fatal("expected a storage-assigned id")
	}
	if view.OwnerID != "user-1" {
		t.Fatalf("owner must come from the token, got %q", view.OwnerID)
	}
	if view.Duration != 800 || view.Date != "2024-01-01" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestCreateActivityBudgetExceeded(t *testing.T) {
	repo := &mockRepo{existingSum: 800}
	handler := NewHandler(domain.NewService(repo))

	body := `{"name":"Side project","category":"Work","duration":700,"activity_date":"2024-01-01"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/activities", strings.NewReader(body)), "user-1", auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.createActivity(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "You only have 640 minutes left for this day." {
		t.Fatalf("unexpected message %q", resp.Error)
	}
	if resp.Code != "budget_exceeded" {
		t.Fatalf("unexpected code %q", resp.Code)
	}
	if resp.Remaining == nil || *resp.Remaining != 640 {
		t.Fatalf("expected remaining 640, got %v", resp.Remaining)
	}
}

func TestCreateActivityValidation(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	body := `{"name":"Gaming","category":"Videogames","duration":60,"activity_date":"2024-01-01"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/activities", strings.NewReader(body)), "user-1", auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.createActivity(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != "invalid_input" || resp.Field != "category" {
		t.Fatalf("unexpected error response %+v", resp)
	}
}

func TestCreateActivityRequiresClaims(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	body := `{"name":"Work","category":"Work","duration":60,"activity_date":"2024-01-01"}`
	req := httptest.NewRequest(http.MethodPost, "/api/activities", strings.NewReader(body))

	rr := httptest.NewRecorder()
	handler.createActivity(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestCreateActivityRequiresWriteScope(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	body := `{"name":"Work","category":"Work","duration":60,"activity_date":"2024-01-01"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/activities", strings.NewReader(body)), "user-1", auth.ScopeActivitiesRead)

	rr := httptest.NewRecorder()
	handler.createActivity(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestListActivitiesForDate(t *testing.T) {
	now := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		listed: []domain.Activity{
			{ID: 2, OwnerID: "user-1", Date: "2024-01-01", Name: "Evening read", Category: domain.CategoryStudy, DurationMin: 40, CreatedAt: now, UpdatedAt: now},
			{ID: 1, OwnerID: "user-1", Date: "2024-01-01", Name: "Deep work", Category: domain.CategoryWork, DurationMin: 800, CreatedAt: now.Add(-8 * time.Hour), UpdatedAt: now.Add(-8 * time.Hour)},
		},
	}
	handler := NewHandler(domain.NewService(repo))

	req := authed(httptest.NewRequest(http.MethodGet, "/api/activities/2024-01-01", nil), "user-1", auth.ScopeActivitiesRead)

	rr := httptest.NewRecorder()
	handler.activityByPath(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var views []ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 activities got %d", len(views))
	}
	if views[0].ID != 2 {
		t.Fatalf("expected newest first, got id %d", views[0].ID)
	}
}

func TestListActivitiesRejectsMalformedDate(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := authed(httptest.NewRequest(http.MethodGet, "/api/activities/january", nil), "user-1", auth.ScopeActivitiesRead)

	rr := httptest.NewRecorder()
	handler.activityByPath(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != "invalid_input" {
		t.Fatalf("malformed date is a validation failure, got code %q", resp.Code)
	}
}

func TestTotalForDate(t *testing.T) {
	repo := &mockRepo{existingSum: 540}
	handler := NewHandler(domain.NewService(repo))

	req := authed(httptest.NewRequest(http.MethodGet, "/api/activities/2024-01-01/total", nil), "user-1", auth.ScopeActivitiesRead)

	rr := httptest.NewRecorder()
	handler.activityByPath(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	var resp TotalView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 540 {
		t.Fatalf("expected total 540 got %d", resp.Total)
	}
}

func TestDeleteActivityNotFound(t *testing.T) {
	repo := &mockRepo{deleteErr: domain.ErrActivityNotFound}
	handler := NewHandler(domain.NewService(repo))

	req := authed(httptest.NewRequest(http.MethodDelete, "/api/activities/42", nil), "user-1", auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.activityByPath(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "Activity not found" {
		t.Fatalf("unexpected message %q", resp.Error)
	}
}

func TestDeleteActivitySuccess(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := authed(httptest.NewRequest(http.MethodDelete, "/api/activities/7", nil), "user-1", auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.activityByPath(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp["success"] {
		t.Fatalf("expected success true, got %v", resp)
	}
}

func TestUpdateActivityNotFound(t *testing.T) {
	repo := &mockRepo{getErr: domain.ErrActivityNotFound}
	handler := NewHandler(domain.NewService(repo))

	body := `{"name":"Work","category":"Work","duration":60,"activity_date":"2024-01-01"}`
	req := authed(httptest.NewRequest(http.MethodPut, "/api/activities/42", strings.NewReader(body)), "user-1", auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.activityByPath(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestUpdateActivityNonNumericID(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	body := `{"name":"Work","category":"Work","duration":60,"activity_date":"2024-01-01"}`
	req := authed(httptest.NewRequest(http.MethodPut, "/api/activities/abc", strings.NewReader(body)), "user-1", auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.activityByPath(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

// authed attaches claims for owner with the given scopes.
func authed(req *http.Request, owner string, scopes ...string) *http.Request {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   owner,
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

type mockRepo struct {
	existingSum int
	listed      []domain.Activity
	getErr      error
	deleteErr   error
}

func (m *mockRepo) Create(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	if m.existingSum+activity.DurationMin > domain.DayBudgetMinutes {
		return nil, &domain.BudgetError{Remaining: domain.DayBudgetMinutes - m.existingSum}
	}
	activity.ID = 1
	return &activity, nil
}

func (m *mockRepo) Get(ctx context.Context, ownerID string, activityID int64) (*domain.Activity, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &domain.Activity{ID: activityID, OwnerID: ownerID}, nil
}

func (m *mockRepo) Update(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	if m.existingSum+activity.DurationMin > domain.DayBudgetMinutes {
		return nil, &domain.BudgetError{Remaining: domain.DayBudgetMinutes - m.existingSum}
	}
	return &activity, nil
}

func (m *mockRepo) Delete(ctx context.Context, ownerID string, activityID int64) error {
	return m.deleteErr
}

func (m *mockRepo) ListByDate(ctx context.Context, ownerID, date string) ([]domain.Activity, error) {
	return m.listed, nil
}

func (m *mockRepo) SumForDate(ctx context.Context, ownerID, date string, excludeID *int64) (int, error) {
	return m.existingSum, nil
}
