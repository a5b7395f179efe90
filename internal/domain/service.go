// Package domain defines the business logic for the time-budget ledger.
package domain

import (
	"context"
	"errors"
	"time"
)

// ActivityRepository captures persistence operations. Create and Update must
// re-validate the day budget atomically with the write; both return
// *BudgetError when the budget would be exceeded and ErrTxConflict when a
// concurrent writer forced the transaction to abort.
type ActivityRepository interface {
	Create(ctx context.Context, activity Activity) (*Activity, error)
	Get(ctx context.Context, ownerID string, activityID int64) (*Activity, error)
	Update(ctx context.Context, activity Activity) (*Activity, error)
	Delete(ctx context.Context, ownerID string, activityID int64) error
	ListByDate(ctx context.Context, ownerID, date string) ([]Activity, error)
	SumForDate(ctx context.Context, ownerID, date string, excludeID *int64) (int, error)
}

// Service orchestrates ledger operations: structural validation first, then
// the budget-checked write delegated to the repository.
type Service struct {
	repo ActivityRepository
}

// NewService constructs a Service.
func NewService(repo ActivityRepository) *Service {
	return &Service{repo: repo}
}

// CreateActivity validates the payload and persists a new activity for the
// owner. The owner always comes from the authenticated identity, never from
// client input.
func (s *Service) CreateActivity(ctx context.Context, ownerID string, input ActivityInput) (*Activity, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	activity := Activity{
		OwnerID:     ownerID,
		Date:        input.Date,
		Name:        input.Name,
		Category:    input.Category,
		DurationMin: input.DurationMin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return retryOnConflict(func() (*Activity, error) {
		return s.repo.Create(ctx, activity)
	})
}

// UpdateActivity replaces all mutable fields of an owned activity. Ownership
// is resolved before the payload is inspected, so an absent or foreign id is
// reported as not found regardless of the payload. The budget is checked
// against the payload's date, excluding the record itself, so a record moving
// between days is validated against its destination day.
func (s *Service) UpdateActivity(ctx context.Context, ownerID string, activityID int64, input ActivityInput) (*Activity, error) {
	if _, err := s.repo.Get(ctx, ownerID, activityID); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	activity := Activity{
		ID:          activityID,
		OwnerID:     ownerID,
		Date:        input.Date,
		Name:        input.Name,
		Category:    input.Category,
		DurationMin: input.DurationMin,
		UpdatedAt:   time.Now().UTC(),
	}

	return retryOnConflict(func() (*Activity, error) {
		return s.repo.Update(ctx, activity)
	})
}

// DeleteActivity removes an owned activity. Removal only ever lowers a day's
// total, so no budget re-check is involved.
func (s *Service) DeleteActivity(ctx context.Context, ownerID string, activityID int64) error {
	return s.repo.Delete(ctx, ownerID, activityID)
}

// ListActivities returns the owner's activities for one date, most recent
// first.
func (s *Service) ListActivities(ctx context.Context, ownerID, date string) ([]Activity, error) {
	if !ValidDateKey(date) {
		return nil, &ValidationError{Field: "date", Reason: "must match YYYY-MM-DD"}
	}
	return s.repo.ListByDate(ctx, ownerID, date)
}

// TotalForDate returns the summed minutes recorded for one date. Days with no
// activities total zero.
func (s *Service) TotalForDate(ctx context.Context, ownerID, date string) (int, error) {
	if !ValidDateKey(date) {
		return 0, &ValidationError{Field: "date", Reason: "must match YYYY-MM-DD"}
	}
	return s.repo.SumForDate(ctx, ownerID, date, nil)
}

// retryOnConflict re-runs a budget-checked write once after a serialization
// conflict. The repository performs a fresh read-check-write cycle on each
// attempt, so a single retry is enough to absorb a lost race; a second
// conflict is surfaced to the caller.
func retryOnConflict(op func() (*Activity, error)) (*Activity, error) {
	activity, err := op()
	if errors.Is(err, ErrTxConflict) {
		activity, err = op()
	}
	return activity, err
}
