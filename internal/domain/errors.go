package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrActivityNotFound is returned when an activity does not exist or
	// belongs to a different owner. The two cases are deliberately
	// indistinguishable so existence never leaks across owners.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrTxConflict indicates the storage layer aborted a write because a
	// concurrent transaction touched the same (owner, date) key.
	ErrTxConflict = errors.New("transaction conflict")
)

// ValidationError reports a structural constraint violation on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// BudgetError rejects a write that would push a day's total over the budget.
// Remaining carries the minutes still available for that (owner, date) key.
type BudgetError struct {
	Remaining int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("You only have %d minutes left for this day.", e.Remaining)
}
