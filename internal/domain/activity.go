package domain

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"
)

// DayBudgetMinutes is the hard ceiling on the summed duration of all
// activities an owner records against a single date.
const DayBudgetMinutes = 1440

// MaxNameLength bounds the activity name.
const MaxNameLength = 100

// Category classifies an activity. The set is closed; unknown values are
// rejected at the validation boundary.
type Category string

const (
	CategoryWork          Category = "Work"
	CategoryStudy         Category = "Study"
	CategorySleep         Category = "Sleep"
	CategoryEntertainment Category = "Entertainment"
	CategoryExercise      Category = "Exercise"
	CategoryOther         Category = "Other"
)

var categories = map[Category]struct{}{
	CategoryWork:          {},
	CategoryStudy:         {},
	CategorySleep:         {},
	CategoryEntertainment: {},
	CategoryExercise:      {},
	CategoryOther:         {},
}

// Valid reports whether the category is one of the known variants.
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// dateKeyPattern matches the opaque calendar-day key. Dates are never
// interpreted as calendar values, only compared and grouped as strings.
var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDateKey reports whether value is a well-formed day key.
func ValidDateKey(value string) bool {
	return dateKeyPattern.MatchString(value)
}

// Activity is the persisted record of time spent on a single date.
// The id is assigned by storage and is monotone.
type Activity struct {
	ID          int64
	OwnerID     string
	Date        string
	Name        string
	Category    Category
	DurationMin int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ActivityInput is the mutable payload accepted by create and update.
type ActivityInput struct {
	Name        string
	Category    Category
	DurationMin int
	Date        string
}

// Validate checks the structural field constraints. It returns a
// *ValidationError naming the first offending field.
func (in ActivityInput) Validate() error {
	if n := utf8.RuneCountInString(in.Name); n == 0 || n > MaxNameLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("must be between 1 and %d characters", MaxNameLength)}
	}
	if !in.Category.Valid() {
		return &ValidationError{Field: "category", Reason: "must be one of Work, Study, Sleep, Entertainment, Exercise, Other"}
	}
	if in.DurationMin < 1 || in.DurationMin > DayBudgetMinutes {
		return &ValidationError{Field: "duration", Reason: fmt.Sprintf("must be between 1 and %d minutes", DayBudgetMinutes)}
	}
	if !ValidDateKey(in.Date) {
		return &ValidationError{Field: "activity_date", Reason: "must match YYYY-MM-DD"}
	}
	return nil
}
