// Package events defines the payloads published when the ledger mutates.
package events

import "time"

// ActivityCreated is emitted after a new activity passes the budget check and
// commits.
type ActivityCreated struct {
	ActivityID  int64     `json:"activity_id"`
	OwnerID     string    `json:"owner_id"`
	Date        string    `json:"activity_date"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	DurationMin int       `json:"duration_min"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ActivityUpdated is emitted after a full-record replacement commits. Date
// carries the destination day when the record moved between days.
type ActivityUpdated struct {
	ActivityID  int64     `json:"activity_id"`
	OwnerID     string    `json:"owner_id"`
	Date        string    `json:"activity_date"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	DurationMin int       `json:"duration_min"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ActivityDeleted is emitted after an activity is removed.
type ActivityDeleted struct {
	ActivityID int64     `json:"activity_id"`
	OwnerID    string    `json:"owner_id"`
	Date       string    `json:"activity_date"`
	OccurredAt time.Time `json:"occurred_at"`
}
