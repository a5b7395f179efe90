// Package postgres provides pgx-backed persistence for the activity ledger.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timebudget/internal/domain"
	"example.com/timebudget/internal/events"
	"example.com/timebudget/internal/observability"
)

const activityColumns = `id, owner_id, activity_date, name, category, duration_min, created_at, updated_at`

// Repository provides Postgres-backed persistence for activities and outbox
// events. Budget-checked writes run at SERIALIZABLE isolation so the
// read-check-write cycle cannot interleave with a concurrent writer on the
// same (owner, date) key.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier abstracts pgx.Tx and pgxpool.Pool for the shared sum query.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumForDate(ctx context.Context, q querier, ownerID, date string, excludeID *int64) (int, error) {
	query := `SELECT COALESCE(SUM(duration_min), 0) FROM activities WHERE owner_id=$1 AND activity_date=$2`
	args := []any{ownerID, date}
	if excludeID != nil {
		query += ` AND id <> $3`
		args = append(args, *excludeID)
	}

	var sum int
	if err := q.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// SumForDate returns the summed minutes for an (owner, date) key, optionally
// excluding one record. Missing keys sum to zero.
func (r *Repository) SumForDate(ctx context.Context, ownerID, date string, excludeID *int64) (int, error) {
	return sumForDate(ctx, r.pool, ownerID, date, excludeID)
}

// Create persists the activity and its outbox event in one serializable
// transaction, re-checking the day budget immediately before the insert.
func (r *Repository) Create(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sum, err := sumForDate(ctx, tx, activity.OwnerID, activity.Date, nil)
	if err != nil {
		return nil, mapTxError(err)
	}
	if sum+activity.DurationMin > domain.DayBudgetMinutes {
		observability.RecordBudgetRejection()
		return nil, &domain.BudgetError{Remaining: domain.DayBudgetMinutes - sum}
	}

	const insert = `INSERT INTO activities (owner_id, activity_date, name, category, duration_min, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`

	if err := tx.QueryRow(ctx, insert,
		activity.OwnerID,
		activity.Date,
		activity.Name,
		string(activity.Category),
		activity.DurationMin,
		activity.CreatedAt,
		activity.UpdatedAt,
	).Scan(&activity.ID); err != nil {
		return nil, mapTxError(err)
	}

	if err := insertOutbox(ctx, tx, activity, "activity.created", events.ActivityCreated{
		ActivityID:  activity.ID,
		OwnerID:     activity.OwnerID,
		Date:        activity.Date,
		Name:        activity.Name,
		Category:    string(activity.Category),
		DurationMin: activity.DurationMin,
		OccurredAt:  activity.CreatedAt,
	}); err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapTxError(err)
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return &activity, nil
}

// Get retrieves an owned activity. Absent ids and foreign owners both come
// back as domain.ErrActivityNotFound.
func (r *Repository) Get(ctx context.Context, ownerID string, activityID int64) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id=$1 AND owner_id=$2`

	var a domain.Activity
	err := r.pool.QueryRow(ctx, query, activityID, ownerID).
		Scan(&a.ID, &a.OwnerID, &a.Date, &a.Name, &a.Category, &a.DurationMin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActivityNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Update replaces the mutable fields of an owned activity. The budget is
// re-checked against the payload's date with the record itself excluded, all
// inside the same serializable transaction as the write.
func (r *Repository) Update(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const lookup = `SELECT created_at FROM activities WHERE id=$1 AND owner_id=$2`
	if err := tx.QueryRow(ctx, lookup, activity.ID, activity.OwnerID).Scan(&activity.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActivityNotFound
		}
		return nil, mapTxError(err)
	}

	sum, err := sumForDate(ctx, tx, activity.OwnerID, activity.Date, &activity.ID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if sum+activity.DurationMin > domain.DayBudgetMinutes {
		observability.RecordBudgetRejection()
		return nil, &domain.BudgetError{Remaining: domain.DayBudgetMinutes - sum}
	}

	const update = `UPDATE activities
        SET name=$1, category=$2, duration_min=$3, activity_date=$4, updated_at=$5
        WHERE id=$6 AND owner_id=$7`

	if _, err := tx.Exec(ctx, update,
		activity.Name,
		string(activity.Category),
		activity.DurationMin,
		activity.Date,
		activity.UpdatedAt,
		activity.ID,
		activity.OwnerID,
	); err != nil {
		return nil, mapTxError(err)
	}

	if err := insertOutbox(ctx, tx, activity, "activity.updated", events.ActivityUpdated{
		ActivityID:  activity.ID,
		OwnerID:     activity.OwnerID,
		Date:        activity.Date,
		Name:        activity.Name,
		Category:    string(activity.Category),
		DurationMin: activity.DurationMin,
		OccurredAt:  activity.UpdatedAt,
	}); err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapTxError(err)
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return &activity, nil
}

// Delete removes an owned activity. Absent ids and foreign owners both come
// back as domain.ErrActivityNotFound.
func (r *Repository) Delete(ctx context.Context, ownerID string, activityID int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const del = `DELETE FROM activities WHERE id=$1 AND owner_id=$2 RETURNING activity_date`

	deleted := domain.Activity{ID: activityID, OwnerID: ownerID, UpdatedAt: time.Now().UTC()}
	if err := tx.QueryRow(ctx, del, activityID, ownerID).Scan(&deleted.Date); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrActivityNotFound
		}
		return err
	}

	if err := insertOutbox(ctx, tx, deleted, "activity.deleted", events.ActivityDeleted{
		ActivityID: deleted.ID,
		OwnerID:    deleted.OwnerID,
		Date:       deleted.Date,
		OccurredAt: deleted.UpdatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListByDate returns the owner's activities for one date, newest first, with
// id descending as the tie-break when created_at collides.
func (r *Repository) ListByDate(ctx context.Context, ownerID, date string) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + `
        FROM activities WHERE owner_id=$1 AND activity_date=$2
        ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, ownerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Date, &a.Name, &a.Category, &a.DurationMin, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%d:%d", eventType, activity.ID, activity.UpdatedAt.UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		activity.ID,
		eventType,
		meta.Topic,
		meta.PartitionKeyFn(activity),
		body,
		dedupeKey,
	)
	return err
}

// mapTxError normalizes serialization aborts so callers can retry the whole
// read-check-write cycle.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %s", domain.ErrTxConflict, pgErr.Code)
		}
	}
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	PartitionKeyFn func(domain.Activity) string
}

var eventCatalog = map[string]EventMetadata{
	"activity.created": {
		Topic: "activity_ledger_events",
		PartitionKeyFn: func(a domain.Activity) string {
			return fmt.Sprintf("%s:%s", a.OwnerID, a.Date)
		},
	},
	"activity.updated": {
		Topic: "activity_ledger_events",
		PartitionKeyFn: func(a domain.Activity) string {
			return fmt.Sprintf("%s:%s", a.OwnerID, a.Date)
		},
	},
	"activity.deleted": {
		Topic: "activity_ledger_events",
		PartitionKeyFn: func(a domain.Activity) string {
			return fmt.Sprintf("%s:%s", a.OwnerID, a.Date)
		},
	},
}
