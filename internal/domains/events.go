package domains

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EventsFetcher reads event counts and recent events.
type EventsFetcher struct {
	db    *sql.DB
	nowFn func() time.Time
}

// NewEventsFetcher creates the events fetcher.
func NewEventsFetcher(db *sql.DB) *EventsFetcher {
	return &EventsFetcher{db: db, nowFn: time.Now}
}

// Domain returns the events domain id.
func (f *EventsFetcher) Domain() string { return DomainEvents }

// Fetch returns total/upcoming event counts and the most recent events.
func (f *EventsFetcher) Fetch(ctx context.Context, userID string) (Result, error) {
	var out Result

	err := f.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN starts_at > ? THEN 1 ELSE 0 END), 0)
		FROM events
		WHERE user_id = ?`, f.nowFn(), userID,
	).Scan(&out.Stat.Total, &out.Stat.Secondary)
	if err != nil {
		return Result{}, fmt.Errorf("count events: %w", err)
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT id, title, starts_at, created_at
		FROM events
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, recentLimit)
	if err != nil {
		return Result{}, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	now := f.nowFn()
	for rows.Next() {
		var (
			item      ActivityItem
			id        string
			startsAt  sql.NullTime
			createdAt sql.NullTime
		)
		if err := rows.Scan(&id, &item.Title, &startsAt, &createdAt); err != nil {
			return Result{}, fmt.Errorf("scan event: %w", err)
		}
		item.Domain = DomainEvents
		item.Ref = "/events/" + id
		if startsAt.Valid && startsAt.Time.After(now) {
			item.Status = "upcoming"
		} else {
			item.Status = "past"
		}
		if createdAt.Valid {
			item.Timestamp = createdAt.Time
		}
		out.Recent = append(out.Recent, item)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
