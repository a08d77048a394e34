package domains

import (
	"context"
	"database/sql"
	"fmt"
)

// NewsletterFetcher reads subscriber counts and recent signups.
type NewsletterFetcher struct {
	db *sql.DB
}

// NewNewsletterFetcher creates the newsletter fetcher.
func NewNewsletterFetcher(db *sql.DB) *NewsletterFetcher {
	return &NewsletterFetcher{db: db}
}

// Domain returns the newsletter domain id.
func (f *NewsletterFetcher) Domain() string { return DomainNewsletter }

// Fetch returns total/confirmed subscriber counts and recent signups.
func (f *NewsletterFetcher) Fetch(ctx context.Context, userID string) (Result, error) {
	var out Result

	err := f.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN confirmed = 1 THEN 1 ELSE 0 END), 0)
		FROM newsletter_subscribers
		WHERE user_id = ?`, userID,
	).Scan(&out.Stat.Total, &out.Stat.Secondary)
	if err != nil {
		return Result{}, fmt.Errorf("count newsletter subscribers: %w", err)
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT id, email, confirmed, subscribed_at
		FROM newsletter_subscribers
		WHERE user_id = ?
		ORDER BY subscribed_at DESC
		LIMIT ?`, userID, recentLimit)
	if err != nil {
		return Result{}, fmt.Errorf("query recent signups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item         ActivityItem
			id           string
			confirmed    bool
			subscribedAt sql.NullTime
		)
		if err := rows.Scan(&id, &item.Title, &confirmed, &subscribedAt); err != nil {
			return Result{}, fmt.Errorf("scan signup: %w", err)
		}
		item.Domain = DomainNewsletter
		item.Ref = "/newsletter/subscribers/" + id
		if confirmed {
			item.Status = "confirmed"
		} else {
			item.Status = "pending"
		}
		if subscribedAt.Valid {
			item.Timestamp = subscribedAt.Time
		}
		out.Recent = append(out.Recent, item)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate signups: %w", err)
	}
	return out, nil
}
