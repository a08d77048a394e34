package domains

import (
	"context"
	"database/sql"
	"fmt"
)

// ContactFetcher reads contact form submission counts and recent
// submissions.
type ContactFetcher struct {
	db *sql.DB
}

// NewContactFetcher creates the contact forms fetcher.
func NewContactFetcher(db *sql.DB) *ContactFetcher {
	return &ContactFetcher{db: db}
}

// Domain returns the contact_forms domain id.
func (f *ContactFetcher) Domain() string { return DomainContact }

// Fetch returns total/unread submission counts and recent submissions.
func (f *ContactFetcher) Fetch(ctx context.Context, userID string) (Result, error) {
	var out Result

	err := f.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0)
		FROM contact_submissions
		WHERE user_id = ?`, userID,
	).Scan(&out.Stat.Total, &out.Stat.Secondary)
	if err != nil {
		return Result{}, fmt.Errorf("count contact submissions: %w", err)
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT id, sender, subject, read, submitted_at
		FROM contact_submissions
		WHERE user_id = ?
		ORDER BY submitted_at DESC
		LIMIT ?`, userID, recentLimit)
	if err != nil {
		return Result{}, fmt.Errorf("query recent submissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item        ActivityItem
			id          string
			sender      string
			subject     string
			read        bool
			submittedAt sql.NullTime
		)
		if err := rows.Scan(&id, &sender, &subject, &read, &submittedAt); err != nil {
			return Result{}, fmt.Errorf("scan submission: %w", err)
		}
		item.Domain = DomainContact
		item.Title = sender
		if subject != "" {
			item.Title = fmt.Sprintf("%s: %s", sender, subject)
		}
		item.Ref = "/contact/submissions/" + id
		if read {
			item.Status = "read"
		} else {
			item.Status = "unread"
		}
		if submittedAt.Valid {
			item.Timestamp = submittedAt.Time
		}
		out.Recent = append(out.Recent, item)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}
