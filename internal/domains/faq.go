package domains

import (
	"context"
	"database/sql"
	"fmt"
)

// FAQFetcher reads FAQ entry counts and recently updated entries.
type FAQFetcher struct {
	db *sql.DB
}

// NewFAQFetcher creates the FAQ fetcher.
func NewFAQFetcher(db *sql.DB) *FAQFetcher {
	return &FAQFetcher{db: db}
}

// Domain returns the faq domain id.
func (f *FAQFetcher) Domain() string { return DomainFAQ }

// Fetch returns total/published entry counts and recently updated entries.
func (f *FAQFetcher) Fetch(ctx context.Context, userID string) (Result, error) {
	var out Result

	err := f.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'published' THEN 1 ELSE 0 END), 0)
		FROM faq_entries
		WHERE user_id = ?`, userID,
	).Scan(&out.Stat.Total, &out.Stat.Secondary)
	if err != nil {
		return Result{}, fmt.Errorf("count faq entries: %w", err)
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT id, question, status, updated_at
		FROM faq_entries
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?`, userID, recentLimit)
	if err != nil {
		return Result{}, fmt.Errorf("query recent faq entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      ActivityItem
			id        string
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&id, &item.Title, &item.Status, &updatedAt); err != nil {
			return Result{}, fmt.Errorf("scan faq entry: %w", err)
		}
		item.Domain = DomainFAQ
		item.Ref = "/faq/" + id
		if updatedAt.Valid {
			item.Timestamp = updatedAt.Time
		}
		out.Recent = append(out.Recent, item)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate faq entries: %w", err)
	}
	return out, nil
}
