package domains

import (
	"context"
	"database/sql"
	"fmt"
)

// AwardsFetcher reads award counts and recent awards.
type AwardsFetcher struct {
	db *sql.DB
}

// NewAwardsFetcher creates the awards fetcher.
func NewAwardsFetcher(db *sql.DB) *AwardsFetcher {
	return &AwardsFetcher{db: db}
}

// Domain returns the awards domain id.
func (f *AwardsFetcher) Domain() string { return DomainAwards }

// Fetch returns total/featured award counts and the most recent awards.
func (f *AwardsFetcher) Fetch(ctx context.Context, userID string) (Result, error) {
	var out Result

	err := f.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN featured = 1 THEN 1 ELSE 0 END), 0)
		FROM awards
		WHERE user_id = ?`, userID,
	).Scan(&out.Stat.Total, &out.Stat.Secondary)
	if err != nil {
		return Result{}, fmt.Errorf("count awards: %w", err)
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT id, title, featured, awarded_at
		FROM awards
		WHERE user_id = ?
		ORDER BY awarded_at DESC
		LIMIT ?`, userID, recentLimit)
	if err != nil {
		return Result{}, fmt.Errorf("query recent awards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      ActivityItem
			id        string
			featured  bool
			awardedAt sql.NullTime
		)
		if err := rows.Scan(&id, &item.Title, &featured, &awardedAt); err != nil {
			return Result{}, fmt.Errorf("scan award: %w", err)
		}
		item.Domain = DomainAwards
		item.Ref = "/awards/" + id
		if featured {
			item.Status = "featured"
		}
		if awardedAt.Valid {
			item.Timestamp = awardedAt.Time
		}
		out.Recent = append(out.Recent, item)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate awards: %w", err)
	}
	return out, nil
}
