package domains

import (
	"context"
	"database/sql"
	"fmt"
)

// BlogFetcher reads blog post counts and recent posts.
type BlogFetcher struct {
	db *sql.DB
}

// NewBlogFetcher creates the blog fetcher.
func NewBlogFetcher(db *sql.DB) *BlogFetcher {
	return &BlogFetcher{db: db}
}

// Domain returns the blog domain id.
func (f *BlogFetcher) Domain() string { return DomainBlog }

// Fetch returns total/published post counts and the most recent posts.
func (f *BlogFetcher) Fetch(ctx context.Context, userID string) (Result, error) {
	var out Result

	err := f.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'published' THEN 1 ELSE 0 END), 0)
		FROM blog_posts
		WHERE user_id = ?`, userID,
	).Scan(&out.Stat.Total, &out.Stat.Secondary)
	if err != nil {
		return Result{}, fmt.Errorf("count blog posts: %w", err)
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT id, title, status, created_at
		FROM blog_posts
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, recentLimit)
	if err != nil {
		return Result{}, fmt.Errorf("query recent blog posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      ActivityItem
			id        string
			createdAt sql.NullTime
		)
		if err := rows.Scan(&id, &item.Title, &item.Status, &createdAt); err != nil {
			return Result{}, fmt.Errorf("scan blog post: %w", err)
		}
		item.Domain = DomainBlog
		item.Ref = "/blog/" + id
		if createdAt.Valid {
			item.Timestamp = createdAt.Time
		}
		out.Recent = append(out.Recent, item)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate blog posts: %w", err)
	}
	return out, nil
}
