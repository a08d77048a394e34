package domains

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// BooksResult extends the uniform result with the profile/book view total
// from the dependent analytics sub-fetch.
type BooksResult struct {
	Result
	Views int64
}

// BooksFetcher is the one mandatory domain: baseline catalog and profile
// analytics that every plan gets. It deliberately does not implement the
// optional Fetcher contract; the aggregator always invokes it, and its
// failure is terminal for the pass.
//
// The fetch is two-stage: first the user's books, then view analytics
// filtered by (profile page OR book id in that set).
type BooksFetcher struct {
	db *sql.DB
}

// NewBooksFetcher creates the mandatory books fetcher.
func NewBooksFetcher(db *sql.DB) *BooksFetcher {
	return &BooksFetcher{db: db}
}

// Domain returns the books domain id.
func (f *BooksFetcher) Domain() string { return DomainBooks }

// Fetch returns book counts, recent books, and the view total.
func (f *BooksFetcher) Fetch(ctx context.Context, userID string) (BooksResult, error) {
	var out BooksResult

	rows, err := f.db.QueryContext(ctx, `
		SELECT id, title, status, created_at
		FROM books
		WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return BooksResult{}, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var bookIDs []string
	for rows.Next() {
		var (
			item      ActivityItem
			id        string
			status    string
			createdAt sql.NullTime
		)
		if err := rows.Scan(&id, &item.Title, &status, &createdAt); err != nil {
			return BooksResult{}, fmt.Errorf("scan book: %w", err)
		}
		bookIDs = append(bookIDs, id)
		out.Stat.Total++
		if status == "published" {
			out.Stat.Secondary++
		}
		if len(out.Recent) < recentLimit {
			item.Domain = DomainBooks
			item.Status = status
			item.Ref = "/books/" + id
			if createdAt.Valid {
				item.Timestamp = createdAt.Time
			}
			out.Recent = append(out.Recent, item)
		}
	}
	if err := rows.Err(); err != nil {
		return BooksResult{}, fmt.Errorf("iterate books: %w", err)
	}

	views, err := f.fetchViews(ctx, userID, bookIDs)
	if err != nil {
		return BooksResult{}, err
	}
	out.Views = views
	return out, nil
}

// fetchViews sums page views for the profile and the user's books. With no
// books the predicate degrades to profile-only instead of producing an
// empty IN () clause.
func (f *BooksFetcher) fetchViews(ctx context.Context, userID string, bookIDs []string) (int64, error) {
	query := `SELECT COALESCE(SUM(views), 0) FROM book_views WHERE user_id = ? AND page = 'profile'`
	args := []any{userID}

	if len(bookIDs) > 0 {
		placeholders := strings.Repeat("?,", len(bookIDs))
		placeholders = placeholders[:len(placeholders)-1]
		query = fmt.Sprintf(
			`SELECT COALESCE(SUM(views), 0) FROM book_views WHERE user_id = ? AND (page = 'profile' OR book_id IN (%s))`,
			placeholders)
		for _, id := range bookIDs {
			args = append(args, id)
		}
	}

	var views int64
	if err := f.db.QueryRowContext(ctx, query, args...).Scan(&views); err != nil {
		return 0, fmt.Errorf("query book views: %w", err)
	}
	return views, nil
}
