// Package domains implements the per-domain content fetchers feeding the
// dashboard aggregator.
//
// Each fetcher owns its own query and filter logic and evolves
// independently of the others; adding a content domain means adding one
// fetcher and registering it, without touching the aggregator.
package domains

import (
	"context"
	"time"
)

// Domain ids. Presenter-facing display metadata lives with the presenter.
const (
	DomainBooks      = "books"
	DomainBlog       = "blog"
	DomainEvents     = "events"
	DomainAwards     = "awards"
	DomainFAQ        = "faq"
	DomainNewsletter = "newsletter"
	DomainContact    = "contact_forms"
)

// declarationOrder fixes the tie-break ordering for feed items that share
// a timestamp, and the ordering of stats in presenter output.
var declarationOrder = []string{
	DomainBooks,
	DomainBlog,
	DomainEvents,
	DomainAwards,
	DomainFAQ,
	DomainNewsletter,
	DomainContact,
}

var domainRank = func() map[string]int {
	m := make(map[string]int, len(declarationOrder))
	for i, d := range declarationOrder {
		m[d] = i
	}
	return m
}()

// Order returns the fixed domain declaration order.
func Order() []string {
	out := make([]string, len(declarationOrder))
	copy(out, declarationOrder)
	return out
}

// Rank returns the declaration-order position of domain. Unknown domains
// sort last.
func Rank(domain string) int {
	if r, ok := domainRank[domain]; ok {
		return r
	}
	return len(declarationOrder)
}

// recentLimit caps the recent items one fetcher contributes to a pass.
// The merged feed is bounded separately by the aggregator.
const recentLimit = 5

// DomainStat is one domain's count pair for a single pass. Ephemeral:
// recomputed every pass, never persisted.
type DomainStat struct {
	Total     int `json:"total"`
	Secondary int `json:"secondary"`
}

// ActivityItem is one recent item projected into the uniform feed shape.
// Produced by one fetcher, consumed once by the merge step.
type ActivityItem struct {
	Domain    string    `json:"domain"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status,omitempty"`
	Ref       string    `json:"ref"`
}

// Result is one fetcher's contribution to a pass. An empty result is
// valid, not an error.
type Result struct {
	Stat   DomainStat
	Recent []ActivityItem
}

// Fetcher is the uniform contract for optional content domains. Fetch
// errors are isolated by the aggregator; fetchers just return them.
type Fetcher interface {
	Domain() string
	Fetch(ctx context.Context, userID string) (Result, error)
}
