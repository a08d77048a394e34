package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfolio/folio/internal/domains"
	folioerrors "github.com/openfolio/folio/internal/errors"
	"github.com/openfolio/folio/internal/identity"
	"github.com/openfolio/folio/internal/subscription"
	"github.com/openfolio/folio/pkg/plans"
)

type stubIdentity struct {
	user identity.User
	err  error
}

func (s stubIdentity) CurrentUser(ctx context.Context) (identity.User, error) {
	return s.user, s.err
}

type stubSubs struct {
	sub subscription.Subscription
}

func (s stubSubs) Current() subscription.Subscription { return s.sub }

type stubPlanSource struct {
	plans map[string]plans.Plan
}

func (s stubPlanSource) Plan(id string) (plans.Plan, bool) {
	p, ok := s.plans[id]
	return p, ok
}

func (s stubPlanSource) Version() string { return "test" }

type stubBooks struct {
	result domains.BooksResult
	err    error
	delay  time.Duration
	calls  atomic.Int64
}

func (s *stubBooks) Fetch(ctx context.Context, userID string) (domains.BooksResult, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domains.BooksResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return domains.BooksResult{}, s.err
	}
	return s.result, nil
}

type stubFetcher struct {
	domain string
	result domains.Result
	err    error
	calls  atomic.Int64
}

func (s *stubFetcher) Domain() string { return s.domain }

func (s *stubFetcher) Fetch(ctx context.Context, userID string) (domains.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domains.Result{}, s.err
	}
	return s.result, nil
}

func item(domain, title string, day int) domains.ActivityItem {
	return domains.ActivityItem{
		Domain:    domain,
		Title:     title,
		Timestamp: time.Date(2025, 5, day, 12, 0, 0, 0, time.UTC),
		Ref:       "/" + domain + "/" + title,
	}
}

// proPlan builds a plan named "pro" with the given feature ids enabled or
// disabled.
func proPlan(enabled map[string]bool) plans.Plan {
	p := plans.Plan{ID: "pro", Name: "Pro"}
	for _, d := range domains.Order() {
		if d == domains.DomainBooks {
			continue
		}
		on, listed := enabled[d]
		if !listed {
			continue
		}
		p.Grants = append(p.Grants, plans.FeatureGrant{FeatureID: d, Enabled: on, Limit: plans.Unlimited()})
	}
	return p
}

func newTestAggregator(t *testing.T, plan plans.Plan, books *stubBooks, optional []domains.Fetcher, opts ...Option) *Aggregator {
	t.Helper()
	resolver := plans.NewResolver(stubPlanSource{plans: map[string]plans.Plan{plan.ID: plan}})
	a := New(
		stubIdentity{user: identity.User{ID: "u1"}},
		stubSubs{sub: subscription.Subscription{UserID: "u1", PlanID: "pro", Status: subscription.StatusActive}},
		resolver,
		books,
		optional,
		opts...,
	)
	t.Cleanup(a.Close)
	return a
}

func awaitSnapshot(t *testing.T, a *Aggregator) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		s, ok := a.Latest()
		if ok {
			snap = s
		}
		return ok
	}, 2*time.Second, 5*time.Millisecond, "no snapshot published")
	return snap
}

func awaitPass(t *testing.T, a *Aggregator, passID uint64) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		s, ok := a.Latest()
		if ok && s.PassID >= passID {
			snap = s
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "pass %d never published", passID)
	return snap
}

func TestScenarioA_GatingAndStats(t *testing.T) {
	books := &stubBooks{result: domains.BooksResult{
		Result: domains.Result{
			Stat: domains.DomainStat{Total: 3, Secondary: 2},
			Recent: []domains.ActivityItem{
				item(domains.DomainBooks, "A Novel", 3),
			},
		},
		Views: 42,
	}}
	blog := &stubFetcher{domain: domains.DomainBlog, result: domains.Result{
		Stat:   domains.DomainStat{Total: 2, Secondary: 2},
		Recent: []domains.ActivityItem{item(domains.DomainBlog, "Post", 4)},
	}}
	events := &stubFetcher{domain: domains.DomainEvents, result: domains.Result{
		Stat: domains.DomainStat{Total: 9, Secondary: 9},
	}}

	a := newTestAggregator(t,
		proPlan(map[string]bool{domains.DomainBlog: true, domains.DomainEvents: false}),
		books, []domains.Fetcher{blog, events})
	a.Trigger()
	snap := awaitSnapshot(t, a)

	require.Equal(t, 3, snap.Stats.TotalBooks)
	require.Equal(t, 2, snap.Stats.PublishedBooks)
	require.Equal(t, int64(42), snap.Stats.TotalViews)
	require.Equal(t, 2, snap.Stats.BlogPosts)
	require.Equal(t, 0, snap.Stats.Events, "ungated domain must report the zero default")

	require.Equal(t, int64(0), events.calls.Load(), "disabled domain must never be invoked")
	require.Equal(t, int64(1), blog.calls.Load())

	// No feed items may come from the disabled domain.
	for _, it := range snap.Feed {
		require.NotEqual(t, domains.DomainEvents, it.Domain)
	}
}

func TestScenarioB_TimeoutIsolated(t *testing.T) {
	books := &stubBooks{result: domains.BooksResult{
		Result: domains.Result{Recent: []domains.ActivityItem{item(domains.DomainBooks, "Book", 1)}},
	}}
	blog := &stubFetcher{domain: domains.DomainBlog, result: domains.Result{
		Stat:   domains.DomainStat{Total: 1},
		Recent: []domains.ActivityItem{item(domains.DomainBlog, "Post", 2)},
	}}
	contact := &stubFetcher{domain: domains.DomainContact, err: context.DeadlineExceeded}

	a := newTestAggregator(t,
		proPlan(map[string]bool{domains.DomainBlog: true, domains.DomainContact: true}),
		books, []domains.Fetcher{blog, contact})
	a.Trigger()
	snap := awaitSnapshot(t, a)

	require.Equal(t, 0, snap.Stats.ContactSubmissions)
	require.Equal(t, 1, snap.Stats.BlogPosts, "other domains unaffected")
	require.Len(t, snap.Feed, 2, "feed still contains items from healthy domains")

	require.Len(t, snap.Errors, 1)
	require.Equal(t, domains.DomainContact, snap.Errors[0].Domain)
	require.Equal(t, string(folioerrors.ErrorTypeTimeout), snap.Errors[0].Type)
}

func TestScenarioC_FeedBoundAndOrdering(t *testing.T) {
	books := &stubBooks{result: domains.BooksResult{
		Result: domains.Result{Recent: []domains.ActivityItem{
			item(domains.DomainBooks, "b1", 1),
			item(domains.DomainBooks, "b2", 4),
			item(domains.DomainBooks, "b3", 7),
		}},
	}}
	blog := &stubFetcher{domain: domains.DomainBlog, result: domains.Result{
		Recent: []domains.ActivityItem{
			item(domains.DomainBlog, "p1", 2),
			item(domains.DomainBlog, "p2", 5),
		},
	}}
	events := &stubFetcher{domain: domains.DomainEvents, result: domains.Result{
		Recent: []domains.ActivityItem{
			item(domains.DomainEvents, "e1", 3),
			item(domains.DomainEvents, "e2", 6),
		},
	}}

	a := newTestAggregator(t,
		proPlan(map[string]bool{domains.DomainBlog: true, domains.DomainEvents: true}),
		books, []domains.Fetcher{blog, events})
	a.Trigger()
	snap := awaitSnapshot(t, a)

	// Bounded at 5 even with 7 candidates.
	require.Len(t, snap.Feed, FeedLimit)

	// The 5 most recent, strictly descending: days 7,6,5,4,3.
	wantTitles := []string{"b3", "e2", "p2", "b2", "e1"}
	for i, want := range wantTitles {
		require.Equal(t, want, snap.Feed[i].Title, "feed[%d]", i)
	}
	for i := 1; i < len(snap.Feed); i++ {
		require.True(t, snap.Feed[i-1].Timestamp.After(snap.Feed[i].Timestamp))
	}
}

func TestScenarioD_TieBreakDeclarationOrder(t *testing.T) {
	books := &stubBooks{result: domains.BooksResult{
		Result: domains.Result{Recent: []domains.ActivityItem{item(domains.DomainBooks, "book", 5)}},
	}}
	blog := &stubFetcher{domain: domains.DomainBlog, result: domains.Result{
		Recent: []domains.ActivityItem{item(domains.DomainBlog, "post", 5)},
	}}

	a := newTestAggregator(t, proPlan(map[string]bool{domains.DomainBlog: true}),
		books, []domains.Fetcher{blog})
	a.Trigger()
	snap := awaitSnapshot(t, a)

	require.Len(t, snap.Feed, 2)
	require.Equal(t, domains.DomainBooks, snap.Feed[0].Domain, "books wins the tie by declaration order")
	require.Equal(t, domains.DomainBlog, snap.Feed[1].Domain)
}

func TestScenarioE_UnknownPlan(t *testing.T) {
	books := &stubBooks{result: domains.BooksResult{
		Result: domains.Result{Stat: domains.DomainStat{Total: 1}},
	}}
	blog := &stubFetcher{domain: domains.DomainBlog, result: domains.Result{Stat: domains.DomainStat{Total: 3}}}

	resolver := plans.NewResolver(stubPlanSource{plans: map[string]plans.Plan{}})
	a := New(
		stubIdentity{user: identity.User{ID: "u1"}},
		stubSubs{sub: subscription.Subscription{UserID: "u1", PlanID: "ghost", Status: subscription.StatusActive}},
		resolver,
		books,
		[]domains.Fetcher{blog},
	)
	t.Cleanup(a.Close)

	a.Trigger()
	snap := awaitSnapshot(t, a)

	require.Equal(t, int64(1), books.calls.Load(), "mandatory domain still fetched")
	require.Equal(t, int64(0), blog.calls.Load(), "no optional domain fetched on an empty grant set")
	require.Equal(t, 1, snap.Stats.TotalBooks)
	require.Equal(t, 0, snap.Stats.BlogPosts)
	require.Empty(t, snap.Grants)
}

func TestDeterminism_RepeatedPasses(t *testing.T) {
	books := &stubBooks{result: domains.BooksResult{
		Result: domains.Result{Recent: []domains.ActivityItem{
			item(domains.DomainBooks, "b1", 2),
			item(domains.DomainBooks, "b2", 5),
		}},
	}}
	faq := &stubFetcher{domain: domains.DomainFAQ, result: domains.Result{
		Recent: []domains.ActivityItem{item(domains.DomainFAQ, "q1", 5), item(domains.DomainFAQ, "q2", 3)},
	}}

	a := newTestAggregator(t, proPlan(map[string]bool{domains.DomainFAQ: true}),
		books, []domains.Fetcher{faq})

	a.Trigger()
	first := awaitPass(t, a, 1)

	for i := 0; i < 5; i++ {
		a.Trigger()
		again := awaitPass(t, a, first.PassID+uint64(i)+1)
		require.Equal(t, len(first.Feed), len(again.Feed))
		for j := range first.Feed {
			require.Equal(t, first.Feed[j].Title, again.Feed[j].Title, "ordering must be identical across passes")
		}
		first = again
	}
}

func TestIdentityFailureIsTerminal(t *testing.T) {
	books := &stubBooks{}
	resolver := plans.NewResolver(stubPlanSource{plans: map[string]plans.Plan{}})
	a := New(
		stubIdentity{err: folioerrors.ErrIdentityUnavailable},
		stubSubs{sub: subscription.NoPlan("u1")},
		resolver,
		books,
		nil,
	)
	t.Cleanup(a.Close)

	a.Trigger()
	require.Eventually(t, func() bool {
		return errors.Is(a.LastError(), folioerrors.ErrIdentityUnavailable)
	}, 2*time.Second, 5*time.Millisecond)

	_, ok := a.Latest()
	require.False(t, ok, "terminal failure publishes no snapshot")
	require.Equal(t, int64(0), books.calls.Load(), "no fetch without identity")
}

func TestBooksFailureIsTerminal(t *testing.T) {
	books := &stubBooks{err: errors.New("disk on fire")}
	blog := &stubFetcher{domain: domains.DomainBlog, result: domains.Result{Stat: domains.DomainStat{Total: 1}}}

	a := newTestAggregator(t, proPlan(map[string]bool{domains.DomainBlog: true}),
		books, []domains.Fetcher{blog})
	a.Trigger()

	require.Eventually(t, func() bool {
		var fe *folioerrors.FetchError
		return errors.As(a.LastError(), &fe)
	}, 2*time.Second, 5*time.Millisecond)

	_, ok := a.Latest()
	require.False(t, ok)
}

func TestTerminalErrorKeepsPreviousSnapshot(t *testing.T) {
	books := &stubBooks{result: domains.BooksResult{Result: domains.Result{Stat: domains.DomainStat{Total: 2}}}}
	a := newTestAggregator(t, proPlan(nil), books, nil)

	a.Trigger()
	snap := awaitSnapshot(t, a)
	require.Equal(t, 2, snap.Stats.TotalBooks)

	books.err = errors.New("transient outage")
	a.Trigger()
	require.Eventually(t, func() bool { return a.LastError() != nil },
		2*time.Second, 5*time.Millisecond)

	kept, ok := a.Latest()
	require.True(t, ok, "previous good snapshot stays available")
	require.Equal(t, snap.PassID, kept.PassID)
}

func TestConcurrentTriggersCoalesce(t *testing.T) {
	books := &stubBooks{delay: 60 * time.Millisecond}
	a := newTestAggregator(t, proPlan(nil), books, nil)

	a.Trigger()
	// Burst while the first pass is in flight: exactly one trailing re-run.
	time.Sleep(10 * time.Millisecond)
	a.Trigger()
	a.Trigger()
	a.Trigger()

	require.Eventually(t, func() bool {
		s, ok := a.Latest()
		return ok && s.PassID == 4
	}, 2*time.Second, 5*time.Millisecond, "trailing run publishes under the latest requested pass id")

	// Settle, then verify the burst ran exactly one extra pass.
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int64(2), books.calls.Load())
}

func TestStaleResultsDiscarded(t *testing.T) {
	books := &stubBooks{
		delay:  40 * time.Millisecond,
		result: domains.BooksResult{Result: domains.Result{Stat: domains.DomainStat{Total: 1}}},
	}
	a := newTestAggregator(t, proPlan(nil), books, nil)

	a.Trigger()
	time.Sleep(5 * time.Millisecond)
	a.Trigger() // supersedes pass 1 while it is in flight

	snap := awaitSnapshot(t, a)
	require.Equal(t, uint64(2), snap.PassID, "superseded pass must never publish")
}

func TestLimitFromLatestPass(t *testing.T) {
	plan := plans.Plan{ID: "pro", Name: "Pro", Grants: []plans.FeatureGrant{
		{FeatureID: domains.DomainBlog, Enabled: true, Limit: plans.Unlimited()},
		{FeatureID: domains.DomainContact, Enabled: true, Limit: plans.LimitOf(3)},
		{FeatureID: domains.DomainEvents, Enabled: false, Limit: plans.LimitOf(10)},
	}}
	books := &stubBooks{}
	a := newTestAggregator(t, plan, books, nil)

	// Before any pass, limits resolve against the current plan.
	require.True(t, a.Limit(domains.DomainContact).Reached(3))

	a.Trigger()
	awaitSnapshot(t, a)

	// Unlimited is never reached, at any count.
	blogLimit := a.Limit(domains.DomainBlog)
	require.False(t, blogLimit.Reached(0))
	require.False(t, blogLimit.Reached(1<<40))

	require.True(t, a.Limit(domains.DomainContact).Reached(5))
	require.False(t, a.Limit(domains.DomainContact).Reached(2))

	// Disabled grants cap at zero regardless of their stored limit.
	require.True(t, a.Limit(domains.DomainEvents).Reached(0))
	require.True(t, a.Limit("unknown_resource").Reached(0))
}

type recordingBroadcaster struct {
	snaps atomic.Int64
}

func (r *recordingBroadcaster) BroadcastSnapshot(Snapshot) { r.snaps.Add(1) }

func TestBroadcastOnPublish(t *testing.T) {
	books := &stubBooks{}
	b := &recordingBroadcaster{}
	a := newTestAggregator(t, proPlan(nil), books, nil, WithBroadcaster(b))

	a.Trigger()
	awaitSnapshot(t, a)

	require.Eventually(t, func() bool { return b.snaps.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestMergeFeed(t *testing.T) {
	in := []domains.ActivityItem{
		item(domains.DomainContact, "c", 5),
		item(domains.DomainBooks, "b", 5),
		item(domains.DomainFAQ, "f", 9),
		item(domains.DomainBlog, "p", 5),
	}
	got := mergeFeed(in)
	require.Equal(t, []string{"f", "b", "p", "c"}, func() []string {
		titles := make([]string, len(got))
		for i, it := range got {
			titles[i] = it.Title
		}
		return titles
	}())

	require.Empty(t, mergeFeed(nil))

	var many []domains.ActivityItem
	for i := 1; i <= 20; i++ {
		many = append(many, item(domains.DomainBlog, fmt.Sprintf("p%d", i), i))
	}
	bounded := mergeFeed(many)
	require.Len(t, bounded, FeedLimit)
	require.Equal(t, "p20", bounded[0].Title)
}
