// Package dashboard orchestrates aggregation passes: entitlement
// resolution, gated fan-out to the domain fetchers, partial-failure
// tolerant fan-in, and the merged bounded activity feed.
package dashboard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/openfolio/folio/internal/domains"
	folioerrors "github.com/openfolio/folio/internal/errors"
	"github.com/openfolio/folio/internal/identity"
	"github.com/openfolio/folio/internal/metrics"
	"github.com/openfolio/folio/internal/subscription"
	"github.com/openfolio/folio/pkg/plans"
)

// FeedLimit bounds the merged activity feed, independent of how many
// domains are enabled or how much each one returns.
const FeedLimit = 5

const defaultFetchTimeout = 5 * time.Second

// DomainError records one degraded domain for observability. Non-terminal:
// the rest of the pass is unaffected.
type DomainError struct {
	Domain  string `json:"domain"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Snapshot is one pass's presenter-facing output. It is rebuilt wholesale
// every pass; there is no incremental update.
type Snapshot struct {
	Stats       Stats                  `json:"stats"`
	Feed        []domains.ActivityItem `json:"feed"`
	Grants      []plans.FeatureGrant   `json:"grants"`
	Errors      []DomainError          `json:"errors,omitempty"`
	PassID      uint64                 `json:"passId"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// SubscriptionProvider is the slice of the subscription provider the
// aggregator needs.
type SubscriptionProvider interface {
	Current() subscription.Subscription
}

// BooksFetcher is the mandatory two-stage books/views fetch.
type BooksFetcher interface {
	Fetch(ctx context.Context, userID string) (domains.BooksResult, error)
}

// Broadcaster pushes published snapshots to connected presenters.
type Broadcaster interface {
	BroadcastSnapshot(Snapshot)
}

// Aggregator runs aggregation passes. Triggers are serialized: at most one
// pass is in flight, and triggers arriving mid-pass coalesce into exactly
// one trailing re-run. Results are applied only when their pass is still
// the latest requested at completion time.
type Aggregator struct {
	ident    identity.Source
	subs     SubscriptionProvider
	resolver *plans.Resolver
	books    BooksFetcher
	optional []domains.Fetcher

	broadcaster  Broadcaster
	passMetrics  *metrics.PassMetrics
	fetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	passSeq   uint64
	running   bool
	pending   bool
	closed    bool
	latest    Snapshot
	hasLatest bool
	lastErr   error
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBroadcaster wires snapshot push delivery.
func WithBroadcaster(b Broadcaster) Option {
	return func(a *Aggregator) { a.broadcaster = b }
}

// WithMetrics wires Prometheus instrumentation.
func WithMetrics(m *metrics.PassMetrics) Option {
	return func(a *Aggregator) { a.passMetrics = m }
}

// WithFetchTimeout sets the per-domain fetch budget.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.fetchTimeout = d
		}
	}
}

// New creates an aggregator. optional is the set of entitlement-gated
// fetchers; the mandatory books fetcher is passed separately because it
// runs on every pass regardless of plan.
func New(ident identity.Source, subs SubscriptionProvider, resolver *plans.Resolver, books BooksFetcher, optional []domains.Fetcher, opts ...Option) *Aggregator {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Aggregator{
		ident:        ident,
		subs:         subs,
		resolver:     resolver,
		books:        books,
		optional:     optional,
		fetchTimeout: defaultFetchTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Trigger requests a pass. Safe to call from any goroutine. If a pass is
// already running, exactly one re-run is scheduled for after it settles.
func (a *Aggregator) Trigger() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.passSeq++
	if a.running {
		a.pending = true
		a.mu.Unlock()
		return
	}
	a.running = true
	id := a.passSeq
	a.mu.Unlock()

	go a.passLoop(id)
}

// Latest returns the most recently published snapshot.
func (a *Aggregator) Latest() (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest, a.hasLatest
}

// LastError returns the terminal error of the most recent pass, if any.
// Non-terminal domain failures never show up here; they are carried inside
// the snapshot.
func (a *Aggregator) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Limit returns the resolved cap for resourceID from the latest published
// pass. Before the first pass it resolves against the current plan.
func (a *Aggregator) Limit(resourceID string) plans.Limit {
	a.mu.Lock()
	hasLatest := a.hasLatest
	grants := a.latest.Grants
	a.mu.Unlock()

	if !hasLatest {
		return a.resolver.Grants(a.subs.Current().PlanID).Limit(resourceID)
	}
	for _, g := range grants {
		if g.FeatureID == resourceID {
			if !g.Enabled {
				return plans.LimitOf(0)
			}
			return g.Limit
		}
	}
	return plans.LimitOf(0)
}

// Close abandons any in-flight fetches and stops the aggregator. Results
// of abandoned passes are discarded.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.cancel()
}

// passLoop runs one pass, then any trailing coalesced re-run.
func (a *Aggregator) passLoop(id uint64) {
	for {
		snap, err := a.pass(id)

		a.mu.Lock()
		stale := id != a.passSeq
		if !a.closed && !stale {
			a.lastErr = err
			if err == nil {
				a.latest = snap
				a.hasLatest = true
			}
		}
		if a.pending && !a.closed {
			a.pending = false
			id = a.passSeq
			a.mu.Unlock()
			continue
		}
		a.running = false
		closed := a.closed
		a.mu.Unlock()

		if err == nil && !stale && !closed && a.broadcaster != nil {
			a.broadcaster.BroadcastSnapshot(snap)
		}
		return
	}
}

// fetchOutcome is one domain's result-or-error from the fan-out.
type fetchOutcome struct {
	domain string
	result domains.Result
	views  int64
	err    *folioerrors.FetchError
}

// pass executes one full aggregation pass.
func (a *Aggregator) pass(id uint64) (Snapshot, error) {
	start := time.Now()
	passLog := log.With().Uint64("pass", id).Str("correlation", ulid.Make().String()).Logger()

	user, err := a.ident.CurrentUser(a.ctx)
	if err != nil {
		passLog.Error().Err(err).Msg("Aggregation pass aborted: identity unavailable")
		a.passMetrics.ObservePass("identity_unavailable", time.Since(start), 0)
		return Snapshot{}, err
	}

	// One plan snapshot and one grant resolution serve the whole pass.
	planID := a.subs.Current().PlanID
	grants := a.resolver.Grants(planID)
	if len(grants.Grants()) == 0 && planID != subscription.FreePlanID {
		passLog.Warn().Str("plan", planID).Msg("Unknown plan; proceeding with empty grant set")
	}

	enabled := make([]domains.Fetcher, 0, len(a.optional))
	for _, f := range a.optional {
		if grants.Enabled(f.Domain()) {
			enabled = append(enabled, f)
		}
	}

	outcomes := make(chan fetchOutcome, 1+len(enabled))
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(a.ctx, a.fetchTimeout)
		defer cancel()
		res, err := a.books.Fetch(ctx, user.ID)
		if err != nil {
			outcomes <- fetchOutcome{
				domain: domains.DomainBooks,
				err:    folioerrors.NewFetchError("fetch_books", domains.DomainBooks, err),
			}
			return
		}
		outcomes <- fetchOutcome{domain: domains.DomainBooks, result: res.Result, views: res.Views}
	}()

	for _, f := range enabled {
		wg.Add(1)
		go func(f domains.Fetcher) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(a.ctx, a.fetchTimeout)
			defer cancel()
			res, err := f.Fetch(ctx, user.ID)
			if err != nil {
				outcomes <- fetchOutcome{
					domain: f.Domain(),
					err:    folioerrors.NewFetchError("fetch_"+f.Domain(), f.Domain(), err),
				}
				return
			}
			outcomes <- fetchOutcome{domain: f.Domain(), result: res}
		}(f)
	}

	wg.Wait()
	close(outcomes)

	snap := Snapshot{
		Grants:      grants.Grants(),
		PassID:      id,
		GeneratedAt: time.Now(),
	}

	var working []domains.ActivityItem
	for out := range outcomes {
		if out.err != nil {
			if out.domain == domains.DomainBooks {
				// The mandatory domain failing fails the pass outright.
				passLog.Error().Err(out.err).Msg("Aggregation pass aborted: books fetch failed")
				a.passMetrics.ObservePass("books_failed", time.Since(start), 0)
				return Snapshot{}, out.err
			}
			passLog.Warn().Err(out.err).Str("domain", out.domain).Msg("Domain fetch failed; degrading to zero contribution")
			a.passMetrics.RecordFetchError(out.domain, string(out.err.Type))
			snap.Errors = append(snap.Errors, DomainError{
				Domain:  out.domain,
				Type:    string(out.err.Type),
				Message: out.err.Error(),
			})
			continue
		}
		snap.Stats.apply(out.domain, out.result.Stat)
		if out.domain == domains.DomainBooks {
			snap.Stats.TotalViews = out.views
		}
		working = append(working, out.result.Recent...)
	}

	snap.Feed = mergeFeed(working)
	sortDomainErrors(snap.Errors)

	a.passMetrics.ObservePass("ok", time.Since(start), len(snap.Feed))
	passLog.Debug().
		Str("plan", planID).
		Int("enabledDomains", len(enabled)).
		Int("feedItems", len(snap.Feed)).
		Int("degradedDomains", len(snap.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("Aggregation pass complete")
	return snap, nil
}

// mergeFeed sorts heterogeneous recent items newest first, breaking
// timestamp ties by domain declaration order, and truncates to FeedLimit.
func mergeFeed(items []domains.ActivityItem) []domains.ActivityItem {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return domains.Rank(items[i].Domain) < domains.Rank(items[j].Domain)
	})
	if len(items) > FeedLimit {
		items = items[:FeedLimit]
	}
	out := make([]domains.ActivityItem, len(items))
	copy(out, items)
	return out
}

// sortDomainErrors keeps the degraded-domain list in declaration order so
// repeated passes report identically.
func sortDomainErrors(errs []DomainError) {
	sort.Slice(errs, func(i, j int) bool {
		return domains.Rank(errs[i].Domain) < domains.Rank(errs[j].Domain)
	})
}
