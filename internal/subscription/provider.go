package subscription

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultCoalesceWindow = 250 * time.Millisecond

// Provider holds the current subscription snapshot, refreshes it from the
// store on change notifications, and exposes derived predicates.
//
// Change events are coalesced: a burst of Notify calls within the quiet
// window collapses into one Refresh and one round of OnChange callbacks,
// so billing webhooks that fire several row updates per transition trigger
// a single downstream recompute.
type Provider struct {
	store  Store
	userID string
	window time.Duration

	mu        sync.RWMutex
	current   Subscription
	callbacks []func()

	notifyCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	nowFn func() time.Time
}

// NewProvider creates a provider for userID over store. window <= 0 uses
// the default quiet period. The initial snapshot is the NoPlan sentinel
// until the first Refresh.
func NewProvider(store Store, userID string, window time.Duration) *Provider {
	if window <= 0 {
		window = defaultCoalesceWindow
	}
	p := &Provider{
		store:    store,
		userID:   userID,
		window:   window,
		current:  NoPlan(userID),
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		nowFn:    time.Now,
	}
	go p.run()
	return p
}

// Current returns the subscription snapshot. Never absent: before the
// first successful refresh, and for users without a subscription row, it
// is the NoPlan sentinel.
func (p *Provider) Current() Subscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// OnChange registers fn to run after each coalesced change event. fn runs
// on the provider's goroutine and must not block.
func (p *Provider) OnChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, fn)
}

// Notify records one raw change event from the transport. Safe to call
// from any goroutine; bursts collapse into a single downstream trigger.
func (p *Provider) Notify() {
	select {
	case p.notifyCh <- struct{}{}:
	default:
	}
}

// Refresh re-reads the store. On transport failure the previous snapshot
// is retained (fail-open) so a flaky store cannot flicker features off;
// the error is returned for observability only.
func (p *Provider) Refresh(ctx context.Context) error {
	sub, err := p.store.Subscription(ctx, p.userID)
	if errors.Is(err, ErrNoSubscription) {
		sub = NoPlan(p.userID)
	} else if err != nil {
		log.Warn().Err(err).Str("user", p.userID).Msg("Subscription refresh failed; keeping last-known-good snapshot")
		return err
	}

	p.mu.Lock()
	p.current = sub
	p.mu.Unlock()
	return nil
}

// IsPro reports whether the user is on a paid plan that is currently active.
func (p *Provider) IsPro() bool {
	sub := p.Current()
	return sub.PlanID != FreePlanID && sub.Status == StatusActive
}

// IsOnTrial reports whether the user is trialing with time remaining.
func (p *Provider) IsOnTrial() bool {
	sub := p.Current()
	return sub.Status == StatusTrialing && sub.TrialEndsAt.After(p.nowFn())
}

// TrialDaysLeft returns the remaining trial days, rounded up, floored at 0.
func (p *Provider) TrialDaysLeft() int {
	sub := p.Current()
	if sub.Status != StatusTrialing || sub.TrialEndsAt.IsZero() {
		return 0
	}
	remaining := sub.TrialEndsAt.Sub(p.nowFn())
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// Close stops the coalescing goroutine.
func (p *Provider) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
}

func (p *Provider) run() {
	defer close(p.doneCh)

	var quiet *time.Timer
	var quietCh <-chan time.Time

	for {
		select {
		case <-p.notifyCh:
			// Start or extend the quiet window.
			if quiet == nil {
				quiet = time.NewTimer(p.window)
			} else {
				if !quiet.Stop() {
					select {
					case <-quiet.C:
					default:
					}
				}
				quiet.Reset(p.window)
			}
			quietCh = quiet.C

		case <-quietCh:
			quietCh = nil
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.Refresh(ctx); err != nil {
				log.Debug().Err(err).Msg("Coalesced refresh failed")
			}
			cancel()
			p.fireCallbacks()

		case <-p.stopCh:
			if quiet != nil {
				quiet.Stop()
			}
			return
		}
	}
}

func (p *Provider) fireCallbacks() {
	p.mu.RLock()
	callbacks := make([]func(), len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.RUnlock()

	for _, fn := range callbacks {
		fn()
	}
}
