package subscription

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfolio/folio/internal/store"
)

type fakeStore struct {
	sub   Subscription
	err   error
	calls atomic.Int64
}

func (f *fakeStore) Subscription(ctx context.Context, userID string) (Subscription, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Subscription{}, f.err
	}
	return f.sub, nil
}

func newTestProvider(t *testing.T, fs *fakeStore, window time.Duration) *Provider {
	t.Helper()
	p := NewProvider(fs, "u1", window)
	t.Cleanup(p.Close)
	return p
}

func TestProvider_CurrentNeverAbsent(t *testing.T) {
	p := newTestProvider(t, &fakeStore{err: ErrNoSubscription}, 0)

	sub := p.Current()
	require.Equal(t, FreePlanID, sub.PlanID)
	require.Equal(t, StatusActive, sub.Status)

	// A user without a row keeps the sentinel after refresh too.
	require.NoError(t, p.Refresh(context.Background()))
	require.Equal(t, FreePlanID, p.Current().PlanID)
}

func TestProvider_StartupRefreshLoadsStoredPlan(t *testing.T) {
	fs := &fakeStore{sub: Subscription{UserID: "u1", PlanID: "pro", Status: StatusActive}}
	p := newTestProvider(t, fs, 0)

	// Before any refresh the snapshot is the free sentinel; a boot
	// sequence that reads Current here would gate every paid feature off.
	require.Equal(t, FreePlanID, p.Current().PlanID)

	require.NoError(t, p.Refresh(context.Background()))
	require.Equal(t, "pro", p.Current().PlanID)
	require.True(t, p.IsPro())
}

func TestProvider_RefreshFailOpen(t *testing.T) {
	fs := &fakeStore{sub: Subscription{UserID: "u1", PlanID: "pro", Status: StatusActive}}
	p := newTestProvider(t, fs, 0)

	require.NoError(t, p.Refresh(context.Background()))
	require.Equal(t, "pro", p.Current().PlanID)

	// A transport failure must not clear the snapshot.
	fs.err = errors.New("connection refused")
	err := p.Refresh(context.Background())
	require.Error(t, err)
	require.Equal(t, "pro", p.Current().PlanID)
}

func TestProvider_Predicates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		sub       Subscription
		isPro     bool
		isOnTrial bool
		daysLeft  int
	}{
		{
			name:  "active_paid_plan_is_pro",
			sub:   Subscription{PlanID: "pro", Status: StatusActive},
			isPro: true,
		},
		{
			name: "free_plan_is_not_pro",
			sub:  Subscription{PlanID: FreePlanID, Status: StatusActive},
		},
		{
			name: "expired_paid_plan_is_not_pro",
			sub:  Subscription{PlanID: "pro", Status: StatusExpired},
		},
		{
			name:      "trialing_with_time_left",
			sub:       Subscription{PlanID: "pro", Status: StatusTrialing, TrialEndsAt: now.Add(36 * time.Hour)},
			isOnTrial: true,
			daysLeft:  2, // 1.5 days rounds up
		},
		{
			name: "trial_already_over",
			sub:  Subscription{PlanID: "pro", Status: StatusTrialing, TrialEndsAt: now.Add(-time.Hour)},
		},
		{
			name: "active_plan_with_stale_trial_date",
			sub:  Subscription{PlanID: "pro", Status: StatusActive, TrialEndsAt: now.Add(48 * time.Hour)},
			// status gate: not trialing, so no trial days
			isPro: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeStore{sub: tt.sub}
			p := newTestProvider(t, fs, 0)
			p.nowFn = func() time.Time { return now }
			require.NoError(t, p.Refresh(context.Background()))

			require.Equal(t, tt.isPro, p.IsPro(), "IsPro")
			require.Equal(t, tt.isOnTrial, p.IsOnTrial(), "IsOnTrial")
			require.Equal(t, tt.daysLeft, p.TrialDaysLeft(), "TrialDaysLeft")
		})
	}
}

func TestProvider_CoalescesBursts(t *testing.T) {
	fs := &fakeStore{sub: Subscription{UserID: "u1", PlanID: "pro", Status: StatusActive}}
	p := newTestProvider(t, fs, 30*time.Millisecond)

	var fired atomic.Int64
	p.OnChange(func() { fired.Add(1) })

	for i := 0; i < 10; i++ {
		p.Notify()
	}

	require.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 10*time.Millisecond, "burst should coalesce into one trigger")

	// Hold the quiet window; no further firings from the same burst.
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int64(1), fired.Load())

	// A later event triggers again.
	p.Notify()
	require.Eventually(t, func() bool { return fired.Load() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestDBStore(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, store.EnsureSchema(db))

	_, err = db.Exec(`INSERT INTO users (id, email) VALUES ('u1', 'a@b.c')`)
	require.NoError(t, err)

	s := NewDBStore(db)

	_, err = s.Subscription(context.Background(), "u1")
	require.True(t, errors.Is(err, ErrNoSubscription))

	trialEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err = db.Exec(`INSERT INTO subscriptions (user_id, plan_id, status, trial_ends_at) VALUES ('u1', 'pro', 'trialing', ?)`, trialEnd)
	require.NoError(t, err)

	sub, err := s.Subscription(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "pro", sub.PlanID)
	require.Equal(t, StatusTrialing, sub.Status)
	require.True(t, sub.TrialEndsAt.Equal(trialEnd))
}
