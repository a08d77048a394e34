// Package subscription holds the current user's subscription snapshot and
// relays change notifications to the rest of the core.
package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is the subscription lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// Subscription is one user's subscription snapshot. It is owned by the
// Provider and mutated only by external change events; everything else
// reads it by value.
type Subscription struct {
	UserID      string    `json:"userId"`
	PlanID      string    `json:"planId"`
	Status      Status    `json:"status"`
	TrialEndsAt time.Time `json:"trialEndsAt,omitzero"`
}

// FreePlanID is the plan id of the sentinel no-plan subscription.
const FreePlanID = "free"

// NoPlan returns the sentinel subscription used when the store has no row
// for the user. Current() never reports an absent subscription.
func NoPlan(userID string) Subscription {
	return Subscription{UserID: userID, PlanID: FreePlanID, Status: StatusActive}
}

// Store reads subscription rows. The core never writes them; billing owns
// that table.
type Store interface {
	Subscription(ctx context.Context, userID string) (Subscription, error)
}

// ErrNoSubscription reports that the user has no subscription row. The
// Provider substitutes the NoPlan sentinel for it.
var ErrNoSubscription = errors.New("no subscription")

// DBStore reads the subscriptions table.
type DBStore struct {
	db *sql.DB
}

// NewDBStore creates a store over db.
func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{db: db}
}

// Subscription returns the row for userID, or ErrNoSubscription.
func (s *DBStore) Subscription(ctx context.Context, userID string) (Subscription, error) {
	var (
		sub       Subscription
		trialEnds sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, plan_id, status, trial_ends_at FROM subscriptions WHERE user_id = ?`,
		userID,
	).Scan(&sub.UserID, &sub.PlanID, &sub.Status, &trialEnds)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNoSubscription
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("read subscription for %s: %w", userID, err)
	}
	if trialEnds.Valid {
		sub.TrialEndsAt = trialEnds.Time
	}
	return sub, nil
}
