package orchestrator

import (
	"context"
	"errors"
)

// State is a step in one seed's lifecycle.
type State string

// Seed lifecycle states in order. Failed is terminal and means the seed was requeued.
const (
	StateClaimed   State = "claimed"
	StateLocked    State = "locked"
	StateFetched   State = "fetched"
	StatePersisted State = "persisted"
	StateExpanded  State = "expanded"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Outcome summarises how ProcessSeed ended.
type Outcome string

// Possible outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeContended Outcome = "contended"
	OutcomeRequeued  Outcome = "requeued"
)

// RetryPolicy says how many crawl attempts a seed gets and whether the token
// is refreshed between them.
type RetryPolicy struct {
	MaxAttempts    int
	RefreshBetween bool
}

// DefaultRetryPolicy tries twice with a token refresh in between.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, RefreshBetween: true}

type decision int

const (
	giveUp decision = iota
	retry
	refreshThenRetry
)

// attempt tracks one seed's retry state.
type attempt struct {
	policy RetryPolicy
	n      int
}

func newAttempt(policy RetryPolicy) *attempt {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &attempt{policy: policy, n: 1}
}

// after decides what happens once attempt n failed with err.
func (a *attempt) after(err error) decision {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return giveUp
	}
	if a.n >= a.policy.MaxAttempts {
		return giveUp
	}
	a.n++
	if a.policy.RefreshBetween {
		return refreshThenRetry
	}
	return retry
}
