// Package retry drives a single remote item through its retry states:
// Pending -> Retrying(n) -> Synced | Error.
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catalogsync/internal/catalog"

	"github.com/cenkalti/backoff/v4"
)

type State int

const (
	Pending State = iota
	Retrying
	Synced
	Error
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Retrying:
		return "retrying"
	case Synced:
		return "synced"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Policy struct {
	// MaxAttempts counts every call that reached the remote side, including
	// the first one.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// MaxElapsed is the hard ceiling on time spent retrying one item.
	MaxElapsed time.Duration
	// Jitter is the randomization factor applied to each delay.
	Jitter float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		MaxElapsed:  5 * time.Minute,
		Jitter:      0.5,
	}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()
	return b
}

// Outcome is the terminal state of one item.
type Outcome struct {
	State    State
	Attempts int
	// Last is the final remote result.
	Last            catalog.Result
	Reauthenticated bool
	Exhausted       bool
	// Interrupted is set when ctx ended during a backoff. State is then
	// Pending and Err holds the context error.
	Interrupted bool
	Err         error
}

// Machine applies a Policy to items. It is safe for concurrent use.
type Machine struct {
	policy    Policy
	refresher *Refresher
}

func NewMachine(policy Policy, refresher *Refresher) *Machine {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Machine{policy: policy, refresher: refresher}
}

func (m *Machine) Refresher() *Refresher {
	return m.refresher
}

// Run starts from the result of the first attempt, made while the refresher
// was at generation gen, and reissues attempt until the item reaches Synced
// or Error, or ctx ends while waiting to retry.
func (m *Machine) Run(ctx context.Context, first catalog.Result, gen uint64, attempt func(ctx context.Context) catalog.Result) Outcome {
	out := Outcome{State: Pending, Attempts: 1, Last: first}
	b := m.policy.backOff()
	reauthUsed := false

	for {
		switch out.Last.Class {
		case catalog.Success:
			out.State = Synced
			return out

		case catalog.NonRetryable:
			out.State = Error
			return out

		case catalog.AuthExpired:
			if !reauthUsed && m.refresher != nil {
				reauthUsed = true
				if err := m.refresher.Refresh(ctx, gen); err == nil {
					out.Reauthenticated = true
					gen = m.refresher.Generation()
					out.Last = attempt(ctx)
					continue
				}
			}
			// Escalates to an ordinary transient failure.
			out.Last.Class = catalog.Retryable
			continue

		case catalog.Retryable:
			if out.Attempts >= m.policy.MaxAttempts {
				out.State = Error
				out.Exhausted = true
				return out
			}
			delay := b.NextBackOff()
			if delay == backoff.Stop {
				out.State = Error
				out.Exhausted = true
				return out
			}
			out.State = Retrying
			if err := sleep(ctx, delay); err != nil {
				out.State = Pending
				out.Interrupted = true
				out.Err = err
				return out
			}
			out.Attempts++
			if m.refresher != nil {
				gen = m.refresher.Generation()
			}
			out.Last = attempt(ctx)

		default:
			out.State = Error
			return out
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Refresher shares one credential refresh among concurrent workers. A worker
// that saw an auth failure at generation g only triggers a refresh if nobody
// refreshed since g.
type Refresher struct {
	mu      sync.Mutex
	gen     uint64
	lastErr error
	auth    func(ctx context.Context) error
}

func NewRefresher(auth func(ctx context.Context) error) *Refresher {
	return &Refresher{auth: auth}
}

func (r *Refresher) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *Refresher) Refresh(ctx context.Context, seen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != seen {
		return r.lastErr
	}
	r.lastErr = r.auth(ctx)
	r.gen++
	return r.lastErr
}
