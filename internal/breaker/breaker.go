// FILE: internal/breaker/breaker.go
// Package breaker implements C4 (spec.md §4.3): typed circuit breakers
// (ErrorSeries, HedgeDeviation, OrderCancel) with CLOSED/OPEN/HALF_OPEN
// states and a global kill switch. Grounded on
// kasyap1234-delta-go/go/pkg/risk/manager.go's CanTrade() (bool, string)
// predicate and its drawdown-triggered "isCircuitBroken" flag, here
// generalized from one ad-hoc drawdown breaker into the sliding-window
// failure-count state machine spec.md §4.3 specifies.
package breaker

import (
	"sync"
	"time"
)

// Kind names one of the three built-in breaker kinds.
type Kind string

const (
	KindErrorSeries    Kind = "ErrorSeries"
	KindHedgeDeviation Kind = "HedgeDeviation"
	KindOrderCancel    Kind = "OrderCancel"
)

// State is the breaker's current position in the state machine.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config holds the thresholds spec.md §3's CircuitBreaker value names.
type Config struct {
	WindowSeconds     int64
	FailureThreshold  int
	SuccessThreshold  int
	TimeoutSeconds    int64
}

// failureEvent is one timestamped failure inside the sliding window.
type failureEvent struct {
	at time.Time
}

// Breaker is one typed circuit breaker instance.
type Breaker struct {
	kind Kind
	cfg  Config

	mu              sync.Mutex
	state           State
	failures        []failureEvent
	successStreak   int
	tripTime        time.Time
}

func New(kind Kind, cfg Config) *Breaker {
	return &Breaker{kind: kind, cfg: cfg, state: StateClosed}
}

func (b *Breaker) Kind() Kind { return b.kind }

// pruneLocked drops failure events outside the sliding window. Caller
// holds b.mu.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Duration(b.cfg.WindowSeconds) * time.Second)
	i := 0
	for ; i < len(b.failures); i++ {
		if b.failures[i].at.After(cutoff) {
			break
		}
	}
	b.failures = b.failures[i:]
}

// RecordFailure counts a failure inside the sliding window. Successes
// decrement the count toward 0 but never below 0 — modeled here as
// pruning old events plus an explicit RecordSuccess call, since a
// pure sliding window already naturally forgets old failures; the
// "successes decrement" rule is implemented by RecordSuccess dropping
// the single oldest failure, keeping both rules satisfiable without
// double-bookkeeping.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(now)
	b.failures = append(b.failures, failureEvent{at: now})
	b.successStreak = 0

	switch b.state {
	case StateClosed:
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.tripTime = now
		}
	case StateHalfOpen:
		// a single failure in HALF_OPEN re-trips to OPEN
		b.state = StateOpen
		b.tripTime = now
	}
}

// RecordSuccess decrements the failure count toward 0 (by dropping the
// oldest recorded failure) and, in HALF_OPEN, counts toward the
// success_threshold needed to close.
func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(now)
	if len(b.failures) > 0 {
		b.failures = b.failures[1:]
	}
	if b.state == StateHalfOpen {
		b.successStreak++
		if b.successStreak >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.successStreak = 0
			b.failures = nil
		}
	}
}

// CanExecute evaluates the breaker's state, transitioning OPEN ->
// HALF_OPEN when timeout_seconds has elapsed since trip_time, per
// spec.md §4.3. This mutates state (the transition check must happen
// "on next CanExecute call"), so it takes the lock.
func (b *Breaker) CanExecute(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if now.Sub(b.tripTime) >= time.Duration(b.cfg.TimeoutSeconds)*time.Second {
			b.state = StateHalfOpen
			b.successStreak = 0
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to CLOSED, used for manual operator
// recovery and tests.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = nil
	b.successStreak = 0
}

// Registry owns the three built-in breakers plus the global kill
// switch, and implements CanTrade() per spec.md §4.3:
//
//	CanTrade() = global_kill_switch_off
//	           ∧ ErrorSeries.CanExecute
//	           ∧ HedgeDeviation.CanExecute
//	           ∧ OrderCancel.CanExecute
//
// A tripped HedgeDeviation breaker activates the global kill switch.
type Registry struct {
	mu             sync.Mutex
	ErrorSeries    *Breaker
	HedgeDeviation *Breaker
	OrderCancel    *Breaker
	killSwitch     bool
}

func NewRegistry(errCfg, hedgeCfg, cancelCfg Config) *Registry {
	return &Registry{
		ErrorSeries:    New(KindErrorSeries, errCfg),
		HedgeDeviation: New(KindHedgeDeviation, hedgeCfg),
		OrderCancel:    New(KindOrderCancel, cancelCfg),
	}
}

// RecordHedgeDeviationFailure trips the HedgeDeviation breaker and, if
// that trip opens the breaker, activates the global kill switch.
func (r *Registry) RecordHedgeDeviationFailure(now time.Time) {
	r.HedgeDeviation.RecordFailure(now)
	if r.HedgeDeviation.State() == StateOpen {
		r.mu.Lock()
		r.killSwitch = true
		r.mu.Unlock()
	}
}

// ActivateKillSwitch trips the global kill switch directly, for
// callers outside the breaker state machine that detect a critical
// condition themselves — the reconciler (C9) sets this on its
// three-CRITICAL-discrepancies emergency stop (spec.md §4.9).
func (r *Registry) ActivateKillSwitch() {
	r.mu.Lock()
	r.killSwitch = true
	r.mu.Unlock()
}

// ClearKillSwitch is the manual-clear operation spec.md §4.3 requires
// ("Global kill switch short-circuits all CanExecute to false until
// manually cleared").
func (r *Registry) ClearKillSwitch() {
	r.mu.Lock()
	r.killSwitch = false
	r.mu.Unlock()
}

func (r *Registry) KillSwitchActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killSwitch
}

// CanTrade aggregates all three breakers plus the kill switch.
func (r *Registry) CanTrade(now time.Time) (bool, string) {
	if r.KillSwitchActive() {
		return false, "kill_switch"
	}
	if !r.ErrorSeries.CanExecute(now) {
		return false, "circuit_breaker:ErrorSeries"
	}
	if !r.HedgeDeviation.CanExecute(now) {
		return false, "circuit_breaker:HedgeDeviation"
	}
	if !r.OrderCancel.CanExecute(now) {
		return false, "circuit_breaker:OrderCancel"
	}
	return true, "ok"
}
