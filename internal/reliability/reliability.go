// FILE: internal/reliability/reliability.go
// Package reliability implements C1 (spec.md §4.4): the ReliabilityGate
// that aggregates TimeSyncMonitor, CircuitBreakers and a TradingReadiness
// sub-module into a single CanTrade() predicate, plus the health-check
// loop original_source/hummingbot/core/utils/trading_readiness.py grounds.
// The on_ready/on_not_ready callback registry is grounded on
// hummingbot/core/pubsub.py's narrow publish/subscribe-by-name shape
// (SPEC_FULL.md §3), not a generic message broker.
package reliability

import (
	"sync"
	"time"

	"github.com/riskforge/fundingarb/internal/breaker"
	"github.com/riskforge/fundingarb/internal/ratelimit"
	"github.com/riskforge/fundingarb/internal/timesync"
	"github.com/riskforge/fundingarb/internal/venue"
)

// HealthLevel is the coarse severity TradingReadiness assigns to each
// sub-check (spec.md §4.4).
type HealthLevel string

const (
	HealthOK       HealthLevel = "OK"
	HealthWarning  HealthLevel = "WARNING"
	HealthCritical HealthLevel = "CRITICAL"
)

// MarginHealthLookup lets TradingReadiness ask C8 (MarginMonitor) for
// the worst margin health across venues without importing the margin
// package directly (avoiding the cyclic reference spec.md §9 calls out).
type MarginHealthLookup func() (worst HealthLevel, reason string)

// ResourceLookup reports system resource utilization as fractions
// (0.0-1.0) of CPU/mem/disk, used for the 95% CRITICAL threshold; no
// 90% warning level is evaluated.
type ResourceLookup func() (cpu, mem, disk float64)

// CustomCheck is a registered extra readiness predicate.
type CustomCheck func() (ok bool, level HealthLevel, reason string)

// defaultConnectionTimeout is the staleness threshold for a (venue, channel)
// connection to be considered CRITICAL.
const defaultConnectionTimeout = 30 * time.Second

// TradingReadiness evaluates connections, margins, system resources,
// and custom checks on each Evaluate call (spec.md §4.4); it runs no
// loop of its own.
type TradingReadiness struct {
	mu          sync.Mutex
	connections map[string]venue.ConnectionStatus // key: venue|channel
	marginCheck MarginHealthLookup
	resources   ResourceLookup
	custom      []CustomCheck
	connTimeout time.Duration

	isReady  bool
	onReady  []func()
	onNotRdy []func(reason string)
}

func NewTradingReadiness(marginCheck MarginHealthLookup, resources ResourceLookup) *TradingReadiness {
	return &TradingReadiness{
		connections: make(map[string]venue.ConnectionStatus),
		marginCheck: marginCheck,
		resources:   resources,
		connTimeout: defaultConnectionTimeout,
		isReady:     true,
	}
}

func connKey(v venue.Id, ch venue.Channel) string { return string(v) + "|" + string(ch) }

// UpdateConnection records the latest observed ConnectionStatus for a
// (venue, channel) pair.
func (t *TradingReadiness) UpdateConnection(cs venue.ConnectionStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connections[connKey(cs.Venue, cs.Channel)] = cs
}

// RegisterCustomCheck adds a custom readiness predicate.
func (t *TradingReadiness) RegisterCustomCheck(c CustomCheck) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.custom = append(t.custom, c)
}

// OnReady/OnNotReady register edge-triggered callbacks fired exactly
// once per transition (spec.md §4.4).
func (t *TradingReadiness) OnReady(fn func())               { t.onReady = append(t.onReady, fn) }
func (t *TradingReadiness) OnNotReady(fn func(reason string)) { t.onNotRdy = append(t.onNotRdy, fn) }

// Evaluate runs every sub-check and returns CanTrade's readiness leg:
// (is_ready, reason). It also fires on_ready/on_not_ready on edges.
func (t *TradingReadiness) Evaluate(now time.Time) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, cs := range t.connections {
		stale := now.Sub(cs.LastSeen) > t.connTimeout
		if cs.State == venue.ConnStateError || stale {
			t.transitionLocked(false, "connection_critical:"+key)
			return false, "connection_critical:" + key
		}
	}

	if t.marginCheck != nil {
		if level, reason := t.marginCheck(); level == HealthCritical {
			t.transitionLocked(false, "margin_critical:"+reason)
			return false, "margin_critical:" + reason
		}
	}

	if t.resources != nil {
		cpu, mem, disk := t.resources()
		if cpu >= 0.95 || mem >= 0.95 || disk >= 0.95 {
			t.transitionLocked(false, "resource_critical")
			return false, "resource_critical"
		}
	}

	for _, c := range t.custom {
		if ok, level, reason := c(); !ok && level == HealthCritical {
			t.transitionLocked(false, "custom_check:"+reason)
			return false, "custom_check:" + reason
		}
	}

	t.transitionLocked(true, "")
	return true, ""
}

// transitionLocked fires callbacks on an edge-triggered ready/not-ready
// change. Caller holds t.mu.
func (t *TradingReadiness) transitionLocked(ready bool, reason string) {
	if ready == t.isReady {
		return
	}
	t.isReady = ready
	if ready {
		for _, fn := range t.onReady {
			fn()
		}
	} else {
		for _, fn := range t.onNotRdy {
			fn(reason)
		}
	}
}

// Gate is C1: it aggregates TimeSyncMonitor, CircuitBreakers, and
// TradingReadiness into CanTrade() per spec.md §4.4's exact order:
// time-drift, then circuit breakers, then readiness.
type Gate struct {
	timeSync  *timesync.Monitor
	breakers  *breaker.Registry
	readiness *TradingReadiness
	limiter   *ratelimit.Limiter
}

func NewGate(ts *timesync.Monitor, br *breaker.Registry, tr *TradingReadiness, lim *ratelimit.Limiter) *Gate {
	return &Gate{timeSync: ts, breakers: br, readiness: tr, limiter: lim}
}

// CanTrade implements spec.md §4.4's exact algorithm.
func (g *Gate) CanTrade(now time.Time) (bool, string) {
	if !g.timeSync.TradingAllowed() {
		return false, "time_drift"
	}
	if ok, reason := g.breakers.CanTrade(now); !ok {
		return false, reason
	}
	if ok, reason := g.readiness.Evaluate(now); !ok {
		return false, reason
	}
	return true, "ok"
}

// CanPassRateLimit is the non-blocking rate-limit check spec.md §4.4
// names alongside CanTrade.
func (g *Gate) CanPassRateLimit(v venue.Id, class ratelimit.ChannelClass, n float64) bool {
	return g.limiter.CanPassRateLimit(ratelimit.VenueId(v), class, n)
}
