package reliability

import (
	"testing"
	"time"

	"github.com/riskforge/fundingarb/internal/venue"
)

func TestTradingReadinessConnectionCritical(t *testing.T) {
	tr := NewTradingReadiness(nil, nil)
	now := time.Now()
	tr.UpdateConnection(venue.ConnectionStatus{Venue: "binance", Channel: venue.ChannelWebSocket, State: venue.ConnStateError, LastSeen: now})
	ok, reason := tr.Evaluate(now)
	if ok {
		t.Fatal("an ERROR connection must block readiness")
	}
	if reason == "" {
		t.Error("expected a non-empty reason")
	}
}

func TestTradingReadinessStaleConnection(t *testing.T) {
	tr := NewTradingReadiness(nil, nil)
	old := time.Now().Add(-time.Minute)
	tr.UpdateConnection(venue.ConnectionStatus{Venue: "binance", Channel: venue.ChannelWebSocket, State: venue.ConnStateOK, LastSeen: old})
	ok, _ := tr.Evaluate(time.Now())
	if ok {
		t.Fatal("a stale (> 30s) connection must block readiness even if last reported OK")
	}
}

func TestTradingReadinessMarginCritical(t *testing.T) {
	tr := NewTradingReadiness(func() (HealthLevel, string) { return HealthCritical, "liquidation_risk" }, nil)
	ok, reason := tr.Evaluate(time.Now())
	if ok {
		t.Fatal("CRITICAL margin health must block readiness")
	}
	if reason == "" {
		t.Error("expected a non-empty reason")
	}
}

func TestTradingReadinessHealthyByDefault(t *testing.T) {
	tr := NewTradingReadiness(nil, func() (float64, float64, float64) { return 0.1, 0.1, 0.1 })
	ok, _ := tr.Evaluate(time.Now())
	if !ok {
		t.Fatal("no connections, no margin check, low resource usage should be ready")
	}
}

func TestTradingReadinessEdgeTriggeredCallbacks(t *testing.T) {
	tr := NewTradingReadiness(nil, nil)
	var notReadyCount, readyCount int
	tr.OnNotReady(func(reason string) { notReadyCount++ })
	tr.OnReady(func() { readyCount++ })

	now := time.Now()
	tr.UpdateConnection(venue.ConnectionStatus{Venue: "binance", Channel: venue.ChannelWebSocket, State: venue.ConnStateError, LastSeen: now})
	tr.Evaluate(now)
	tr.Evaluate(now) // repeated not-ready evaluation must not refire
	if notReadyCount != 1 {
		t.Fatalf("OnNotReady should fire exactly once per transition, fired %d times", notReadyCount)
	}

	tr.UpdateConnection(venue.ConnectionStatus{Venue: "binance", Channel: venue.ChannelWebSocket, State: venue.ConnStateOK, LastSeen: now})
	tr.Evaluate(now)
	if readyCount != 1 {
		t.Fatalf("OnReady should fire exactly once on recovery, fired %d times", readyCount)
	}
}
