package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestBucketAcquireWithinCapacity(t *testing.T) {
	b := NewBucket(10, 1)
	if !b.Acquire(context.Background(), 5, false, time.Second) {
		t.Fatal("acquiring within capacity should succeed immediately")
	}
	snap := b.Snapshot()
	if snap.TokensAvailable > 5.5 {
		t.Errorf("expected ~5 tokens remaining, got %v", snap.TokensAvailable)
	}
}

func TestBucketAcquireTimesOut(t *testing.T) {
	b := NewBucket(1, 0.01) // near-zero refill
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if !b.Acquire(ctx, 1, false, 50*time.Millisecond) {
		t.Fatal("first acquisition should drain the full bucket")
	}
	if b.Acquire(ctx, 1, false, 50*time.Millisecond) {
		t.Fatal("second acquisition should time out with an empty, slow-refilling bucket")
	}
}

func TestBucketUtilizationBounds(t *testing.T) {
	b := NewBucket(10, 1)
	snap := b.Snapshot()
	if snap.Utilization != 0 {
		t.Errorf("fresh bucket should report 0 utilization, got %v", snap.Utilization)
	}
	b.Acquire(context.Background(), 10, false, time.Second)
	snap = b.Snapshot()
	if snap.Utilization < 0.99 {
		t.Errorf("drained bucket should report ~1.0 utilization, got %v", snap.Utilization)
	}
}

func TestLimiterPerVenueIsolated(t *testing.T) {
	l := NewLimiter(DefaultTunables(), nil)
	l.Acquire(context.Background(), "binance", ChannelOrder, 50, false, time.Second)
	if !l.CanPassRateLimit("bybit", ChannelOrder, 40) {
		t.Fatal("draining binance's order bucket must not affect bybit's independent bucket")
	}
}

func TestLimiterCanPassRateLimitNonConsuming(t *testing.T) {
	l := NewLimiter(DefaultTunables(), nil)
	before := l.Snapshot("binance", ChannelFunding).TokensAvailable
	l.CanPassRateLimit("binance", ChannelFunding, 5)
	after := l.Snapshot("binance", ChannelFunding).TokensAvailable
	if before != after {
		t.Errorf("CanPassRateLimit must not consume tokens: before=%v after=%v", before, after)
	}
}
