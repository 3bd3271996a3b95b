// FILE: internal/settlement/settlement.go
// Package settlement implements C5 (spec.md §4.5): per-venue UTC
// settlement calendars answering "safe to open?" and "must close?" by
// time-to-settlement. Supplements spec.md with named calendar presets
// (SPEC_FULL.md §3) grounded on original_source's funding_schedule.py
// and spec.md §9's exchange-quirk table (Hyperliquid hourly vs the
// 3x-daily majority).
package settlement

import (
	"time"

	"github.com/riskforge/fundingarb/internal/venue"
)

// Calendar is one venue's settlement schedule.
type Calendar struct {
	// DailyUTCMinutes are minutes-since-midnight-UTC at which
	// settlement occurs, ascending.
	DailyUTCMinutes       []int
	PreSettlementBuffer   time.Duration
	PostSettlementDelay   time.Duration
}

// ThreeDailyCalendar matches Binance/Bybit/OKX/KuCoin/Gate/Bitget/
// MEXC/Phemex/BingX's 00:00/08:00/16:00 UTC schedule (spec.md §9).
func ThreeDailyCalendar(preBuffer, postDelay time.Duration) Calendar {
	return Calendar{
		DailyUTCMinutes:     []int{0, 8 * 60, 16 * 60},
		PreSettlementBuffer: preBuffer,
		PostSettlementDelay: postDelay,
	}
}

// HourlyCalendar matches Hyperliquid's 24-daily-slot schedule
// (spec.md §9).
func HourlyCalendar(preBuffer, postDelay time.Duration) Calendar {
	mins := make([]int, 24)
	for i := range mins {
		mins[i] = i * 60
	}
	return Calendar{DailyUTCMinutes: mins, PreSettlementBuffer: preBuffer, PostSettlementDelay: postDelay}
}

// NextSettlement returns the next settlement instant at or after now.
func (c Calendar) NextSettlement(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, m := range c.DailyUTCMinutes {
		t := midnight.Add(time.Duration(m) * time.Minute)
		if !t.Before(now) {
			return t
		}
	}
	// wrap to tomorrow's first slot
	return midnight.AddDate(0, 0, 1).Add(time.Duration(c.DailyUTCMinutes[0]) * time.Minute)
}

// LastSettlement returns the most recent settlement instant at or
// before now.
func (c Calendar) LastSettlement(now time.Time) time.Time {
	next := c.NextSettlement(now)
	// step back one slot
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var last time.Time
	for _, m := range c.DailyUTCMinutes {
		t := midnight.Add(time.Duration(m) * time.Minute)
		if t.Before(now) {
			last = t
		}
	}
	if last.IsZero() {
		// today's first slot hasn't happened yet: last was yesterday's
		yesterday := midnight.AddDate(0, 0, -1)
		lastM := c.DailyUTCMinutes[len(c.DailyUTCMinutes)-1]
		last = yesterday.Add(time.Duration(lastM) * time.Minute)
	}
	if next.Equal(last) { // defensive, should not happen
		return last
	}
	return last
}

// Status is the most-restrictive settlement-proximity classification
// across a set of venues (spec.md §4.5).
type Status string

const (
	StatusSettlementImminent Status = "SETTLEMENT_IMMINENT"
	StatusPostSettlement     Status = "POST_SETTLEMENT"
	StatusClosingWindow      Status = "CLOSING_WINDOW"
	StatusSafeToOpen         Status = "SAFE_TO_OPEN"
)

// Scheduler holds a calendar per venue.
type Scheduler struct {
	calendars map[venue.Id]Calendar
}

func NewScheduler(calendars map[venue.Id]Calendar) *Scheduler {
	return &Scheduler{calendars: calendars}
}

func (s *Scheduler) SetCalendar(v venue.Id, c Calendar) {
	if s.calendars == nil {
		s.calendars = make(map[venue.Id]Calendar)
	}
	s.calendars[v] = c
}

// Status computes the most-restrictive status across venues, per
// spec.md §4.5's precedence: SETTLEMENT_IMMINENT > POST_SETTLEMENT >
// CLOSING_WINDOW > SAFE_TO_OPEN.
func (s *Scheduler) Status(venues []venue.Id, now time.Time) Status {
	worst := StatusSafeToOpen
	rank := map[Status]int{
		StatusSafeToOpen:         0,
		StatusClosingWindow:      1,
		StatusPostSettlement:     2,
		StatusSettlementImminent: 3,
	}
	for _, v := range venues {
		cal, ok := s.calendars[v]
		if !ok {
			continue
		}
		next := cal.NextSettlement(now)
		last := cal.LastSettlement(now)
		timeToNext := next.Sub(now)
		timeSinceLast := now.Sub(last)

		var st Status
		switch {
		case timeToNext <= cal.PreSettlementBuffer:
			st = StatusSettlementImminent
		case timeSinceLast <= cal.PostSettlementDelay:
			st = StatusPostSettlement
		case timeToNext <= cal.PreSettlementBuffer+15*time.Minute:
			st = StatusClosingWindow
		default:
			st = StatusSafeToOpen
		}
		if rank[st] > rank[worst] {
			worst = st
		}
	}
	return worst
}

// MinTimeToSettlement returns the smallest time-to-next-settlement
// across the given venues.
func (s *Scheduler) MinTimeToSettlement(venues []venue.Id, now time.Time) time.Duration {
	min := time.Duration(1<<63 - 1)
	for _, v := range venues {
		cal, ok := s.calendars[v]
		if !ok {
			continue
		}
		d := cal.NextSettlement(now).Sub(now)
		if d < min {
			min = d
		}
	}
	return min
}

// ShouldOpen implements spec.md §4.5: requires SAFE_TO_OPEN and
// minimum-time-to-any-settlement >= minTimeHorizon.
func (s *Scheduler) ShouldOpen(venues []venue.Id, now time.Time, minTimeHorizon time.Duration) bool {
	if s.Status(venues, now) != StatusSafeToOpen {
		return false
	}
	return s.MinTimeToSettlement(venues, now) >= minTimeHorizon
}

// ShouldClose implements spec.md §4.5: forces close on
// SETTLEMENT_IMMINENT always, and on CLOSING_WINDOW once
// positionAge >= minHold.
func (s *Scheduler) ShouldClose(venues []venue.Id, now time.Time, positionAge, minHold time.Duration) bool {
	status := s.Status(venues, now)
	if status == StatusSettlementImminent {
		return true
	}
	if status == StatusClosingWindow && positionAge >= minHold {
		return true
	}
	return false
}
