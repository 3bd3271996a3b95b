package settlement

import (
	"testing"
	"time"

	"github.com/riskforge/fundingarb/internal/venue"
)

func TestThreeDailyCalendarNextSettlement(t *testing.T) {
	cal := ThreeDailyCalendar(5*time.Minute, time.Minute)
	now := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	next := cal.NextSettlement(now)
	want := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("NextSettlement = %v, want %v", next, want)
	}
}

func TestThreeDailyCalendarWrapsToTomorrow(t *testing.T) {
	cal := ThreeDailyCalendar(5*time.Minute, time.Minute)
	now := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	next := cal.NextSettlement(now)
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("NextSettlement = %v, want %v", next, want)
	}
}

func TestStatusSettlementImminent(t *testing.T) {
	calendars := map[venue.Id]Calendar{
		"binance": ThreeDailyCalendar(5*time.Minute, time.Minute),
	}
	s := NewScheduler(calendars)
	now := time.Date(2026, 7, 31, 7, 57, 0, 0, time.UTC) // 3 min before 08:00
	status := s.Status([]venue.Id{"binance"}, now)
	if status != StatusSettlementImminent {
		t.Fatalf("status = %s, want SETTLEMENT_IMMINENT", status)
	}
}

func TestShouldOpenRespectsTimeHorizon(t *testing.T) {
	calendars := map[venue.Id]Calendar{
		"binance": ThreeDailyCalendar(5*time.Minute, time.Minute),
	}
	s := NewScheduler(calendars)
	now := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	if !s.ShouldOpen([]venue.Id{"binance"}, now, 5*time.Minute) {
		t.Fatal("plenty of runway before next settlement should allow opening")
	}
	tooClose := time.Date(2026, 7, 31, 7, 56, 0, 0, time.UTC)
	if s.ShouldOpen([]venue.Id{"binance"}, tooClose, 10*time.Minute) {
		t.Fatal("insufficient runway before next settlement must block opening")
	}
}

func TestShouldCloseOnSettlementImminent(t *testing.T) {
	calendars := map[venue.Id]Calendar{
		"binance": ThreeDailyCalendar(5*time.Minute, time.Minute),
	}
	s := NewScheduler(calendars)
	now := time.Date(2026, 7, 31, 7, 57, 0, 0, time.UTC)
	if !s.ShouldClose([]venue.Id{"binance"}, now, time.Hour, 15*time.Minute) {
		t.Fatal("SETTLEMENT_IMMINENT must force a close regardless of position age")
	}
}

func TestHourlyCalendarHasTwentyFourSlots(t *testing.T) {
	cal := HourlyCalendar(time.Minute, time.Minute)
	if len(cal.DailyUTCMinutes) != 24 {
		t.Fatalf("HourlyCalendar should have 24 daily slots, got %d", len(cal.DailyUTCMinutes))
	}
}
