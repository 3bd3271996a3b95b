// FILE: internal/engine/arbitrage.go
// Arbitrage is the central lifecycle entity of spec.md §3, exclusively
// owned by LifecycleEngine (C10). Grounded on the teacher's Position
// struct (trader.go) for the general shape of a tracked, mutable
// trading record with a bounded-size event ring, generalized from a
// single-venue spot position into a two-legged cross-venue hedge with
// an explicit PENDING/ACTIVE/CLOSING/CLOSED state machine.
package engine

import (
	"time"

	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/venue"
)

// State is the Arbitrage lifecycle state (spec.md §3).
type State string

const (
	StatePending State = "PENDING"
	StateActive  State = "ACTIVE"
	StateClosing State = "CLOSING"
	StateClosed  State = "CLOSED"
)

const fundingPaymentRingLimit = 100
const archiveLimit = 10

// Legs holds the order id for each side of the hedge.
type Legs struct {
	Long  venue.OrderId
	Short venue.OrderId
}

// FilledNotional tracks each leg's observed filled notional.
type FilledNotional struct {
	Long  money.Decimal
	Short money.Decimal
}

// FundingPayment is one realized funding exchange recorded against this
// Arbitrage.
type FundingPayment struct {
	Venue  venue.Id
	Amount money.Decimal
	Time   time.Time
}

// Arbitrage is the per-token lifecycle record.
type Arbitrage struct {
	Token      string
	Pair       venue.Pair
	LongVenue  venue.Id
	ShortVenue venue.Id
	Side       venue.Side // side held on LongVenue; ShortVenue holds the opposite

	NotionalQuote money.Decimal
	Leverage      money.Decimal

	State State

	EntryTime  time.Time
	CloseTime  *time.Time
	CloseReason string

	Legs           Legs
	FilledNotional FilledNotional

	FundingPayments []FundingPayment

	ValidationAttempts  int
	LastValidationError string

	Demo                 bool
	DemoAccruedFundingPnl money.Decimal

	ExecutorsPnl money.Decimal

	LastCloseAlertTs *time.Time

	// closingLegsConfirmed is set once both legs' terminal order-status
	// event (FILLED or CANCELLED) has been observed while CLOSING.
	closingLegsConfirmed bool
}

// AppendFundingPayment appends to the bounded ring, dropping the oldest
// on overflow (spec.md §3/§8 invariant 6: funding_payments.len <= 100).
func (a *Arbitrage) AppendFundingPayment(p FundingPayment) {
	a.FundingPayments = append(a.FundingPayments, p)
	if len(a.FundingPayments) > fundingPaymentRingLimit {
		a.FundingPayments = a.FundingPayments[len(a.FundingPayments)-fundingPaymentRingLimit:]
	}
}

// FundingPaymentsPnl sums the recorded ring (spec.md §4.10 step 5).
func (a *Arbitrage) FundingPaymentsPnl() money.Decimal {
	total := money.Zero
	for _, p := range a.FundingPayments {
		total = total.Add(p.Amount)
	}
	return total
}

// ImbalancePct computes |filled_long - filled_short| / max(long,short),
// the hedge-validation check shared identically by both the live and
// demo branches — per spec.md §9's "Open questions" note, the source's
// indentation bug must NOT be reproduced: both branches perform the
// same imbalance check, only the source of filled notional differs.
func (a *Arbitrage) ImbalancePct() (money.Decimal, bool) {
	long, short := a.FilledNotional.Long, a.FilledNotional.Short
	maxVal := money.Max(long, short)
	if maxVal.IsZero() {
		return money.Zero, false
	}
	return money.SafeDiv(money.Abs(long.Sub(short)), maxVal)
}

// transitionTo mutates state; callers are the engine's single actor
// goroutine, so no lock is needed here (spec.md §5: "Single logical
// owner for all mutation of LifecycleEngine state").
func (a *Arbitrage) transitionTo(s State) { a.State = s }

// Close moves the Arbitrage to CLOSING with a reason, recording
// close_time. Per spec.md §3's invariant, once CLOSING the Arbitrage
// can never re-enter PENDING/ACTIVE.
func (a *Arbitrage) Close(reason string, now time.Time) {
	if a.State == StateClosed {
		return // closing an already-terminal Arbitrage is a no-op (spec.md §8)
	}
	a.CloseReason = reason
	a.CloseTime = &now
	a.transitionTo(StateClosing)
}
