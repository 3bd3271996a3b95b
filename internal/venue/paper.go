// FILE: internal/venue/paper.go
// PaperVenue simulates fills at a tracked mid price, generalizing the
// teacher's single-asset broker_paper.go to an arbitrary set of pairs.
// It emits no FundingPayment events and accrues no funding PnL for the
// positions it tracks. Orders never leave the process.
package venue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskforge/fundingarb/internal/money"
)

// PaperVenue keeps an in-memory mid price and funding rate per pair.
type PaperVenue struct {
	id Id

	mu        sync.Mutex
	mids      map[Pair]money.Decimal
	funding   map[Pair]FundingInfo
	balances  map[string]money.Decimal
	positions map[Pair]map[Side]PositionReport
	leverage  map[Pair]money.Decimal

	fillDelay  time.Duration
	closeDelay time.Duration

	events chan Event
}

// NewPaperVenue builds a demo venue seeded with a starting balance per
// asset (teacher's PAPER_BASE_BALANCE/PAPER_QUOTE_BALANCE env pattern,
// generalized away from env lookups so callers pass balances in).
func NewPaperVenue(id Id, balances map[string]money.Decimal, fillDelay, closeDelay time.Duration) *PaperVenue {
	bal := make(map[string]money.Decimal, len(balances))
	for k, v := range balances {
		bal[k] = v
	}
	return &PaperVenue{
		id:         id,
		mids:       make(map[Pair]money.Decimal),
		funding:    make(map[Pair]FundingInfo),
		balances:   bal,
		positions:  make(map[Pair]map[Side]PositionReport),
		leverage:   make(map[Pair]money.Decimal),
		fillDelay:  fillDelay,
		closeDelay: closeDelay,
		events:     make(chan Event, 256),
	}
}

func (p *PaperVenue) Id() Id { return p.id }

// SeedFunding lets a driver (backtest replay, or a bridge feeding the
// paper venue live quotes) push the latest observed FundingInfo, the
// way the teacher's live.go ticks a single cached price forward.
func (p *PaperVenue) SeedFunding(fi FundingInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funding[fi.Pair] = fi
	p.mids[fi.Pair] = fi.MarkPrice
}

func (p *PaperVenue) GetFundingInfo(ctx context.Context, pair Pair) (FundingInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fi, ok := p.funding[pair]
	if !ok {
		return FundingInfo{}, errors.New("paper venue: no funding seeded for " + pair.String())
	}
	return fi, nil
}

func (p *PaperVenue) GetOrderBook(ctx context.Context, pair Pair) (OrderBookSnapshot, error) {
	p.mu.Lock()
	mid, ok := p.mids[pair]
	p.mu.Unlock()
	if !ok || mid.IsZero() {
		return OrderBookSnapshot{Venue: p.id, Pair: pair, Stale: true}, nil
	}
	spread := mid.Mul(money.BPS(5))
	return OrderBookSnapshot{
		Venue: p.id,
		Pair:  pair,
		Bids:  []PriceLevel{{Price: mid.Sub(spread), Size: money.FromFloat(1_000_000)}},
		Asks:  []PriceLevel{{Price: mid.Add(spread), Size: money.FromFloat(1_000_000)}},
		Mid:   mid,
	}, nil
}

func (p *PaperVenue) GetBalance(ctx context.Context, asset string) (money.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[asset], nil
}

// GetFee returns a flat taker/maker fee table; paper mode has no real
// exchange fee schedule, so it assumes a fixed, conservative 5bps taker /
// 2bps maker.
func (p *PaperVenue) GetFee(ctx context.Context, pair Pair, side Side, action FeeAction, amount, price money.Decimal, maker bool) (money.Decimal, error) {
	rate := money.BPS(5)
	if maker {
		rate = money.BPS(2)
	}
	return rate, nil
}

func (p *PaperVenue) GetMidPrice(ctx context.Context, pair Pair) (money.Decimal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mid, ok := p.mids[pair]
	if !ok || mid.IsZero() {
		return money.Zero, false
	}
	return mid, true
}

func (p *PaperVenue) GetPriceForQuoteVolume(ctx context.Context, pair Pair, qty money.Decimal, isBuy bool) (money.Decimal, bool) {
	return p.GetMidPrice(ctx, pair)
}

// PlaceOrder simulates a fill at the current mid price (or at price,
// when one is given) after fillDelay, emitting a Fill event on the Subscribe channel — mirroring
// the teacher's PlaceMarketQuote which fabricates a PlacedOrder
// synchronously, but delayed and asynchronous so the engine's pending
// validation path (spec.md §4.10 step 3) is exercised the same way it
// would be against a live venue.
func (p *PaperVenue) PlaceOrder(ctx context.Context, pair Pair, side Side, typ OrderType, amount money.Decimal, price *money.Decimal, reduceOnly bool) (OrderId, error) {
	if amount.IsZero() || amount.IsNegative() {
		return "", errors.New("paper venue: amount must be > 0")
	}
	id := OrderId(uuid.New().String())
	mid, ok := p.GetMidPrice(ctx, pair)
	if !ok {
		return "", errors.New("paper venue: no price for " + pair.String())
	}
	fillPrice := mid
	if price != nil {
		fillPrice = *price
	}
	go func() {
		select {
		case <-time.After(p.fillDelay):
		case <-ctx.Done():
			return
		}
		fee := fillPrice.Mul(amount).Mul(money.BPS(5))
		p.mu.Lock()
		if reduceOnly {
			p.reduceFillLocked(pair, side.Opposite(), fillPrice.Mul(amount))
		} else {
			p.recordFillLocked(pair, side, fillPrice.Mul(amount), fillPrice)
		}
		p.mu.Unlock()
		p.events <- Event{
			Kind: EventFill,
			Fill: &Fill{
				OrderId:    id,
				Pair:       pair,
				Side:       side,
				Price:      fillPrice,
				BaseSize:   amount,
				QuoteValue: fillPrice.Mul(amount),
				FeeQuote:   fee,
				Time:       time.Now().UTC(),
			},
		}
		p.events <- Event{
			Kind:      EventOrderStatus,
			OrderStat: &OrderStatus{OrderId: id, Status: OrderFilled, Time: time.Now().UTC()},
		}
	}()
	return id, nil
}

// CancelOrder simulates a close: the engine's reissueStopLocked calls
// this on an already-filled leg's order id to wind a position down
// (paper mode has no separate reduce-only close path), so the
// corresponding tracked position is cleared once the cancellation event
// fires.
func (p *PaperVenue) CancelOrder(ctx context.Context, pair Pair, id OrderId) error {
	go func() {
		select {
		case <-time.After(p.closeDelay):
		case <-ctx.Done():
			return
		}
		p.mu.Lock()
		delete(p.positions, pair)
		p.mu.Unlock()
		p.events <- Event{
			Kind:      EventOrderStatus,
			OrderStat: &OrderStatus{OrderId: id, Status: OrderCancelled, Time: time.Now().UTC()},
		}
	}()
	return nil
}

// recordFillLocked accumulates a new fill's notional into the tracked
// position for (pair, side). Caller holds p.mu.
func (p *PaperVenue) recordFillLocked(pair Pair, side Side, notional, markPrice money.Decimal) {
	if p.positions[pair] == nil {
		p.positions[pair] = make(map[Side]PositionReport)
	}
	pos := p.positions[pair][side]
	pos.Pair = pair
	pos.Side = side
	pos.Notional = pos.Notional.Add(notional)
	pos.MarkPrice = markPrice
	lev, ok := p.leverage[pair]
	if !ok {
		lev = money.One
	}
	pos.Leverage = lev
	p.positions[pair][side] = pos
}

// reduceFillLocked applies a reduce-only fill against the opposite
// side's tracked position (a partial close). Caller holds p.mu.
func (p *PaperVenue) reduceFillLocked(pair Pair, side Side, notional money.Decimal) {
	bySide, ok := p.positions[pair]
	if !ok {
		return
	}
	pos, ok := bySide[side]
	if !ok {
		return
	}
	pos.Notional = pos.Notional.Sub(notional)
	if pos.Notional.IsNegative() {
		pos.Notional = money.Zero
	}
	bySide[side] = pos
}

func (p *PaperVenue) SetLeverage(ctx context.Context, pair Pair, leverage money.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[pair] = leverage
	for side, pos := range p.positions[pair] {
		pos.Leverage = leverage
		p.positions[pair][side] = pos
	}
	return nil
}

func (p *PaperVenue) SetPositionMode(ctx context.Context, mode PositionMode) error {
	return nil
}

// GetPosition reports the in-memory tracked position for (pair, side);
// paper mode has no real liquidation price or ADL indicator, so those
// fields stay nil per spec.md §3's unavailable-sentinel rule.
func (p *PaperVenue) GetPosition(ctx context.Context, pair Pair, side Side) (PositionReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bySide, ok := p.positions[pair]
	if !ok {
		return PositionReport{}, false
	}
	pos, ok := bySide[side]
	if !ok || pos.Notional.IsZero() {
		return PositionReport{}, false
	}
	return pos, true
}

func (p *PaperVenue) Subscribe(ctx context.Context) (<-chan Event, error) {
	return p.events, nil
}

// ParseProductSymbols splits a pair like "BTC-USDT" into (base, quote).
// Generalizes the teacher's parseProductSymbols, used by EdgeCalculator
// for the asset-splitting rule in spec.md §4.6.
func ParseProductSymbols(product string) (base, quote string) {
	for i := len(product) - 1; i > 0; i-- {
		if product[i] == '-' {
			return product[:i], product[i+1:]
		}
	}
	return "", ""
}
