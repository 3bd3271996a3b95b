package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/venue"
)

// fakeVenue is a minimal, fully-synchronous test double for venue.Venue.
// It never blocks and never spawns goroutines, so tests can call engine
// methods directly without a Subscribe loop.
type fakeVenue struct {
	mu sync.Mutex

	id venue.Id

	fundingInfo map[venue.Pair]venue.FundingInfo
	balances    map[string]money.Decimal
	fee         money.Decimal
	midPrice    money.Decimal
	bookDepth   money.Decimal
	positions   map[venue.Side]venue.PositionReport

	placeErr    error
	leverageErr error
	nextOrder   int

	placed        []venue.OrderId
	leverageCalls []money.Decimal
	reduceOnlyOrders int
}

func newFakeVenue(id venue.Id) *fakeVenue {
	return &fakeVenue{
		id:          id,
		fundingInfo: make(map[venue.Pair]venue.FundingInfo),
		balances:    make(map[string]money.Decimal),
		fee:         money.FromFloat(0.0004),
		midPrice:    money.FromFloat(100),
		bookDepth:   money.FromFloat(1_000_000),
		positions:   make(map[venue.Side]venue.PositionReport),
	}
}

func (f *fakeVenue) Id() venue.Id { return f.id }

func (f *fakeVenue) GetFundingInfo(ctx context.Context, pair venue.Pair) (venue.FundingInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fi, ok := f.fundingInfo[pair]
	if !ok {
		return venue.FundingInfo{}, errors.New("fake: no funding info seeded")
	}
	return fi, nil
}

func (f *fakeVenue) GetOrderBook(ctx context.Context, pair venue.Pair) (venue.OrderBookSnapshot, error) {
	return venue.OrderBookSnapshot{
		Venue: f.id,
		Pair:  pair,
		Bids:  []venue.PriceLevel{{Price: money.FromFloat(99), Size: f.bookDepth}},
		Asks:  []venue.PriceLevel{{Price: money.FromFloat(101), Size: f.bookDepth}},
	}, nil
}

func (f *fakeVenue) GetBalance(ctx context.Context, asset string) (money.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[asset], nil
}

func (f *fakeVenue) GetFee(ctx context.Context, pair venue.Pair, side venue.Side, action venue.FeeAction, amount, price money.Decimal, maker bool) (money.Decimal, error) {
	return f.fee, nil
}

func (f *fakeVenue) GetMidPrice(ctx context.Context, pair venue.Pair) (money.Decimal, bool) {
	return f.midPrice, true
}

func (f *fakeVenue) GetPriceForQuoteVolume(ctx context.Context, pair venue.Pair, qty money.Decimal, isBuy bool) (money.Decimal, bool) {
	return f.midPrice, true
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, pair venue.Pair, side venue.Side, typ venue.OrderType, amount money.Decimal, price *money.Decimal, reduceOnly bool) (venue.OrderId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.nextOrder++
	id := venue.OrderId(string(f.id) + "-order-" + itoa(f.nextOrder))
	f.placed = append(f.placed, id)
	if reduceOnly {
		f.reduceOnlyOrders++
	}
	return id, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, pair venue.Pair, id venue.OrderId) error {
	return nil
}

func (f *fakeVenue) SetLeverage(ctx context.Context, pair venue.Pair, leverage money.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverageCalls = append(f.leverageCalls, leverage)
	if f.leverageErr != nil {
		return f.leverageErr
	}
	for side, pos := range f.positions {
		pos.Leverage = leverage
		f.positions[side] = pos
	}
	return nil
}

func (f *fakeVenue) SetPositionMode(ctx context.Context, mode venue.PositionMode) error { return nil }

func (f *fakeVenue) GetPosition(ctx context.Context, pair venue.Pair, side venue.Side) (venue.PositionReport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[side]
	if !ok || pos.Notional.IsZero() {
		return venue.PositionReport{}, false
	}
	return pos, true
}

func (f *fakeVenue) Subscribe(ctx context.Context) (<-chan venue.Event, error) {
	ch := make(chan venue.Event)
	return ch, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
