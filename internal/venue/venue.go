// FILE: internal/venue/venue.go
// Package venue defines the abstract contract the core trades against
// (spec.md §6 "Venue interface"). Concrete connectors — REST/WS clients
// to specific exchanges — are out of scope per spec.md §1; this package
// ships only the interface plus two reference implementations used by
// the demo/paper path and the generic HTTP-sidecar ("bridge") path, the
// same division the teacher draws between broker_paper.go and
// broker_bridge.go.
package venue

import (
	"context"
	"time"

	"github.com/riskforge/fundingarb/internal/money"
)

// Id is an opaque venue identifier, e.g. "binance", "bybit", "hyperliquid".
type Id string

// Pair is a (base, quote) trading pair, e.g. BTC-USDT.
type Pair struct {
	Base  string
	Quote string
}

func (p Pair) String() string { return p.Base + "-" + p.Quote }

// Side of an order or a position leg.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OrderType supported by PlaceOrder.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// FeeAction distinguishes opening vs closing legs for fee lookups
// (spec.md §4.6 fees[v,side] for side in {open, close}).
type FeeAction string

const (
	FeeActionOpen  FeeAction = "open"
	FeeActionClose FeeAction = "close"
)

// FundingInfo is venue-reported funding state for one pair (spec.md §3).
type FundingInfo struct {
	Venue             Id
	Pair              Pair
	Rate              money.Decimal // signed per-interval rate
	IntervalSeconds   int64
	NextSettlementUTC time.Time
	IndexPrice        money.Decimal
	MarkPrice         money.Decimal
}

// Valid enforces spec.md §3's FundingInfo invariant: interval_seconds > 0.
func (f FundingInfo) Valid() bool { return f.IntervalSeconds > 0 }

// PriceLevel is one (price, size) entry of an order book side.
type PriceLevel struct {
	Price money.Decimal
	Size  money.Decimal
}

// OrderBookSnapshot holds bids (desc by price) and asks (asc by price).
type OrderBookSnapshot struct {
	Venue Id
	Pair  Pair
	Bids  []PriceLevel
	Asks  []PriceLevel
	Mid   money.Decimal
	Stale bool
}

// DepthToVolume returns the aggregate size available within the top n
// levels on the requested side, or (zero, false) when the book is
// empty or Stale — per spec.md §3: "depth-to-volume queries must return
// None when book is empty/stale".
func (ob OrderBookSnapshot) DepthToVolume(isBuy bool, levels int) (money.Decimal, bool) {
	if ob.Stale {
		return money.Zero, false
	}
	side := ob.Asks
	if !isBuy {
		side = ob.Bids
	}
	if len(side) == 0 {
		return money.Zero, false
	}
	if levels > len(side) {
		levels = len(side)
	}
	total := money.Zero
	for _, lvl := range side[:levels] {
		total = total.Add(lvl.Size)
	}
	return total, true
}

// PositionReport is the venue-observed state of one held position leg
// (spec.md §3's Position, margin/notional fields only), used by the
// margin monitor (C8) to classify health and by the reconciler (C9) to
// diff venue-reported truth against the engine's own bookkeeping.
// LiquidationPrice/ADLIndicator follow spec.md §3's "dynamic attribute"
// rule: nil when the venue doesn't report them, never a fabricated
// value.
type PositionReport struct {
	Pair             Pair
	Side             Side
	Notional         money.Decimal
	Leverage         money.Decimal
	MarkPrice        money.Decimal
	LiquidationPrice *money.Decimal
	ADLIndicator     *int
}

// PositionMode toggles a venue between one-way and hedge accounting.
type PositionMode string

const (
	PositionModeOneWay PositionMode = "ONEWAY"
	PositionModeHedge  PositionMode = "HEDGE"
)

// OrderId identifies a placed order at a venue.
type OrderId string

// EventKind enumerates the Subscribe() event stream's union type
// (spec.md §6: "event stream of {Fill, FundingPayment, OrderStatus,
// ConnectionStatus}").
type EventKind string

const (
	EventFill             EventKind = "FILL"
	EventFundingPayment   EventKind = "FUNDING_PAYMENT"
	EventOrderStatus      EventKind = "ORDER_STATUS"
	EventConnectionStatus EventKind = "CONNECTION_STATUS"
)

// Fill reports an executed quantity against an order.
type Fill struct {
	OrderId    OrderId
	Pair       Pair
	Side       Side
	Price      money.Decimal
	BaseSize   money.Decimal
	QuoteValue money.Decimal
	FeeQuote   money.Decimal
	Time       time.Time
}

// FundingPayment reports a realized funding exchange for a held position.
type FundingPayment struct {
	Pair   Pair
	Amount money.Decimal // signed: positive = received
	Time   time.Time
}

// OrderStatusKind is a coarse order lifecycle state.
type OrderStatusKind string

const (
	OrderOpen      OrderStatusKind = "OPEN"
	OrderFilled    OrderStatusKind = "FILLED"
	OrderCancelled OrderStatusKind = "CANCELLED"
	OrderRejected  OrderStatusKind = "REJECTED"
)

// OrderStatus reports a change in an order's lifecycle.
type OrderStatus struct {
	OrderId OrderId
	Status  OrderStatusKind
	Time    time.Time
}

// Channel enumerates a connection's transport class, used by C1's
// per-(venue,channel) ConnectionStatus table.
type Channel string

const (
	ChannelREST       Channel = "rest"
	ChannelWebSocket  Channel = "websocket"
	ChannelUserStream Channel = "user_stream"
)

// ConnState is the coarse health of one (venue, channel) connection.
type ConnState string

const (
	ConnStateOK    ConnState = "OK"
	ConnStateStale ConnState = "STALE"
	ConnStateError ConnState = "ERROR"
)

// ConnectionStatus is the per-(venue, channel) health record in spec.md §3.
type ConnectionStatus struct {
	Venue        Id
	Channel      Channel
	State        ConnState
	LastSeen     time.Time
	LatencyMs    float64
	ErrorCount   int64
	ErrorMessage string
}

// Event is the tagged union delivered by Subscribe.
type Event struct {
	Kind       EventKind
	Fill       *Fill
	Funding    *FundingPayment
	OrderStat  *OrderStatus
	Connection *ConnectionStatus
}

// ErrUnsupportedLeverage/ErrUnsupportedMode are the two tolerated,
// non-fatal venue-capability errors spec.md §6 names explicitly: "The
// core MUST tolerate UnsupportedMode/UnsupportedLeverage as non-fatal
// per venue (log, alert, continue with others)."
type ErrUnsupportedLeverage struct{ Venue Id }

func (e ErrUnsupportedLeverage) Error() string { return string(e.Venue) + ": unsupported leverage" }

type ErrUnsupportedMode struct{ Venue Id }

func (e ErrUnsupportedMode) Error() string { return string(e.Venue) + ": unsupported position mode" }

// Venue is the core's primary external contract (spec.md §6).
//
// Implementations MUST be safe for concurrent use: the engine's worker
// pool calls these methods from multiple goroutines, and mutation of
// any shared state they own must happen under their own lock — no
// Venue method may assume it is called from the engine's actor
// goroutine (spec.md §5's "Suspension points" rule: no mutex may be
// held across a suspension point, which every one of these calls is).
type Venue interface {
	Id() Id

	GetFundingInfo(ctx context.Context, pair Pair) (FundingInfo, error)
	GetOrderBook(ctx context.Context, pair Pair) (OrderBookSnapshot, error)
	GetBalance(ctx context.Context, asset string) (money.Decimal, error)
	GetFee(ctx context.Context, pair Pair, side Side, action FeeAction, amount, price money.Decimal, maker bool) (money.Decimal, error)
	GetMidPrice(ctx context.Context, pair Pair) (money.Decimal, bool)
	GetPriceForQuoteVolume(ctx context.Context, pair Pair, qty money.Decimal, isBuy bool) (money.Decimal, bool)
	// GetPosition reports the venue's observed state for one held
	// position leg, or ok=false if the venue has nothing open for
	// (pair, side). Feeds the margin monitor (C8) and reconciler (C9).
	GetPosition(ctx context.Context, pair Pair, side Side) (PositionReport, bool)

	PlaceOrder(ctx context.Context, pair Pair, side Side, typ OrderType, amount money.Decimal, price *money.Decimal, reduceOnly bool) (OrderId, error)
	CancelOrder(ctx context.Context, pair Pair, id OrderId) error

	SetLeverage(ctx context.Context, pair Pair, leverage money.Decimal) error
	SetPositionMode(ctx context.Context, mode PositionMode) error

	Subscribe(ctx context.Context) (<-chan Event, error)
}
