package model

import "github.com/shopspring/decimal"

// ═══════════════════════════════════════════════════════════════════════════════
// EVENTS - Facts flowing back from venues and the engine
// ═══════════════════════════════════════════════════════════════════════════════
//
// Order events are appended to the owning order's event log and re-published
// on "events.order.<strategy_id>". Position events are derived by the engine's
// fill pipeline and published on "events.position.<strategy_id>". Account
// state events are appended to the account's event log and published on
// "events.account.<account_id>".
//
// ═══════════════════════════════════════════════════════════════════════════════

// OrderEventType discriminates order events.
type OrderEventType string

const (
	EventOrderSubmitted OrderEventType = "OrderSubmitted"
	EventOrderAccepted  OrderEventType = "OrderAccepted"
	EventOrderRejected  OrderEventType = "OrderRejected"
	EventOrderTriggered OrderEventType = "OrderTriggered"
	EventOrderUpdated   OrderEventType = "OrderUpdated"
	EventOrderCanceled  OrderEventType = "OrderCanceled"
	EventOrderExpired   OrderEventType = "OrderExpired"
	EventOrderFilled    OrderEventType = "OrderFilled"
)

// OrderEvent is implemented by every order lifecycle event.
type OrderEvent interface {
	EventType() OrderEventType
	OrderID() ClientOrderID
	Strategy() StrategyID
	Instrument() InstrumentID
	EventTime() int64
}

// OrderEventBase carries the fields common to all order events.
type OrderEventBase struct {
	ClientOrderID ClientOrderID `json:"client_order_id"`
	VenueOrderID  VenueOrderID  `json:"venue_order_id,omitempty"`
	InstrumentID  InstrumentID  `json:"instrument_id"`
	StrategyID    StrategyID    `json:"strategy_id"`
	AccountID     AccountID     `json:"account_id,omitempty"`
	TsEvent       int64         `json:"ts_event"`
}

func (e OrderEventBase) OrderID() ClientOrderID   { return e.ClientOrderID }
func (e OrderEventBase) Strategy() StrategyID     { return e.StrategyID }
func (e OrderEventBase) Instrument() InstrumentID { return e.InstrumentID }
func (e OrderEventBase) EventTime() int64         { return e.TsEvent }

// OrderSubmitted - the engine handed the order to an execution client.
type OrderSubmitted struct {
	OrderEventBase
}

func (OrderSubmitted) EventType() OrderEventType { return EventOrderSubmitted }

// OrderAccepted - the venue acknowledged the order and assigned a venue ID.
type OrderAccepted struct {
	OrderEventBase
}

func (OrderAccepted) EventType() OrderEventType { return EventOrderAccepted }

// OrderRejected - the venue (or the engine's validation) refused the order.
type OrderRejected struct {
	OrderEventBase
	Reason string `json:"reason"`
}

func (OrderRejected) EventType() OrderEventType { return EventOrderRejected }

// OrderTriggered - a stop/if-touched condition fired.
type OrderTriggered struct {
	OrderEventBase
}

func (OrderTriggered) EventType() OrderEventType { return EventOrderTriggered }

// OrderUpdated - quantity/price/trigger amended in place.
type OrderUpdated struct {
	OrderEventBase
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
}

func (OrderUpdated) EventType() OrderEventType { return EventOrderUpdated }

// OrderCanceled - removed from the venue book.
type OrderCanceled struct {
	OrderEventBase
}

func (OrderCanceled) EventType() OrderEventType { return EventOrderCanceled }

// OrderExpired - lapsed under its time in force.
type OrderExpired struct {
	OrderEventBase
}

func (OrderExpired) EventType() OrderEventType { return EventOrderExpired }

// OrderFilled - a single execution against the order.
type OrderFilled struct {
	OrderEventBase
	TradeID       TradeID         `json:"trade_id"`
	PositionID    PositionID      `json:"position_id,omitempty"`
	Side          OrderSide       `json:"side"`
	LastQty       decimal.Decimal `json:"last_qty"`
	LastPx        decimal.Decimal `json:"last_px"`
	Commission    Money           `json:"commission"`
	LiquiditySide LiquiditySide   `json:"liquidity_side"`
}

func (OrderFilled) EventType() OrderEventType { return EventOrderFilled }

// ───────────────────────────────────────────────────────────────────────────────
// Position events
// ───────────────────────────────────────────────────────────────────────────────

// PositionEventType discriminates position events.
type PositionEventType string

const (
	EventPositionOpened  PositionEventType = "PositionOpened"
	EventPositionChanged PositionEventType = "PositionChanged"
	EventPositionClosed  PositionEventType = "PositionClosed"
)

// PositionEvent is a snapshot of a position after a fill was applied.
type PositionEvent struct {
	Type         PositionEventType `json:"type"`
	PositionID   PositionID        `json:"position_id"`
	InstrumentID InstrumentID      `json:"instrument_id"`
	StrategyID   StrategyID        `json:"strategy_id"`
	AccountID    AccountID         `json:"account_id"`
	Side         PositionSide      `json:"side"`
	SignedQty    decimal.Decimal   `json:"signed_qty"`
	AvgPxOpen    decimal.Decimal   `json:"avg_px_open"`
	AvgPxClose   decimal.Decimal   `json:"avg_px_close"`
	RealizedPnL  Money             `json:"realized_pnl"`
	LastTradeID  TradeID           `json:"last_trade_id"`
	TsEvent      int64             `json:"ts_event"`
}

// ───────────────────────────────────────────────────────────────────────────────
// Account state
// ───────────────────────────────────────────────────────────────────────────────

// AccountBalance is the per-currency balance triple. Invariant:
// total = locked + free, locked >= 0, total >= 0.
type AccountBalance struct {
	Currency Currency        `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Locked   decimal.Decimal `json:"locked"`
	Free     decimal.Decimal `json:"free"`
}

// IsConsistent verifies the balance triple invariant.
func (b AccountBalance) IsConsistent() bool {
	return b.Total.Equal(b.Locked.Add(b.Free)) && !b.Locked.IsNegative() && !b.Total.IsNegative()
}

// MarginBalance is the per-instrument margin pair on a margin account.
type MarginBalance struct {
	InstrumentID InstrumentID    `json:"instrument_id"`
	Currency     Currency        `json:"currency"`
	Initial      decimal.Decimal `json:"initial"`
	Maintenance  decimal.Decimal `json:"maintenance"`
}

// AccountState is an append-only snapshot of an account's balances.
type AccountState struct {
	AccountID   AccountID        `json:"account_id"`
	AccountType AccountType      `json:"account_type"`
	BaseCcy     Currency         `json:"base_currency,omitempty"`
	Balances    []AccountBalance `json:"balances"`
	Margins     []MarginBalance  `json:"margins,omitempty"`
	IsReported  bool             `json:"is_reported"`
	TsEvent     int64            `json:"ts_event"`
}
