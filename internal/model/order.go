package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER - Event-sourced order aggregate
// ═══════════════════════════════════════════════════════════════════════════════
//
// Orders mutate exclusively through Apply(event); the cache is the single
// owner and refreshes its indexes in the same step as every update.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidTransition is returned when an event is illegal in the
	// order's current status.
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrDuplicateFill is returned when a fill's trade ID was already applied.
	ErrDuplicateFill = errors.New("duplicate fill trade id")
)

// Order is a venue-bound instruction with its full event history.
type Order struct {
	ClientOrderID ClientOrderID   `json:"client_order_id"`
	VenueOrderID  VenueOrderID    `json:"venue_order_id,omitempty"`
	TraderID      TraderID        `json:"trader_id"`
	StrategyID    StrategyID      `json:"strategy_id"`
	InstrumentID  InstrumentID    `json:"instrument_id"`
	PositionID    PositionID      `json:"position_id,omitempty"`
	AccountID     AccountID       `json:"account_id,omitempty"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	TimeInForce   TimeInForce     `json:"time_in_force"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TriggerPrice  decimal.Decimal `json:"trigger_price"`
	Status        OrderStatus     `json:"status"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	AvgPx         decimal.Decimal `json:"avg_px"`
	IsPostOnly    bool            `json:"is_post_only"`
	IsReduceOnly  bool            `json:"is_reduce_only"`
	ExecAlgorithm string          `json:"exec_algorithm,omitempty"`
	TsInit        int64           `json:"ts_init"`
	TsLast        int64           `json:"ts_last"`
	Events        []OrderEvent    `json:"-"`
}

// NewOrder creates an order in INITIALIZED status.
func NewOrder(
	clientOrderID ClientOrderID,
	traderID TraderID,
	strategyID StrategyID,
	instrumentID InstrumentID,
	side OrderSide,
	orderType OrderType,
	qty decimal.Decimal,
	tsInit int64,
) *Order {
	return &Order{
		ClientOrderID: clientOrderID,
		TraderID:      traderID,
		StrategyID:    strategyID,
		InstrumentID:  instrumentID,
		Side:          side,
		Type:          orderType,
		TimeInForce:   TimeInForceGTC,
		Quantity:      qty,
		Status:        OrderStatusInitialized,
		TsInit:        tsInit,
		TsLast:        tsInit,
	}
}

// LeavesQty returns the remaining open quantity.
func (o *Order) LeavesQty() decimal.Decimal {
	leaves := o.Quantity.Sub(o.FilledQty)
	if leaves.IsNegative() {
		return decimal.Zero
	}
	return leaves
}

// IsWorking reports whether the order is live at the venue.
func (o *Order) IsWorking() bool { return o.Status.IsWorking() }

// IsCompleted reports whether the order has reached a terminal status.
func (o *Order) IsCompleted() bool { return o.Status.IsCompleted() }

// HasTradeID reports whether a fill with the given trade ID was applied.
func (o *Order) HasTradeID(id TradeID) bool {
	for _, ev := range o.Events {
		if fill, ok := ev.(OrderFilled); ok && fill.TradeID == id {
			return true
		}
	}
	return false
}

// LastEvent returns the most recent applied event, or nil.
func (o *Order) LastEvent() OrderEvent {
	if len(o.Events) == 0 {
		return nil
	}
	return o.Events[len(o.Events)-1]
}

// Apply advances the order by one event. The event is appended to the log
// only when the transition is legal.
func (o *Order) Apply(ev OrderEvent) error {
	switch e := ev.(type) {
	case OrderSubmitted:
		if o.Status != OrderStatusInitialized {
			return o.transitionErr(ev)
		}
		o.Status = OrderStatusSubmitted

	case OrderAccepted:
		switch o.Status {
		case OrderStatusSubmitted, OrderStatusInitialized:
		default:
			return o.transitionErr(ev)
		}
		o.Status = OrderStatusAccepted
		if e.VenueOrderID != "" {
			o.VenueOrderID = e.VenueOrderID
		}

	case OrderRejected:
		if o.IsCompleted() {
			return o.transitionErr(ev)
		}
		o.Status = OrderStatusRejected

	case OrderTriggered:
		if !o.Type.HasTrigger() || o.IsCompleted() {
			return o.transitionErr(ev)
		}
		o.Status = OrderStatusTriggered

	case OrderUpdated:
		if o.IsCompleted() {
			return o.transitionErr(ev)
		}
		if e.Quantity.IsPositive() {
			o.Quantity = e.Quantity
		}
		if e.Price.IsPositive() {
			o.Price = e.Price
		}
		if e.TriggerPrice.IsPositive() {
			o.TriggerPrice = e.TriggerPrice
		}
		if e.VenueOrderID != "" {
			o.VenueOrderID = e.VenueOrderID
		}

	case OrderCanceled:
		if o.IsCompleted() {
			return o.transitionErr(ev)
		}
		o.Status = OrderStatusCanceled

	case OrderExpired:
		if o.IsCompleted() {
			return o.transitionErr(ev)
		}
		o.Status = OrderStatusExpired

	case OrderFilled:
		if o.IsCompleted() {
			return o.transitionErr(ev)
		}
		if o.HasTradeID(e.TradeID) {
			return fmt.Errorf("%w: %s", ErrDuplicateFill, e.TradeID)
		}
		o.applyFill(e)

	default:
		return fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
	}

	o.TsLast = ev.EventTime()
	o.Events = append(o.Events, ev)
	return nil
}

func (o *Order) applyFill(fill OrderFilled) {
	filled := o.FilledQty.Add(fill.LastQty)
	if o.FilledQty.IsZero() {
		o.AvgPx = fill.LastPx
	} else {
		// Weighted mean of all fill prices.
		notional := o.AvgPx.Mul(o.FilledQty).Add(fill.LastPx.Mul(fill.LastQty))
		o.AvgPx = notional.Div(filled)
	}
	o.FilledQty = filled
	if fill.VenueOrderID != "" {
		o.VenueOrderID = fill.VenueOrderID
	}
	if fill.PositionID != "" {
		o.PositionID = fill.PositionID
	}
	if o.FilledQty.GreaterThanOrEqual(o.Quantity) {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}

func (o *Order) transitionErr(ev OrderEvent) error {
	return fmt.Errorf("%w: %s in status %s (order %s)",
		ErrInvalidTransition, ev.EventType(), o.Status, o.ClientOrderID)
}
