package model

import "github.com/shopspring/decimal"

// ═══════════════════════════════════════════════════════════════════════════════
// REPORTS - Venue truth crossing the reconciliation boundary
// ═══════════════════════════════════════════════════════════════════════════════

// OrderStatusReport is the venue's view of one order.
type OrderStatusReport struct {
	AccountID     AccountID       `json:"account_id"`
	InstrumentID  InstrumentID    `json:"instrument_id"`
	ClientOrderID ClientOrderID   `json:"client_order_id,omitempty"`
	VenueOrderID  VenueOrderID    `json:"venue_order_id"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Status        OrderStatus     `json:"status"`
	Quantity      decimal.Decimal `json:"quantity"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	Price         decimal.Decimal `json:"price"`
	TriggerPrice  decimal.Decimal `json:"trigger_price"`
	TsInit        int64           `json:"ts_init"`
}

// FillReport is the venue's record of one execution.
type FillReport struct {
	AccountID     AccountID       `json:"account_id"`
	InstrumentID  InstrumentID    `json:"instrument_id"`
	ClientOrderID ClientOrderID   `json:"client_order_id,omitempty"`
	VenueOrderID  VenueOrderID    `json:"venue_order_id"`
	TradeID       TradeID         `json:"trade_id"`
	Side          OrderSide       `json:"side"`
	LastQty       decimal.Decimal `json:"last_qty"`
	LastPx        decimal.Decimal `json:"last_px"`
	Commission    Money           `json:"commission"`
	LiquiditySide LiquiditySide   `json:"liquidity_side"`
	VenuePosID    PositionID      `json:"venue_position_id,omitempty"`
	TsEvent       int64           `json:"ts_event"`
	TsInit        int64           `json:"ts_init"`
}

// PositionStatusReport is the venue's view of one open position.
type PositionStatusReport struct {
	AccountID    AccountID       `json:"account_id"`
	InstrumentID InstrumentID    `json:"instrument_id"`
	Side         PositionSide    `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	TsInit       int64           `json:"ts_init"`
}

// ExecutionMassStatus bundles the venue's full execution state for one client,
// requested at reconciliation time.
type ExecutionMassStatus struct {
	ClientID  ClientID                              `json:"client_id"`
	AccountID AccountID                             `json:"account_id"`
	Venue     Venue                                 `json:"venue"`
	Orders    map[VenueOrderID]OrderStatusReport    `json:"orders"`
	Fills     map[VenueOrderID][]FillReport         `json:"fills"`
	Positions map[InstrumentID]PositionStatusReport `json:"positions"`
	TsInit    int64                                 `json:"ts_init"`
}

// NewExecutionMassStatus creates an empty mass status snapshot.
func NewExecutionMassStatus(clientID ClientID, accountID AccountID, venue Venue, tsInit int64) *ExecutionMassStatus {
	return &ExecutionMassStatus{
		ClientID:  clientID,
		AccountID: accountID,
		Venue:     venue,
		Orders:    make(map[VenueOrderID]OrderStatusReport),
		Fills:     make(map[VenueOrderID][]FillReport),
		Positions: make(map[InstrumentID]PositionStatusReport),
		TsInit:    tsInit,
	}
}

// AddOrderReport records an order status report.
func (m *ExecutionMassStatus) AddOrderReport(r OrderStatusReport) {
	m.Orders[r.VenueOrderID] = r
}

// AddFillReports records fill reports for one venue order.
func (m *ExecutionMassStatus) AddFillReports(id VenueOrderID, reports []FillReport) {
	m.Fills[id] = append(m.Fills[id], reports...)
}

// AddPositionReport records a position status report.
func (m *ExecutionMassStatus) AddPositionReport(r PositionStatusReport) {
	m.Positions[r.InstrumentID] = r
}
