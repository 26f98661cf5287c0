package model

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION - Netted exposure built from fills
// ═══════════════════════════════════════════════════════════════════════════════
//
// A position is opened by its first fill and mutated only by subsequent fills.
// The engine splits oversized opposing fills before they reach here, so a
// single ApplyFill never flips the sign: SignedQty moves monotonically toward
// zero on opposing fills and away from zero on same-side fills.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Position tracks net quantity, open/close price averages and realized PnL
// for one (instrument, strategy) exposure.
type Position struct {
	ID           PositionID                   `json:"id"`
	InstrumentID InstrumentID                 `json:"instrument_id"`
	StrategyID   StrategyID                   `json:"strategy_id"`
	TraderID     TraderID                     `json:"trader_id"`
	AccountID    AccountID                    `json:"account_id"`
	Entry        OrderSide                    `json:"entry"`
	SignedQty    decimal.Decimal              `json:"signed_qty"`
	PeakQty      decimal.Decimal              `json:"peak_qty"`
	AvgPxOpen    decimal.Decimal              `json:"avg_px_open"`
	AvgPxClose   decimal.Decimal              `json:"avg_px_close"`
	RealizedPnL  Money                        `json:"realized_pnl"`
	BuyQty       decimal.Decimal              `json:"buy_qty"`
	SellQty      decimal.Decimal              `json:"sell_qty"`
	Multiplier   decimal.Decimal              `json:"multiplier"`
	Commissions  map[Currency]decimal.Decimal `json:"commissions"`
	OrderIDs     []ClientOrderID              `json:"order_ids"`
	TradeIDs     []TradeID                    `json:"trade_ids"`
	TsOpened     int64                        `json:"ts_opened"`
	TsLast       int64                        `json:"ts_last"`
	TsClosed     int64                        `json:"ts_closed,omitempty"`
}

// NewPositionFromFill opens a position from its first fill.
func NewPositionFromFill(instrument Instrument, positionID PositionID, fill OrderFilled) *Position {
	p := &Position{
		ID:           positionID,
		InstrumentID: fill.InstrumentID,
		StrategyID:   fill.StrategyID,
		AccountID:    fill.AccountID,
		Entry:        fill.Side,
		Multiplier:   multiplierOrOne(instrument.Multiplier),
		RealizedPnL:  ZeroMoney(pnlCurrency(instrument)),
		Commissions:  make(map[Currency]decimal.Decimal),
		TsOpened:     fill.TsEvent,
	}
	p.ApplyFill(instrument, fill)
	return p
}

// Side returns the current direction of the position.
func (p *Position) Side() PositionSide {
	switch {
	case p.SignedQty.IsPositive():
		return PositionLong
	case p.SignedQty.IsNegative():
		return PositionShort
	}
	return PositionFlat
}

// Quantity returns the absolute open quantity.
func (p *Position) Quantity() decimal.Decimal { return p.SignedQty.Abs() }

// IsOpen reports whether the position has residual quantity.
func (p *Position) IsOpen() bool { return !p.SignedQty.IsZero() }

// IsClosed reports whether the position is flat.
func (p *Position) IsClosed() bool { return p.SignedQty.IsZero() }

// HasTradeID reports whether the fill with this trade ID already contributed.
func (p *Position) HasTradeID(id TradeID) bool {
	for _, t := range p.TradeIDs {
		if t == id {
			return true
		}
	}
	return false
}

// ApplyFill folds one fill into the position.
func (p *Position) ApplyFill(instrument Instrument, fill OrderFilled) {
	p.recordOrder(fill.ClientOrderID)
	p.TradeIDs = append(p.TradeIDs, fill.TradeID)
	p.TsLast = fill.TsEvent
	if !fill.Commission.IsZero() {
		c := fill.Commission
		p.Commissions[c.Currency] = p.Commissions[c.Currency].Add(c.Amount)
	}

	if fill.Side == SideBuy {
		p.BuyQty = p.BuyQty.Add(fill.LastQty)
	} else {
		p.SellQty = p.SellQty.Add(fill.LastQty)
	}

	if p.SignedQty.IsZero() || fill.Side == p.Entry {
		p.increase(fill)
	} else {
		p.reduce(instrument, fill)
	}

	abs := p.SignedQty.Abs()
	if abs.GreaterThan(p.PeakQty) {
		p.PeakQty = abs
	}
	if p.SignedQty.IsZero() {
		p.TsClosed = fill.TsEvent
	}
}

// NotionalValue returns the current notional at the given price.
func (p *Position) NotionalValue(px decimal.Decimal) decimal.Decimal {
	return p.Quantity().Mul(p.Multiplier).Mul(px)
}

// UnrealizedPnL returns the mark-to-price PnL of the open quantity.
func (p *Position) UnrealizedPnL(px decimal.Decimal) decimal.Decimal {
	if p.IsClosed() {
		return decimal.Zero
	}
	diff := px.Sub(p.AvgPxOpen)
	if p.Side() == PositionShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity()).Mul(p.Multiplier)
}

// ToEvent snapshots the position into a publishable event.
func (p *Position) ToEvent(eventType PositionEventType, lastTradeID TradeID, tsEvent int64) PositionEvent {
	return PositionEvent{
		Type:         eventType,
		PositionID:   p.ID,
		InstrumentID: p.InstrumentID,
		StrategyID:   p.StrategyID,
		AccountID:    p.AccountID,
		Side:         p.Side(),
		SignedQty:    p.SignedQty,
		AvgPxOpen:    p.AvgPxOpen,
		AvgPxClose:   p.AvgPxClose,
		RealizedPnL:  p.RealizedPnL,
		LastTradeID:  lastTradeID,
		TsEvent:      tsEvent,
	}
}

func (p *Position) increase(fill OrderFilled) {
	open := p.SignedQty.Abs()
	total := open.Add(fill.LastQty)
	if open.IsZero() {
		p.AvgPxOpen = fill.LastPx
		p.Entry = fill.Side
	} else {
		notional := p.AvgPxOpen.Mul(open).Add(fill.LastPx.Mul(fill.LastQty))
		p.AvgPxOpen = notional.Div(total)
	}
	if fill.Side == SideBuy {
		p.SignedQty = p.SignedQty.Add(fill.LastQty)
	} else {
		p.SignedQty = p.SignedQty.Sub(fill.LastQty)
	}
}

func (p *Position) reduce(instrument Instrument, fill OrderFilled) {
	open := p.SignedQty.Abs()
	closeQty := decimal.Min(fill.LastQty, open)

	// Realized PnL on the closing quantity:
	// (close - open) * qty * sign(side) * multiplier.
	diff := fill.LastPx.Sub(p.AvgPxOpen)
	if p.Side() == PositionShort {
		diff = diff.Neg()
	}
	pnl := diff.Mul(closeQty).Mul(p.Multiplier)
	if instrument.IsInverse && !fill.LastPx.IsZero() {
		pnl = pnl.Div(fill.LastPx)
	}
	p.RealizedPnL = p.RealizedPnL.Add(NewMoney(pnl, p.RealizedPnL.Currency))

	// Buy/sell totals already include this fill, so back the close leg out
	// to get the prior closed quantity for the weighted close average.
	closedAfter := p.closedQty()
	closedBefore := closedAfter.Sub(closeQty)
	if closedBefore.IsNegative() {
		closedBefore = decimal.Zero
	}
	if closedBefore.IsZero() {
		p.AvgPxClose = fill.LastPx
	} else {
		notional := p.AvgPxClose.Mul(closedBefore).Add(fill.LastPx.Mul(closeQty))
		p.AvgPxClose = notional.Div(closedAfter)
	}

	if fill.Side == SideBuy {
		p.SignedQty = p.SignedQty.Add(closeQty)
	} else {
		p.SignedQty = p.SignedQty.Sub(closeQty)
	}
}

func (p *Position) closedQty() decimal.Decimal {
	return decimal.Min(p.BuyQty, p.SellQty)
}

func (p *Position) recordOrder(id ClientOrderID) {
	for _, existing := range p.OrderIDs {
		if existing == id {
			return
		}
	}
	p.OrderIDs = append(p.OrderIDs, id)
}

func multiplierOrOne(m decimal.Decimal) decimal.Decimal {
	if m.IsZero() {
		return decimal.NewFromInt(1)
	}
	return m
}

func pnlCurrency(instrument Instrument) Currency {
	if instrument.IsInverse {
		return instrument.BaseCurrency
	}
	if instrument.SettlementCcy != "" {
		return instrument.SettlementCcy
	}
	return instrument.QuoteCurrency
}
