package engine

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// ───────────────────────────────────────────────────────────────────────────────
// Fill pipeline. Exactly-once per execution id: a re-received fill is dropped
// before any state mutates, keyed on the order's applied trade ids.
// ───────────────────────────────────────────────────────────────────────────────

func (e *Engine) handleFill(fill model.OrderFilled) {
	e.countEvent(string(model.EventOrderFilled))

	order, ok := e.cache.Order(fill.ClientOrderID)
	if !ok {
		log.Warn().
			Str("order", string(fill.ClientOrderID)).
			Str("trade", string(fill.TradeID)).
			Msg("fill for unknown order dropped (awaiting reconciliation)")
		return
	}
	if order.HasTradeID(fill.TradeID) {
		if e.metrics != nil {
			e.metrics.FillsDuplicate.Inc()
		}
		log.Warn().
			Str("order", string(order.ClientOrderID)).
			Str("trade", string(fill.TradeID)).
			Msg("duplicate fill dropped")
		return
	}
	instrument, ok := e.cache.Instrument(fill.InstrumentID)
	if !ok {
		log.Error().Str("instrument", string(fill.InstrumentID)).Msg("fill for unknown instrument dropped")
		return
	}
	if fill.AccountID == "" {
		fill.AccountID = order.AccountID
	}

	// Resolve the position id before touching any state: venue-assigned id
	// wins, then the NETTING lookup, then a fresh HEDGING id.
	position, opened := e.resolvePosition(&fill)

	if err := order.Apply(fill); err != nil {
		log.Error().Err(err).
			Str("order", string(order.ClientOrderID)).
			Str("trade", string(fill.TradeID)).
			Msg("fill not applicable to order")
		return
	}
	if err := e.cache.UpdateOrder(order); err != nil {
		log.Error().Err(err).Str("order", string(order.ClientOrderID)).Msg("cache update failed")
	}
	if e.metrics != nil {
		e.metrics.FillsApplied.Inc()
	}
	e.publishOrderEvent(fill)

	switch {
	case opened:
		e.openPosition(instrument, fill)
	case fill.Side == position.Entry:
		e.updatePosition(instrument, fill, position)
	case fill.LastQty.LessThanOrEqual(position.Quantity()):
		e.reducePosition(instrument, fill, position)
	default:
		e.flipPosition(instrument, fill, position)
	}
}

// resolvePosition determines the fill's position id and returns the open
// position it targets, or (nil, true) when a new position must open.
func (e *Engine) resolvePosition(fill *model.OrderFilled) (*model.Position, bool) {
	if fill.PositionID != "" {
		if position, ok := e.cache.Position(fill.PositionID); ok {
			if position.IsOpen() {
				return position, false
			}
			// The venue reused an id our cache holds closed; reopen under
			// a fresh local id.
			fill.PositionID = e.newPositionID()
		}
		return nil, true
	}
	if e.omsFor(fill.StrategyID) == model.OmsNetting {
		if position, ok := e.cache.PositionOpenForInstrument(fill.InstrumentID, fill.StrategyID); ok {
			fill.PositionID = position.ID
			return position, false
		}
	}
	fill.PositionID = e.newPositionID()
	return nil, true
}

func (e *Engine) openPosition(instrument model.Instrument, fill model.OrderFilled) {
	e.settleFill(instrument, fill, nil)
	position := model.NewPositionFromFill(instrument, fill.PositionID, fill)
	position.TraderID = e.cfg.TraderID
	if err := e.cache.AddPosition(position); err != nil {
		log.Error().Err(err).Str("position", string(position.ID)).Msg("cannot cache opened position")
		return
	}
	if e.metrics != nil {
		e.metrics.PositionsOpened.Inc()
	}
	e.publishPositionEvent(position.ToEvent(model.EventPositionOpened, fill.TradeID, fill.TsEvent))
}

func (e *Engine) updatePosition(instrument model.Instrument, fill model.OrderFilled, position *model.Position) {
	e.settleFill(instrument, fill, position)
	position.ApplyFill(instrument, fill)
	if err := e.cache.UpdatePosition(position); err != nil {
		log.Error().Err(err).Str("position", string(position.ID)).Msg("cannot cache position update")
		return
	}
	e.publishPositionEvent(position.ToEvent(model.EventPositionChanged, fill.TradeID, fill.TsEvent))
}

func (e *Engine) reducePosition(instrument model.Instrument, fill model.OrderFilled, position *model.Position) {
	e.settleFill(instrument, fill, position)
	position.ApplyFill(instrument, fill)
	if err := e.cache.UpdatePosition(position); err != nil {
		log.Error().Err(err).Str("position", string(position.ID)).Msg("cannot cache position update")
		return
	}
	if position.IsClosed() {
		if e.metrics != nil {
			e.metrics.PositionsClosed.Inc()
		}
		e.publishPositionEvent(position.ToEvent(model.EventPositionClosed, fill.TradeID, fill.TsEvent))
		return
	}
	e.publishPositionEvent(position.ToEvent(model.EventPositionChanged, fill.TradeID, fill.TsEvent))
}

// flipPosition splits an oversized opposing fill into a close leg that
// flattens the existing position and an open leg that opens the opposite
// side. Commission is apportioned by quantity.
func (e *Engine) flipPosition(instrument model.Instrument, fill model.OrderFilled, position *model.Position) {
	closeQty := position.Quantity()
	openQty := fill.LastQty.Sub(closeQty)

	closeCommission := model.ZeroMoney(fill.Commission.Currency)
	openCommission := model.ZeroMoney(fill.Commission.Currency)
	if !fill.Commission.IsZero() {
		closeCommission = model.NewMoney(
			fill.Commission.Amount.Mul(closeQty).Div(fill.LastQty), fill.Commission.Currency)
		openCommission = fill.Commission.Sub(closeCommission)
	}

	closeFill := fill
	closeFill.LastQty = closeQty
	closeFill.Commission = closeCommission

	e.settleFill(instrument, closeFill, position)
	position.ApplyFill(instrument, closeFill)
	if err := e.cache.UpdatePosition(position); err != nil {
		log.Error().Err(err).Str("position", string(position.ID)).Msg("cannot cache position close leg")
	}
	e.publishPositionEvent(position.ToEvent(model.EventPositionChanged, fill.TradeID, fill.TsEvent))
	if e.metrics != nil {
		e.metrics.PositionsClosed.Inc()
	}
	e.publishPositionEvent(position.ToEvent(model.EventPositionClosed, fill.TradeID, fill.TsEvent))

	openFill := fill
	openFill.LastQty = openQty
	openFill.Commission = openCommission
	openFill.PositionID = e.newPositionID()
	e.openPosition(instrument, openFill)
}

// settleFill runs the fill through the account ledger and publishes the
// resulting account state. position is the pre-fill state (nil on open).
func (e *Engine) settleFill(instrument model.Instrument, fill model.OrderFilled, position *model.Position) {
	if fill.AccountID == "" {
		return
	}
	acct, ok := e.cache.AccountForID(fill.AccountID)
	if !ok {
		return
	}
	state, err := e.accounts.SettleFill(acct, instrument, fill, position)
	if err != nil {
		e.countAccountError()
		log.Error().Err(err).
			Str("account", string(fill.AccountID)).
			Str("trade", string(fill.TradeID)).
			Msg("fill settlement failed")
		return
	}
	e.persistAndPublishAccount(acct, state)
}

// markQty is a guard used by reconciliation when comparing venue-reported
// position quantities against the cache.
func markQty(side model.PositionSide, qty decimal.Decimal) decimal.Decimal {
	if side == model.PositionShort {
		return qty.Neg()
	}
	return qty
}
