package account

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// MarginAccount locks initial + maintenance margin per instrument. When the
// aggregate margin for a currency exceeds the total balance, free clamps to
// zero and the account is flagged margin-exceeded instead of erroring;
// trading logic may reject further new orders while the flag is raised.
type MarginAccount struct {
	*baseAccount
	margins         map[model.InstrumentID]model.MarginBalance
	leverages       map[model.InstrumentID]decimal.Decimal
	defaultLeverage decimal.Decimal
	exceeded        map[model.Currency]bool
}

// NewMarginAccount builds a margin ledger from its first state event.
func NewMarginAccount(initial model.AccountState) (*MarginAccount, error) {
	base, err := newBaseAccount(model.AccountMargin, initial)
	if err != nil {
		return nil, err
	}
	a := &MarginAccount{
		baseAccount:     base,
		margins:         make(map[model.InstrumentID]model.MarginBalance),
		leverages:       make(map[model.InstrumentID]decimal.Decimal),
		defaultLeverage: decimal.NewFromInt(1),
		exceeded:        make(map[model.Currency]bool),
	}
	for _, m := range initial.Margins {
		a.margins[m.InstrumentID] = m
	}
	return a, nil
}

// SetDefaultLeverage sets the leverage used when no per-instrument override
// exists. Values below 1 are ignored.
func (a *MarginAccount) SetDefaultLeverage(leverage decimal.Decimal) {
	if leverage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		a.defaultLeverage = leverage
	}
}

// SetLeverage sets a per-instrument leverage override.
func (a *MarginAccount) SetLeverage(instrumentID model.InstrumentID, leverage decimal.Decimal) {
	if leverage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		a.leverages[instrumentID] = leverage
	}
}

// Leverage returns the leverage in force for the instrument.
func (a *MarginAccount) Leverage(instrumentID model.InstrumentID) decimal.Decimal {
	if l, ok := a.leverages[instrumentID]; ok {
		return l
	}
	return a.defaultLeverage
}

// CalculateMarginInit returns the initial margin for a prospective order:
// notional / leverage x init rate, plus a two-sided taker-fee buffer
// covering open and close.
func (a *MarginAccount) CalculateMarginInit(
	instrument model.Instrument,
	qty, px decimal.Decimal,
	useQuoteForInverse bool,
) model.Money {
	notional := instrument.Notional(qty, px, useQuoteForInverse)
	adjusted := notional.Amount.Div(a.Leverage(instrument.ID))
	margin := adjusted.Mul(instrument.MarginInit)
	feeBuffer := notional.Amount.Mul(instrument.TakerFee).Mul(decimal.NewFromInt(2))
	return model.NewMoney(margin.Add(feeBuffer), notional.Currency)
}

// CalculateMarginMaint returns the maintenance margin for an open position:
// notional / leverage x maint rate, plus a single taker-fee buffer.
func (a *MarginAccount) CalculateMarginMaint(
	instrument model.Instrument,
	qty, px decimal.Decimal,
	useQuoteForInverse bool,
) model.Money {
	notional := instrument.Notional(qty, px, useQuoteForInverse)
	adjusted := notional.Amount.Div(a.Leverage(instrument.ID))
	margin := adjusted.Mul(instrument.MarginMaint)
	feeBuffer := notional.Amount.Mul(instrument.TakerFee)
	return model.NewMoney(margin.Add(feeBuffer), notional.Currency)
}

// UpdateMarginInit replaces the initial margin for one instrument.
func (a *MarginAccount) UpdateMarginInit(instrumentID model.InstrumentID, margin model.Money) error {
	if margin.IsNegative() {
		return fmt.Errorf("%w: initial margin %s for %s", ErrBalanceNegative, margin, instrumentID)
	}
	m := a.margins[instrumentID]
	m.InstrumentID = instrumentID
	m.Currency = margin.Currency
	m.Initial = margin.Amount
	a.margins[instrumentID] = m
	return a.RecalculateBalance(margin.Currency)
}

// UpdateMarginMaint replaces the maintenance margin for one instrument.
func (a *MarginAccount) UpdateMarginMaint(instrumentID model.InstrumentID, margin model.Money) error {
	if margin.IsNegative() {
		return fmt.Errorf("%w: maintenance margin %s for %s", ErrBalanceNegative, margin, instrumentID)
	}
	m := a.margins[instrumentID]
	m.InstrumentID = instrumentID
	m.Currency = margin.Currency
	m.Maintenance = margin.Amount
	a.margins[instrumentID] = m
	return a.RecalculateBalance(margin.Currency)
}

// ClearMargin drops the margin entry for one instrument (position closed,
// orders gone) and recomputes its currency.
func (a *MarginAccount) ClearMargin(instrumentID model.InstrumentID) error {
	m, ok := a.margins[instrumentID]
	if !ok {
		return nil
	}
	delete(a.margins, instrumentID)
	return a.RecalculateBalance(m.Currency)
}

// Margin returns the margin pair for one instrument.
func (a *MarginAccount) Margin(instrumentID model.InstrumentID) (model.MarginBalance, bool) {
	m, ok := a.margins[instrumentID]
	return m, ok
}

// Margins returns every per-instrument margin.
func (a *MarginAccount) Margins() []model.MarginBalance {
	out := make([]model.MarginBalance, 0, len(a.margins))
	for _, m := range a.margins {
		out = append(out, m)
	}
	return out
}

// IsMarginExceeded reports whether the currency is clamped.
func (a *MarginAccount) IsMarginExceeded(currency model.Currency) bool {
	return a.exceeded[currency]
}

// RecalculateBalance aggregates initial + maintenance margin over the
// currency's instruments. Aggregates beyond the total clamp free to zero and
// raise the margin-exceeded condition rather than erroring.
func (a *MarginAccount) RecalculateBalance(currency model.Currency) error {
	b, ok := a.balances[currency]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCurrencyNotFound, currency)
	}
	locked := decimal.Zero
	for _, m := range a.margins {
		if m.Currency == currency {
			locked = locked.Add(m.Initial).Add(m.Maintenance)
		}
	}
	if locked.GreaterThan(b.Total) {
		log.Warn().
			Str("account", string(a.id)).
			Str("currency", string(currency)).
			Str("margin", locked.String()).
			Str("total", b.Total.String()).
			Msg("margin exceeded, clamping free balance to zero")
		b.Locked = b.Total
		b.Free = decimal.Zero
		a.balances[currency] = b
		a.exceeded[currency] = true
		return nil
	}
	b.Locked = locked
	b.Free = b.Total.Sub(locked)
	a.balances[currency] = b
	a.exceeded[currency] = false
	return nil
}

// UpdateBalances applies PnL/commission deltas to totals, then recomputes
// margin locks for the touched currencies.
func (a *MarginAccount) UpdateBalances(deltas []model.Money) error {
	touched, err := a.applyTotals(deltas)
	if err != nil {
		return err
	}
	for c := range touched {
		if err := a.RecalculateBalance(c); err != nil {
			return err
		}
	}
	return nil
}

// CalculatePnLs returns the realized PnL leg when the fill reduces an
// opposing position. Commissions are accounted separately.
func (a *MarginAccount) CalculatePnLs(
	instrument model.Instrument,
	fill model.OrderFilled,
	position *model.Position,
) []model.Money {
	if position == nil || position.IsClosed() || fill.Side == position.Entry {
		return nil
	}
	closeQty := decimal.Min(fill.LastQty, position.Quantity())
	diff := fill.LastPx.Sub(position.AvgPxOpen)
	if position.Side() == model.PositionShort {
		diff = diff.Neg()
	}
	pnl := diff.Mul(closeQty).Mul(multiplierOrOne(instrument.Multiplier))
	currency := instrument.QuoteCurrency
	if instrument.IsInverse {
		currency = instrument.BaseCurrency
		if !fill.LastPx.IsZero() {
			pnl = pnl.Div(fill.LastPx)
		}
	} else if instrument.SettlementCcy != "" {
		currency = instrument.SettlementCcy
	}
	return []model.Money{model.NewMoney(pnl, currency)}
}

// BalanceImpact on a margin account is the margin consumed, not the
// notional: the position is carried, not settled.
func (a *MarginAccount) BalanceImpact(
	instrument model.Instrument,
	qty, px decimal.Decimal,
	side model.OrderSide,
) model.Money {
	init := a.CalculateMarginInit(instrument, qty, px, false)
	return init.Neg()
}

// Snapshot builds a state event including the margin map.
func (a *MarginAccount) Snapshot(tsEvent int64) model.AccountState {
	return a.snapshotState(a.Margins(), tsEvent)
}
