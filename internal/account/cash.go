package account

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// CashAccount locks the full cost of working orders: quote notional plus a
// two-sided taker-fee estimate for buys, base quantity plus fees for sells.
type CashAccount struct {
	*baseAccount
	locked map[model.InstrumentID]model.Money
}

// NewCashAccount builds a cash ledger from its first state event.
func NewCashAccount(initial model.AccountState) (*CashAccount, error) {
	base, err := newBaseAccount(model.AccountCash, initial)
	if err != nil {
		return nil, err
	}
	return &CashAccount{
		baseAccount: base,
		locked:      make(map[model.InstrumentID]model.Money),
	}, nil
}

// CalculateBalanceLocked returns the amount to lock for a working order:
// notional plus an estimated two-sided taker fee. Buys lock quote currency,
// sells lock base (for spot).
func (a *CashAccount) CalculateBalanceLocked(
	instrument model.Instrument,
	side model.OrderSide,
	qty, px decimal.Decimal,
	useQuoteForInverse bool,
) model.Money {
	var notional model.Money
	if side == model.SideBuy {
		notional = instrument.Notional(qty, px, useQuoteForInverse)
	} else {
		// Sells deliver the base asset.
		notional = model.NewMoney(qty.Mul(instrument.Multiplier), instrument.BaseCurrency)
		if instrument.IsInverse && useQuoteForInverse {
			notional = instrument.Notional(qty, px, true)
		}
	}
	// Taker fee both ways covers entry and exit.
	fee := notional.Amount.Mul(instrument.TakerFee).Mul(decimal.NewFromInt(2))
	return model.NewMoney(notional.Amount.Add(fee), notional.Currency)
}

// UpdateBalanceLocked sets the locked amount for one instrument and
// recomputes the affected currency balance.
func (a *CashAccount) UpdateBalanceLocked(instrumentID model.InstrumentID, locked model.Money) error {
	if locked.IsNegative() {
		return fmt.Errorf("%w: locked %s for %s", ErrBalanceNegative, locked, instrumentID)
	}
	prev, had := a.locked[instrumentID]
	a.locked[instrumentID] = locked
	if err := a.RecalculateBalance(locked.Currency); err != nil {
		// Roll back so a rejected lock leaves the ledger untouched.
		if had {
			a.locked[instrumentID] = prev
		} else {
			delete(a.locked, instrumentID)
		}
		return err
	}
	if had && prev.Currency != locked.Currency {
		return a.RecalculateBalance(prev.Currency)
	}
	return nil
}

// ClearBalanceLocked removes the lock for one instrument (order terminal or
// filled) and recomputes the affected currency.
func (a *CashAccount) ClearBalanceLocked(instrumentID model.InstrumentID) error {
	locked, ok := a.locked[instrumentID]
	if !ok {
		return nil
	}
	delete(a.locked, instrumentID)
	return a.RecalculateBalance(locked.Currency)
}

// BalanceLocked returns the current lock for one instrument.
func (a *CashAccount) BalanceLocked(instrumentID model.InstrumentID) (model.Money, bool) {
	m, ok := a.locked[instrumentID]
	return m, ok
}

// LockedTotal sums the per-instrument locks in one currency.
func (a *CashAccount) LockedTotal(currency model.Currency) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range a.locked {
		if m.Currency == currency {
			sum = sum.Add(m.Amount)
		}
	}
	return sum
}

// RecalculateBalance rewrites locked and free for one currency from the
// per-instrument locks. A negative free is rejected and nothing is applied.
func (a *CashAccount) RecalculateBalance(currency model.Currency) error {
	b, ok := a.balances[currency]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCurrencyNotFound, currency)
	}
	locked := a.LockedTotal(currency)
	free := b.Total.Sub(locked)
	if free.IsNegative() {
		return fmt.Errorf("%w: %s free would be %s", ErrBalanceNegative, currency, free)
	}
	b.Locked = locked
	b.Free = free
	a.balances[currency] = b
	return nil
}

// UpdateBalances applies fill deltas to totals, then re-derives locked/free
// for every touched currency.
func (a *CashAccount) UpdateBalances(deltas []model.Money) error {
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

// CalculatePnLs returns the base and quote legs of a fill on a cash account.
func (a *CashAccount) CalculatePnLs(
	instrument model.Instrument,
	fill model.OrderFilled,
	_ *model.Position,
) []model.Money {
	baseQty := fill.LastQty.Mul(multiplierOrOne(instrument.Multiplier))
	quoteQty := baseQty.Mul(fill.LastPx)
	if fill.Side == model.SideBuy {
		return []model.Money{
			model.NewMoney(baseQty, instrument.BaseCurrency),
			model.NewMoney(quoteQty.Neg(), instrument.QuoteCurrency),
		}
	}
	return []model.Money{
		model.NewMoney(baseQty.Neg(), instrument.BaseCurrency),
		model.NewMoney(quoteQty, instrument.QuoteCurrency),
	}
}

// BalanceImpact is the signed settlement effect of a fill on the cost
// currency: buys spend quote, sells spend base.
func (a *CashAccount) BalanceImpact(
	instrument model.Instrument,
	qty, px decimal.Decimal,
	side model.OrderSide,
) model.Money {
	if side == model.SideBuy {
		n := instrument.Notional(qty, px, false)
		return n.Neg()
	}
	return model.NewMoney(qty.Mul(multiplierOrOne(instrument.Multiplier)).Neg(), instrument.BaseCurrency)
}

// Snapshot builds a state event from the current balances.
func (a *CashAccount) Snapshot(tsEvent int64) model.AccountState {
	return a.snapshotState(nil, tsEvent)
}

func multiplierOrOne(m decimal.Decimal) decimal.Decimal {
	if m.IsZero() {
		return decimal.NewFromInt(1)
	}
	return m
}
