package account

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// BettingAccount is a cash ledger where the locked amount is the bet
// liability rather than the notional: backing (BUY) risks qty x (price - 1),
// laying (SELL) risks the stake itself.
type BettingAccount struct {
	*CashAccount
}

// NewBettingAccount builds a betting ledger from its first state event.
func NewBettingAccount(initial model.AccountState) (*BettingAccount, error) {
	base, err := newBaseAccount(model.AccountBetting, initial)
	if err != nil {
		return nil, err
	}
	return &BettingAccount{
		CashAccount: &CashAccount{
			baseAccount: base,
			locked:      make(map[model.InstrumentID]model.Money),
		},
	}, nil
}

// Liability returns the amount at risk for a bet: qty x (price - 1) for a
// back (BUY), qty for a lay (SELL). Prices are decimal odds.
func (a *BettingAccount) Liability(qty, px decimal.Decimal, side model.OrderSide) decimal.Decimal {
	if side == model.SideBuy {
		return qty.Mul(px.Sub(decimal.NewFromInt(1)))
	}
	return qty
}

// CalculateBalanceLocked locks the liability in the market's quote currency.
func (a *BettingAccount) CalculateBalanceLocked(
	instrument model.Instrument,
	side model.OrderSide,
	qty, px decimal.Decimal,
	_ bool,
) model.Money {
	return model.NewMoney(a.Liability(qty, px, side), instrument.QuoteCurrency)
}

// BalanceImpact is the negated liability.
func (a *BettingAccount) BalanceImpact(
	instrument model.Instrument,
	qty, px decimal.Decimal,
	side model.OrderSide,
) model.Money {
	return model.NewMoney(a.Liability(qty, px, side).Neg(), instrument.QuoteCurrency)
}
