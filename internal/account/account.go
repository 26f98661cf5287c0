package account

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACCOUNT LEDGER - Cash and margin bookkeeping
// ═══════════════════════════════════════════════════════════════════════════════
//
// One Account per venue account. Ledgers are mutated only by the engine
// goroutine: ApplyState appends venue-reported snapshots, the engine's fill
// accounting calls the Update*/Recalculate* methods. A balance is replaced
// atomically by recomputation and never left internally inconsistent.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrBalanceNegative - an update would drive total or free below zero on
	// a cash account. The faulty balance is not applied.
	ErrBalanceNegative = errors.New("account balance would be negative")
	// ErrCurrencyNotFound - no balance exists for the requested currency.
	ErrCurrencyNotFound = errors.New("no balance for currency")
	// ErrInconsistentBalance - a reported balance violates
	// total = locked + free.
	ErrInconsistentBalance = errors.New("balance fails total = locked + free")
)

// Account is the shared capability surface over the concrete ledger types.
// The account type tag selects the per-type arithmetic.
type Account interface {
	ID() model.AccountID
	Type() model.AccountType
	BaseCurrency() model.Currency

	// ApplyState appends a venue-reported account snapshot.
	ApplyState(state model.AccountState) error

	Balances() map[model.Currency]model.AccountBalance
	Balance(c model.Currency) (model.AccountBalance, bool)
	StartingBalances() map[model.Currency]decimal.Decimal

	// UpdateBalances applies signed per-currency deltas to totals, then
	// recomputes locked/free for the touched currencies.
	UpdateBalances(deltas []model.Money) error

	UpdateCommissions(commission model.Money)
	Commissions() map[model.Currency]decimal.Decimal

	CalculateCommission(instrument model.Instrument, qty, px decimal.Decimal, liquidity model.LiquiditySide, useQuoteForInverse bool) model.Money
	CalculatePnLs(instrument model.Instrument, fill model.OrderFilled, position *model.Position) []model.Money
	BalanceImpact(instrument model.Instrument, qty, px decimal.Decimal, side model.OrderSide) model.Money

	Events() []model.AccountState
	LastEvent() (model.AccountState, bool)
	EventCount() int
	PurgeEvents(nowNS int64, lookbackSecs int64)

	// Snapshot builds a state event from the current balances.
	Snapshot(tsEvent int64) model.AccountState
}

// baseAccount carries the bookkeeping every account type shares.
type baseAccount struct {
	id          model.AccountID
	accountType model.AccountType
	baseCcy     model.Currency
	balances    map[model.Currency]model.AccountBalance
	starting    map[model.Currency]decimal.Decimal
	commissions map[model.Currency]decimal.Decimal
	events      []model.AccountState
}

func newBaseAccount(accountType model.AccountType, initial model.AccountState) (*baseAccount, error) {
	a := &baseAccount{
		id:          initial.AccountID,
		accountType: accountType,
		baseCcy:     initial.BaseCcy,
		balances:    make(map[model.Currency]model.AccountBalance),
		starting:    make(map[model.Currency]decimal.Decimal),
		commissions: make(map[model.Currency]decimal.Decimal),
	}
	if err := a.ApplyState(initial); err != nil {
		return nil, err
	}
	for c, b := range a.balances {
		a.starting[c] = b.Total
	}
	return a, nil
}

func (a *baseAccount) ID() model.AccountID          { return a.id }
func (a *baseAccount) Type() model.AccountType      { return a.accountType }
func (a *baseAccount) BaseCurrency() model.Currency { return a.baseCcy }

// ApplyState validates and applies every balance in the event, then appends
// it to the event log.
func (a *baseAccount) ApplyState(state model.AccountState) error {
	for _, b := range state.Balances {
		if !b.IsConsistent() {
			return fmt.Errorf("%w: %s total=%s locked=%s free=%s",
				ErrInconsistentBalance, b.Currency, b.Total, b.Locked, b.Free)
		}
	}
	for _, b := range state.Balances {
		a.balances[b.Currency] = b
	}
	a.events = append(a.events, state)
	return nil
}

func (a *baseAccount) Balances() map[model.Currency]model.AccountBalance {
	out := make(map[model.Currency]model.AccountBalance, len(a.balances))
	for c, b := range a.balances {
		out[c] = b
	}
	return out
}

func (a *baseAccount) Balance(c model.Currency) (model.AccountBalance, bool) {
	b, ok := a.balances[c]
	return b, ok
}

func (a *baseAccount) StartingBalances() map[model.Currency]decimal.Decimal {
	out := make(map[model.Currency]decimal.Decimal, len(a.starting))
	for c, d := range a.starting {
		out[c] = d
	}
	return out
}

// UpdateCommissions accumulates a commission (negative for rebates).
func (a *baseAccount) UpdateCommissions(commission model.Money) {
	if commission.IsZero() {
		return
	}
	a.commissions[commission.Currency] = a.commissions[commission.Currency].Add(commission.Amount)
}

func (a *baseAccount) Commissions() map[model.Currency]decimal.Decimal {
	out := make(map[model.Currency]decimal.Decimal, len(a.commissions))
	for c, d := range a.commissions {
		out[c] = d
	}
	return out
}

// CalculateCommission returns notional x (maker | taker) fee. For inverse
// instruments the commission is in base currency unless useQuoteForInverse.
func (a *baseAccount) CalculateCommission(
	instrument model.Instrument,
	qty, px decimal.Decimal,
	liquidity model.LiquiditySide,
	useQuoteForInverse bool,
) model.Money {
	notional := instrument.Notional(qty, px, useQuoteForInverse)
	rate := instrument.TakerFee
	if liquidity == model.LiquidityMaker {
		rate = instrument.MakerFee
	}
	return model.NewMoney(notional.Amount.Mul(rate), notional.Currency)
}

func (a *baseAccount) Events() []model.AccountState {
	out := make([]model.AccountState, len(a.events))
	copy(out, a.events)
	return out
}

func (a *baseAccount) LastEvent() (model.AccountState, bool) {
	if len(a.events) == 0 {
		return model.AccountState{}, false
	}
	return a.events[len(a.events)-1], true
}

func (a *baseAccount) EventCount() int { return len(a.events) }

// PurgeEvents discards events with ts_event + lookback <= now. A lookback of
// zero purges everything; otherwise the most recent event is always kept.
func (a *baseAccount) PurgeEvents(nowNS int64, lookbackSecs int64) {
	if lookbackSecs == 0 {
		a.events = nil
		return
	}
	lookbackNS := lookbackSecs * int64(1_000_000_000)
	kept := a.events[:0]
	last := len(a.events) - 1
	for i, ev := range a.events {
		if i == last || ev.TsEvent+lookbackNS > nowNS {
			kept = append(kept, ev)
		}
	}
	a.events = kept
}

// snapshotState builds an AccountState from current balances.
func (a *baseAccount) snapshotState(margins []model.MarginBalance, tsEvent int64) model.AccountState {
	balances := make([]model.AccountBalance, 0, len(a.balances))
	for _, b := range a.balances {
		balances = append(balances, b)
	}
	return model.AccountState{
		AccountID:   a.id,
		AccountType: a.accountType,
		BaseCcy:     a.baseCcy,
		Balances:    balances,
		Margins:     margins,
		TsEvent:     tsEvent,
	}
}

// applyTotals applies signed deltas to totals and returns the set of touched
// currencies. Rejects the whole batch if any total would go negative.
func (a *baseAccount) applyTotals(deltas []model.Money) (map[model.Currency]struct{}, error) {
	// Validate first so a failing batch leaves no partial state behind.
	pending := make(map[model.Currency]decimal.Decimal)
	for _, d := range deltas {
		pending[d.Currency] = pending[d.Currency].Add(d.Amount)
	}
	for c, delta := range pending {
		total := a.balances[c].Total.Add(delta)
		if total.IsNegative() {
			return nil, fmt.Errorf("%w: %s would total %s", ErrBalanceNegative, c, total)
		}
	}
	touched := make(map[model.Currency]struct{}, len(pending))
	for c, delta := range pending {
		b := a.balances[c]
		b.Currency = c
		b.Total = b.Total.Add(delta)
		b.Free = b.Total.Sub(b.Locked)
		a.balances[c] = b
		touched[c] = struct{}{}
	}
	return touched, nil
}

// New constructs the ledger matching the account type tag of the initial
// state event.
func New(initial model.AccountState) (Account, error) {
	switch initial.AccountType {
	case model.AccountCash:
		return NewCashAccount(initial)
	case model.AccountMargin:
		return NewMarginAccount(initial)
	case model.AccountBetting:
		return NewBettingAccount(initial)
	default:
		return nil, fmt.Errorf("unknown account type %q", initial.AccountType)
	}
}
