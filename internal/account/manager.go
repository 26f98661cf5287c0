package account

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradecore/internal/clock"
	"github.com/web3guy0/tradecore/internal/model"
)

// Manager runs the balance side of the order lifecycle: locking on submit,
// unlocking on terminal states, settling fills. Each mutation returns the
// resulting AccountState event for the caller to cache and publish.
type Manager struct {
	clk clock.Clock
}

// NewManager creates a fill-accounting manager.
func NewManager(clk clock.Clock) *Manager {
	return &Manager{clk: clk}
}

// LockBalance reserves funds (cash/betting) or initial margin (margin) for a
// newly submitted order.
func (m *Manager) LockBalance(acct Account, instrument model.Instrument, order *model.Order) (model.AccountState, error) {
	px := order.Price
	if px.IsZero() {
		px = order.TriggerPrice
	}
	switch a := acct.(type) {
	case *BettingAccount:
		locked := a.CalculateBalanceLocked(instrument, order.Side, order.Quantity, px, false)
		if err := a.UpdateBalanceLocked(order.InstrumentID, locked); err != nil {
			return model.AccountState{}, err
		}
	case *CashAccount:
		locked := a.CalculateBalanceLocked(instrument, order.Side, order.Quantity, px, false)
		if err := a.UpdateBalanceLocked(order.InstrumentID, locked); err != nil {
			return model.AccountState{}, err
		}
	case *MarginAccount:
		margin := a.CalculateMarginInit(instrument, order.Quantity, px, false)
		if err := a.UpdateMarginInit(order.InstrumentID, margin); err != nil {
			return model.AccountState{}, err
		}
	default:
		return model.AccountState{}, fmt.Errorf("unsupported account type %T", acct)
	}
	return m.record(acct), nil
}

// UnlockBalance releases the reservation for an order that reached a
// terminal state without (further) filling.
func (m *Manager) UnlockBalance(acct Account, instrumentID model.InstrumentID) (model.AccountState, error) {
	switch a := acct.(type) {
	case *BettingAccount:
		if err := a.ClearBalanceLocked(instrumentID); err != nil {
			return model.AccountState{}, err
		}
	case *CashAccount:
		if err := a.ClearBalanceLocked(instrumentID); err != nil {
			return model.AccountState{}, err
		}
	case *MarginAccount:
		if err := a.ClearMargin(instrumentID); err != nil {
			return model.AccountState{}, err
		}
	default:
		return model.AccountState{}, fmt.Errorf("unsupported account type %T", acct)
	}
	return m.record(acct), nil
}

// SettleFill applies one fill to the ledger: clears the order's lock,
// applies PnL legs and the commission, and (for margin accounts) rewrites
// maintenance margin from the surviving position.
func (m *Manager) SettleFill(
	acct Account,
	instrument model.Instrument,
	fill model.OrderFilled,
	position *model.Position,
) (model.AccountState, error) {
	// The position passed in reflects state BEFORE this fill was applied,
	// so opposing-side PnL computes against the old average open price.
	deltas := acct.CalculatePnLs(instrument, fill, position)
	if !fill.Commission.IsZero() {
		acct.UpdateCommissions(fill.Commission)
		deltas = append(deltas, fill.Commission.Neg())
	}

	switch a := acct.(type) {
	case *BettingAccount:
		if err := a.ClearBalanceLocked(fill.InstrumentID); err != nil {
			return model.AccountState{}, err
		}
	case *CashAccount:
		if err := a.ClearBalanceLocked(fill.InstrumentID); err != nil {
			return model.AccountState{}, err
		}
	}

	if len(deltas) > 0 {
		if err := acct.UpdateBalances(deltas); err != nil {
			return model.AccountState{}, err
		}
	}

	if a, ok := acct.(*MarginAccount); ok {
		if err := m.remarginPosition(a, instrument, fill, position); err != nil {
			return model.AccountState{}, err
		}
	}
	return m.record(acct), nil
}

// remarginPosition rewrites maintenance margin after a fill changed the
// position, or clears it when the position went flat.
func (m *Manager) remarginPosition(
	a *MarginAccount,
	instrument model.Instrument,
	fill model.OrderFilled,
	position *model.Position,
) error {
	qty := fill.LastQty
	if position != nil {
		if fill.Side == position.Entry {
			qty = position.Quantity().Add(fill.LastQty)
		} else {
			qty = position.Quantity().Sub(fill.LastQty)
		}
	}
	if !qty.IsPositive() {
		return a.ClearMargin(instrument.ID)
	}
	maint := a.CalculateMarginMaint(instrument, qty, fill.LastPx, false)
	if err := a.UpdateMarginMaint(instrument.ID, maint); err != nil {
		return err
	}
	// Initial margin no longer applies once the order is done working.
	return a.UpdateMarginInit(instrument.ID, model.ZeroMoney(maint.Currency))
}

// PurgeAccountEvents trims the account's event log.
func (m *Manager) PurgeAccountEvents(acct Account, lookbackSecs int64) {
	before := acct.EventCount()
	acct.PurgeEvents(m.clk.NowNS(), lookbackSecs)
	log.Debug().
		Str("account", string(acct.ID())).
		Int("purged", before-acct.EventCount()).
		Int("remaining", acct.EventCount()).
		Msg("purged account events")
}

// record appends a snapshot event to the account log and returns it.
func (m *Manager) record(acct Account) model.AccountState {
	state := acct.Snapshot(m.clk.NowNS())
	if err := acct.ApplyState(state); err != nil {
		log.Error().Err(err).Str("account", string(acct.ID())).Msg("account snapshot rejected")
	}
	return state
}
