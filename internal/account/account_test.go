package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradecore/internal/clock"
	"github.com/web3guy0/tradecore/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func btcusd() model.Instrument {
	return model.Instrument{
		ID:            "BTCUSD.SIM",
		BaseCurrency:  model.BTC,
		QuoteCurrency: model.USD,
		SettlementCcy: model.USD,
		Multiplier:    dec("1"),
		MakerFee:      dec("0.0005"),
		TakerFee:      dec("0.001"),
		MarginInit:    dec("0.1"),
		MarginMaint:   dec("0.05"),
	}
}

func cashState(total string) model.AccountState {
	return model.AccountState{
		AccountID:   "SIM-001",
		AccountType: model.AccountCash,
		Balances: []model.AccountBalance{
			{Currency: model.USD, Total: dec(total), Locked: dec("0"), Free: dec(total)},
			{Currency: model.BTC, Total: dec("10"), Locked: dec("0"), Free: dec("10")},
		},
		TsEvent: 1,
	}
}

func TestCashBalanceLocked(t *testing.T) {
	a, err := NewCashAccount(cashState("100000"))
	require.NoError(t, err)
	instr := btcusd()

	// BUY 2 @ 20000, taker 0.001: 2*20000 + 2*20000*0.001*2 = 40080 USD.
	locked := a.CalculateBalanceLocked(instr, model.SideBuy, dec("2"), dec("20000"), false)
	assert.Equal(t, model.USD, locked.Currency)
	assert.True(t, locked.Amount.Equal(dec("40080")), "locked = %s", locked.Amount)

	require.NoError(t, a.UpdateBalanceLocked(instr.ID, locked))
	b, _ := a.Balance(model.USD)
	assert.True(t, b.Locked.Equal(dec("40080")))
	assert.True(t, b.Free.Equal(dec("59920")))
	assert.True(t, b.Total.Equal(b.Locked.Add(b.Free)))

	// SELL locks base currency.
	sellLocked := a.CalculateBalanceLocked(instr, model.SideSell, dec("3"), dec("20000"), false)
	assert.Equal(t, model.BTC, sellLocked.Currency)
	assert.True(t, sellLocked.Amount.Equal(dec("3.006")), "locked = %s", sellLocked.Amount)
}

func TestCashLockedSumsPerInstrument(t *testing.T) {
	a, err := NewCashAccount(cashState("100000"))
	require.NoError(t, err)
	instr := btcusd()
	other := instr
	other.ID = "ETHUSD.SIM"

	require.NoError(t, a.UpdateBalanceLocked(instr.ID, model.NewMoney(dec("1000"), model.USD)))
	require.NoError(t, a.UpdateBalanceLocked(other.ID, model.NewMoney(dec("500"), model.USD)))

	b, _ := a.Balance(model.USD)
	assert.True(t, b.Locked.Equal(dec("1500")))
	assert.True(t, b.Locked.Equal(a.LockedTotal(model.USD)))

	require.NoError(t, a.ClearBalanceLocked(instr.ID))
	b, _ = a.Balance(model.USD)
	assert.True(t, b.Locked.Equal(dec("500")))
	assert.True(t, b.Free.Equal(dec("99500")))
}

func TestCashLockRejectedWhenInsufficient(t *testing.T) {
	a, err := NewCashAccount(cashState("100"))
	require.NoError(t, err)
	instr := btcusd()

	err = a.UpdateBalanceLocked(instr.ID, model.NewMoney(dec("500"), model.USD))
	require.ErrorIs(t, err, ErrBalanceNegative)

	// Nothing applied: balance stays consistent and untouched.
	b, _ := a.Balance(model.USD)
	assert.True(t, b.Locked.IsZero())
	assert.True(t, b.Free.Equal(dec("100")))
	_, held := a.BalanceLocked(instr.ID)
	assert.False(t, held)
}

func TestCashFillSettlement(t *testing.T) {
	clk := clock.NewManual(1_000)
	mgr := NewManager(clk)
	a, err := NewCashAccount(cashState("100000"))
	require.NoError(t, err)
	instr := btcusd()

	order := model.NewOrder("O-1", "T-1", "S-1", instr.ID, model.SideBuy, model.OrderTypeLimit, dec("2"), 1)
	order.Price = dec("20000")
	_, err = mgr.LockBalance(a, instr, order)
	require.NoError(t, err)

	fill := model.OrderFilled{
		OrderEventBase: model.OrderEventBase{
			ClientOrderID: "O-1", InstrumentID: instr.ID, StrategyID: "S-1", AccountID: "SIM-001", TsEvent: 2,
		},
		TradeID:       "E-1",
		Side:          model.SideBuy,
		LastQty:       dec("2"),
		LastPx:        dec("20000"),
		Commission:    model.NewMoney(dec("40"), model.USD),
		LiquiditySide: model.LiquidityTaker,
	}
	_, err = mgr.SettleFill(a, instr, fill, nil)
	require.NoError(t, err)

	// Lock cleared; base +2 BTC, quote -40000 USD, commission -40 USD.
	usd, _ := a.Balance(model.USD)
	btc, _ := a.Balance(model.BTC)
	assert.True(t, usd.Locked.IsZero())
	assert.True(t, usd.Total.Equal(dec("59960")), "usd total = %s", usd.Total)
	assert.True(t, btc.Total.Equal(dec("12")))
	assert.True(t, a.Commissions()[model.USD].Equal(dec("40")))
}

func marginState(total string) model.AccountState {
	return model.AccountState{
		AccountID:   "SIM-M",
		AccountType: model.AccountMargin,
		BaseCcy:     model.USD,
		Balances: []model.AccountBalance{
			{Currency: model.USD, Total: dec(total), Locked: dec("0"), Free: dec(total)},
		},
		TsEvent: 1,
	}
}

func TestMarginCalculations(t *testing.T) {
	a, err := NewMarginAccount(marginState("100000"))
	require.NoError(t, err)
	instr := btcusd()
	a.SetLeverage(instr.ID, dec("10"))

	// notional 40000, leverage 10: init = 4000*0.1 + 40000*0.001*2 = 480.
	init := a.CalculateMarginInit(instr, dec("2"), dec("20000"), false)
	assert.True(t, init.Amount.Equal(dec("480")), "init = %s", init.Amount)

	// maint = 4000*0.05 + 40000*0.001 = 240.
	maint := a.CalculateMarginMaint(instr, dec("2"), dec("20000"), false)
	assert.True(t, maint.Amount.Equal(dec("240")), "maint = %s", maint.Amount)
}

func TestMarginRecalculateClamps(t *testing.T) {
	a, err := NewMarginAccount(marginState("1000"))
	require.NoError(t, err)

	// Two instruments contributing 700 + 500 = 1200 > 1000 total.
	require.NoError(t, a.UpdateMarginInit("BTCUSD.SIM", model.NewMoney(dec("400"), model.USD)))
	require.NoError(t, a.UpdateMarginMaint("BTCUSD.SIM", model.NewMoney(dec("300"), model.USD)))
	require.NoError(t, a.UpdateMarginInit("ETHUSD.SIM", model.NewMoney(dec("500"), model.USD)))

	b, _ := a.Balance(model.USD)
	assert.True(t, b.Locked.Equal(dec("1000")))
	assert.True(t, b.Free.IsZero())
	assert.True(t, a.IsMarginExceeded(model.USD))

	// Dropping one instrument recovers.
	require.NoError(t, a.ClearMargin("ETHUSD.SIM"))
	b, _ = a.Balance(model.USD)
	assert.True(t, b.Locked.Equal(dec("700")))
	assert.True(t, b.Free.Equal(dec("300")))
	assert.False(t, a.IsMarginExceeded(model.USD))
}

func TestMarginPnLOnReducingFill(t *testing.T) {
	a, err := NewMarginAccount(marginState("100000"))
	require.NoError(t, err)
	instr := btcusd()

	openFill := model.OrderFilled{
		OrderEventBase: model.OrderEventBase{ClientOrderID: "O-1", InstrumentID: instr.ID, StrategyID: "S-1", TsEvent: 1},
		TradeID:        "E-1", Side: model.SideBuy, LastQty: dec("10"), LastPx: dec("100"),
	}
	pos := model.NewPositionFromFill(instr, "P-1", openFill)

	closeFill := model.OrderFilled{
		OrderEventBase: model.OrderEventBase{ClientOrderID: "O-2", InstrumentID: instr.ID, StrategyID: "S-1", TsEvent: 2},
		TradeID:        "E-2", Side: model.SideSell, LastQty: dec("10"), LastPx: dec("110"),
	}
	pnls := a.CalculatePnLs(instr, closeFill, pos)
	require.Len(t, pnls, 1)
	assert.Equal(t, model.USD, pnls[0].Currency)
	assert.True(t, pnls[0].Amount.Equal(dec("100")), "pnl = %s", pnls[0].Amount)

	// Same-side fill produces no realized PnL.
	addFill := closeFill
	addFill.Side = model.SideBuy
	assert.Empty(t, a.CalculatePnLs(instr, addFill, pos))
}

func TestBettingLiability(t *testing.T) {
	state := model.AccountState{
		AccountID:   "BET-1",
		AccountType: model.AccountBetting,
		Balances: []model.AccountBalance{
			{Currency: model.GBP, Total: dec("1000"), Locked: dec("0"), Free: dec("1000")},
		},
		TsEvent: 1,
	}
	a, err := NewBettingAccount(state)
	require.NoError(t, err)

	// Back (BUY) at odds 5.0 for 10: liability 10*(5-1) = 40.
	assert.True(t, a.Liability(dec("10"), dec("5"), model.SideBuy).Equal(dec("40")))
	// Lay (SELL): liability is the stake.
	assert.True(t, a.Liability(dec("10"), dec("5"), model.SideSell).Equal(dec("10")))

	impact := a.BalanceImpact(model.Instrument{QuoteCurrency: model.GBP}, dec("10"), dec("5"), model.SideBuy)
	assert.True(t, impact.Amount.Equal(dec("-40")))
}

func TestPurgeAccountEvents(t *testing.T) {
	a, err := NewCashAccount(cashState("1000"))
	require.NoError(t, err)
	for ts := int64(2); ts <= 5; ts++ {
		state := a.Snapshot(ts * 1_000_000_000)
		require.NoError(t, a.ApplyState(state))
	}
	require.Equal(t, 5, a.EventCount())

	// lookback 2s at t=6s: keeps events newer than 4s, plus the latest anyway.
	a.PurgeEvents(6_000_000_000, 2)
	assert.Equal(t, 1, a.EventCount())
	last, ok := a.LastEvent()
	require.True(t, ok)
	assert.Equal(t, int64(5_000_000_000), last.TsEvent)

	// lookback 0 purges everything.
	a.PurgeEvents(6_000_000_000, 0)
	assert.Equal(t, 0, a.EventCount())
	_, ok = a.LastEvent()
	assert.False(t, ok)
}

func TestAccountFactory(t *testing.T) {
	acct, err := New(cashState("10"))
	require.NoError(t, err)
	assert.Equal(t, model.AccountCash, acct.Type())

	acct, err = New(marginState("10"))
	require.NoError(t, err)
	assert.Equal(t, model.AccountMargin, acct.Type())

	_, err = New(model.AccountState{AccountType: "WEIRD"})
	require.Error(t, err)
}
