package venue

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradecore/internal/account"
	"github.com/web3guy0/tradecore/internal/bus"
	"github.com/web3guy0/tradecore/internal/cache"
	"github.com/web3guy0/tradecore/internal/clock"
	"github.com/web3guy0/tradecore/internal/engine"
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
		ID:             "BTCUSD.SIM",
		BaseCurrency:   model.BTC,
		QuoteCurrency:  model.USD,
		SettlementCcy:  model.USD,
		PricePrecision: 2,
		Multiplier:     dec("1"),
		MakerFee:       dec("0.001"),
		TakerFee:       dec("0.001"),
	}
}

type rig struct {
	bus    *bus.Bus
	cache  *cache.Cache
	engine *engine.Engine
	sim    *Sim
	acct   *account.CashAccount
	clk    *clock.Manual
}

func newRig(t *testing.T) *rig {
	t.Helper()
	msgBus := bus.New()
	execCache := cache.New(nil)
	clk := clock.NewManual(1_000)
	instr := btcusd()
	execCache.AddInstrument(instr)

	acct, err := account.NewCashAccount(model.AccountState{
		AccountID:   "SIM-001",
		AccountType: model.AccountCash,
		Balances: []model.AccountBalance{
			{Currency: model.USD, Total: dec("100000"), Locked: dec("0"), Free: dec("100000")},
			{Currency: model.BTC, Total: dec("10"), Locked: dec("0"), Free: dec("10")},
		},
		TsEvent: 1,
	})
	require.NoError(t, err)
	require.NoError(t, execCache.AddAccount(acct))

	eng := engine.New(engine.Config{TraderID: "T-1", OmsType: model.OmsNetting}, msgBus, execCache, clk, nil)
	sim := NewSim("SIM-EXEC", "SIM", "SIM-001", clk, eng.Dispatch)
	sim.RegisterInstrument(instr)
	require.NoError(t, sim.Start())
	require.NoError(t, eng.RegisterClient(sim))
	require.NoError(t, eng.Start())
	t.Cleanup(func() {
		if eng.State() == engine.StateRunning {
			_ = eng.Stop()
		}
	})
	return &rig{bus: msgBus, cache: execCache, engine: eng, sim: sim, acct: acct, clk: clk}
}

func limitBuy(id model.ClientOrderID, qty, px string) *model.Order {
	o := model.NewOrder(id, "T-1", "S-1", "BTCUSD.SIM", model.SideBuy, model.OrderTypeLimit, dec(qty), 1)
	o.Price = dec(px)
	return o
}

func submit(r *rig, order *model.Order) {
	r.engine.ExecuteCommand(&model.SubmitOrder{
		CommandScope: model.CommandScope{TraderID: "T-1", StrategyID: "S-1", InstrumentID: order.InstrumentID},
		Order:        order,
	})
}

func TestCashLockThenFill(t *testing.T) {
	r := newRig(t)

	// Resting: ask above the limit price, no fill yet.
	r.sim.OnQuote("BTCUSD.SIM", dec("20009.00"), dec("20010.00"), dec("20009.50"))

	order := limitBuy("O-1", "2", "20000.00")
	submit(r, order)

	// BUY 2 @ 20000, taker 0.001 both ways: locked 40080 USD.
	usd, _ := r.acct.Balance(model.USD)
	assert.True(t, usd.Locked.Equal(dec("40080")), "locked = %s", usd.Locked)
	assert.True(t, usd.Free.Equal(dec("59920")))
	assert.Equal(t, model.OrderStatusAccepted, order.Status)

	// Market comes down; the limit fills at its price.
	r.sim.OnQuote("BTCUSD.SIM", dec("19995.00"), dec("19999.00"), dec("19999.00"))

	assert.Equal(t, model.OrderStatusFilled, order.Status)
	usd, _ = r.acct.Balance(model.USD)
	btc, _ := r.acct.Balance(model.BTC)
	assert.True(t, usd.Locked.IsZero(), "lock cleared on fill")
	// -40000 notional, -40 commission (maker fee = taker fee here).
	assert.True(t, usd.Total.Equal(dec("59960")), "usd total = %s", usd.Total)
	assert.True(t, btc.Total.Equal(dec("12")))

	// A netted position opened long 2.
	positions := r.cache.PositionsOpen("BTCUSD.SIM", "S-1")
	require.Len(t, positions, 1)
	assert.True(t, positions[0].SignedQty.Equal(dec("2")))
	assert.True(t, r.cache.CheckIntegrity())
}

func TestCancelReleasesLock(t *testing.T) {
	r := newRig(t)
	r.sim.OnQuote("BTCUSD.SIM", dec("20009.00"), dec("20010.00"), dec("20009.50"))

	order := limitBuy("O-1", "1", "19000.00")
	submit(r, order)
	usd, _ := r.acct.Balance(model.USD)
	assert.False(t, usd.Locked.IsZero())

	r.engine.ExecuteCommand(&model.CancelOrder{
		CommandScope:  model.CommandScope{StrategyID: "S-1", InstrumentID: "BTCUSD.SIM"},
		ClientOrderID: "O-1",
	})

	assert.Equal(t, model.OrderStatusCanceled, order.Status)
	usd, _ = r.acct.Balance(model.USD)
	assert.True(t, usd.Locked.IsZero())
	assert.True(t, usd.Free.Equal(usd.Total))
}

func TestPostOnlyRejectedWhenCrossing(t *testing.T) {
	r := newRig(t)
	r.sim.OnQuote("BTCUSD.SIM", dec("20000.00"), dec("20001.00"), dec("20000.50"))

	order := limitBuy("O-1", "1", "20001.00")
	order.IsPostOnly = true
	submit(r, order)

	assert.Equal(t, model.OrderStatusRejected, order.Status)
	usd, _ := r.acct.Balance(model.USD)
	assert.True(t, usd.Locked.IsZero(), "rejected order leaves nothing locked")
}

func TestStopMarketThroughVenue(t *testing.T) {
	r := newRig(t)
	r.sim.OnQuote("BTCUSD.SIM", dec("20000.00"), dec("20001.00"), dec("20000.00"))

	stop := model.NewOrder("O-1", "T-1", "S-1", "BTCUSD.SIM", model.SideSell, model.OrderTypeStopMarket, dec("1"), 1)
	stop.TriggerPrice = dec("19900.00")
	r.engine.ExecuteCommand(&model.SubmitOrder{
		CommandScope: model.CommandScope{StrategyID: "S-1", InstrumentID: "BTCUSD.SIM"},
		Order:        stop,
	})
	assert.Equal(t, model.OrderStatusAccepted, stop.Status)

	// Price trades through the trigger: stop fires and fills at the bid.
	r.sim.OnQuote("BTCUSD.SIM", dec("19890.00"), dec("19891.00"), dec("19895.00"))

	assert.Equal(t, model.OrderStatusFilled, stop.Status)
	assert.True(t, stop.AvgPx.Equal(dec("19890")), "filled at bid, got %s", stop.AvgPx)
}

func TestCancelAllBySide(t *testing.T) {
	r := newRig(t)
	r.sim.OnQuote("BTCUSD.SIM", dec("20000.00"), dec("20001.00"), dec("20000.50"))

	buy := limitBuy("O-1", "1", "19000.00")
	sell := model.NewOrder("O-2", "T-1", "S-1", "BTCUSD.SIM", model.SideSell, model.OrderTypeLimit, dec("1"), 1)
	sell.Price = dec("21000.00")
	submit(r, buy)
	submit(r, sell)

	r.engine.ExecuteCommand(&model.CancelAllOrders{
		CommandScope: model.CommandScope{StrategyID: "S-1", InstrumentID: "BTCUSD.SIM"},
		OrderSide:    model.SideBuy,
	})

	assert.Equal(t, model.OrderStatusCanceled, buy.Status)
	assert.Equal(t, model.OrderStatusAccepted, sell.Status)
}

func TestMassStatusRoundTrip(t *testing.T) {
	r := newRig(t)
	r.sim.OnQuote("BTCUSD.SIM", dec("20000.00"), dec("20001.00"), dec("20000.50"))

	order := limitBuy("O-1", "2", "20001.00") // crosses, fills immediately
	submit(r, order)
	require.Equal(t, model.OrderStatusFilled, order.Status)

	mass, err := r.sim.GenerateMassStatus()
	require.NoError(t, err)
	require.Len(t, mass.Orders, 1)

	// Replaying the venue's own snapshot must change nothing.
	ordersBefore := len(r.cache.Orders("", ""))
	filledBefore := order.FilledQty
	r.engine.ReconcileMassStatus(mass)
	assert.Equal(t, ordersBefore, len(r.cache.Orders("", "")))
	assert.True(t, order.FilledQty.Equal(filledBefore))
	assert.True(t, r.cache.CheckIntegrity())
}
