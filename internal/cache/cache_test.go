package cache

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradecore/internal/account"
	"github.com/web3guy0/tradecore/internal/model"
	"github.com/web3guy0/tradecore/internal/store"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testInstrument() model.Instrument {
	return model.Instrument{
		ID:            "BTCUSD.SIM",
		BaseCurrency:  model.BTC,
		QuoteCurrency: model.USD,
		Multiplier:    dec("1"),
		TakerFee:      dec("0.001"),
	}
}

func newOrder(id model.ClientOrderID, strategy model.StrategyID, side model.OrderSide) *model.Order {
	return model.NewOrder(id, "T-1", strategy, "BTCUSD.SIM", side, model.OrderTypeLimit, dec("1"), 1)
}

func fillFor(order *model.Order, tradeID model.TradeID, qty, px string) model.OrderFilled {
	return model.OrderFilled{
		OrderEventBase: model.OrderEventBase{
			ClientOrderID: order.ClientOrderID,
			InstrumentID:  order.InstrumentID,
			StrategyID:    order.StrategyID,
			TsEvent:       2,
		},
		TradeID: tradeID,
		Side:    order.Side,
		LastQty: dec(qty),
		LastPx:  dec(px),
	}
}

func TestAddOrderDuplicateFails(t *testing.T) {
	c := New(nil)
	order := newOrder("O-1", "S-1", model.SideBuy)
	require.NoError(t, c.AddOrder(order, ""))
	require.ErrorIs(t, c.AddOrder(order, ""), ErrDuplicateID)
	assert.True(t, c.CheckIntegrity())
}

func TestUpdateOrderReclassifiesBuckets(t *testing.T) {
	c := New(nil)
	order := newOrder("O-1", "S-1", model.SideBuy)
	require.NoError(t, c.AddOrder(order, ""))

	// INITIALIZED: neither bucket.
	assert.Empty(t, c.OrdersWorking("", ""))
	assert.Empty(t, c.OrdersCompleted("", ""))

	require.NoError(t, order.Apply(model.OrderSubmitted{OrderEventBase: base(order)}))
	require.NoError(t, c.UpdateOrder(order))
	assert.Len(t, c.OrdersWorking("", ""), 1)

	require.NoError(t, order.Apply(model.OrderAccepted{OrderEventBase: baseWithVenue(order, "V-1")}))
	require.NoError(t, c.UpdateOrder(order))
	got, ok := c.OrderForVenueID("V-1")
	require.True(t, ok)
	assert.Equal(t, order.ClientOrderID, got.ClientOrderID)

	require.NoError(t, order.Apply(model.OrderCanceled{OrderEventBase: base(order)}))
	require.NoError(t, c.UpdateOrder(order))
	assert.Empty(t, c.OrdersWorking("", ""))
	assert.Len(t, c.OrdersCompleted("", ""), 1)
	assert.True(t, c.CheckIntegrity())
}

func base(o *model.Order) model.OrderEventBase {
	return model.OrderEventBase{
		ClientOrderID: o.ClientOrderID,
		InstrumentID:  o.InstrumentID,
		StrategyID:    o.StrategyID,
		TsEvent:       2,
	}
}

func baseWithVenue(o *model.Order, venueID model.VenueOrderID) model.OrderEventBase {
	b := base(o)
	b.VenueOrderID = venueID
	return b
}

func TestPositionLifecycleBuckets(t *testing.T) {
	c := New(nil)
	instr := testInstrument()
	order := newOrder("O-1", "S-1", model.SideBuy)
	require.NoError(t, c.AddOrder(order, ""))

	fill := fillFor(order, "E-1", "10", "100")
	pos := model.NewPositionFromFill(instr, "P-1", fill)
	require.NoError(t, c.AddPosition(pos))
	require.ErrorIs(t, c.AddPosition(pos), ErrDuplicateID)

	open := c.PositionsOpen("", "")
	require.Len(t, open, 1)
	got, ok := c.PositionForOrder("O-1")
	require.True(t, ok)
	assert.Equal(t, pos.ID, got.ID)

	// Close it.
	closeOrder := newOrder("O-2", "S-1", model.SideSell)
	require.NoError(t, c.AddOrder(closeOrder, pos.ID))
	pos.ApplyFill(instr, fillFor(closeOrder, "E-2", "10", "110"))
	require.NoError(t, c.UpdatePosition(pos))

	assert.Empty(t, c.PositionsOpen("", ""))
	assert.Len(t, c.PositionsClosed("", ""), 1)
	assert.True(t, c.CheckIntegrity())
}

func TestQueryFiltersIntersect(t *testing.T) {
	c := New(nil)
	o1 := newOrder("O-1", "S-1", model.SideBuy)
	o2 := newOrder("O-2", "S-2", model.SideBuy)
	o3 := model.NewOrder("O-3", "T-1", "S-1", "ETHUSD.SIM", model.SideSell, model.OrderTypeLimit, dec("1"), 1)
	require.NoError(t, c.AddOrder(o1, ""))
	require.NoError(t, c.AddOrder(o2, ""))
	require.NoError(t, c.AddOrder(o3, ""))

	assert.Len(t, c.Orders("", ""), 3)
	assert.Len(t, c.Orders("BTCUSD.SIM", ""), 2)
	assert.Len(t, c.Orders("", "S-1"), 2)
	assert.Len(t, c.Orders("BTCUSD.SIM", "S-1"), 1)
	assert.Len(t, c.Orders("ETHUSD.SIM", "S-2"), 0)

	ids := c.ClientOrderIDs("", "S-1")
	assert.Equal(t, []model.ClientOrderID{"O-1", "O-3"}, ids)

	assert.ElementsMatch(t, []model.StrategyID{"S-1", "S-2"}, c.StrategyIDs())
}

func TestDeleteStrategyKeepsIntegrity(t *testing.T) {
	c := New(store.NewMemory())
	o1 := newOrder("O-1", "S-1", model.SideBuy)
	require.NoError(t, c.AddOrder(o1, ""))
	require.NoError(t, c.DeleteStrategy("S-1"))
	// The roster entry and scan views are gone; the order itself remains.
	assert.NotContains(t, c.StrategyIDs(), model.StrategyID("S-1"))
	assert.Len(t, c.Orders("", ""), 1)
	assert.True(t, c.CheckIntegrity())
}

func TestIntegrityAfterOperationSequences(t *testing.T) {
	c := New(nil)
	instr := testInstrument()

	for i, seq := range [][]func(){
		{
			func() { _ = c.AddOrder(newOrder("A-1", "S-1", model.SideBuy), "") },
			func() { _ = c.AddOrder(newOrder("A-2", "S-1", model.SideSell), "P-9") },
		},
		{
			func() {
				o := newOrder("B-1", "S-2", model.SideBuy)
				_ = c.AddOrder(o, "")
				_ = o.Apply(model.OrderSubmitted{OrderEventBase: base(o)})
				_ = c.UpdateOrder(o)
				fill := fillFor(o, "EB-1", "5", "100")
				_ = o.Apply(fill)
				_ = c.UpdateOrder(o)
				pos := model.NewPositionFromFill(instr, "PB-1", fill)
				_ = c.AddPosition(pos)
			},
		},
		{
			func() { _ = c.DeleteStrategy("S-2") },
		},
	} {
		for _, op := range seq {
			op()
		}
		assert.True(t, c.CheckIntegrity(), "sequence %d broke integrity", i)
	}
}

func TestResiduals(t *testing.T) {
	c := New(nil)
	assert.False(t, c.CheckResiduals())

	o := newOrder("O-1", "S-1", model.SideBuy)
	require.NoError(t, c.AddOrder(o, ""))
	require.NoError(t, o.Apply(model.OrderSubmitted{OrderEventBase: base(o)}))
	require.NoError(t, c.UpdateOrder(o))
	assert.True(t, c.CheckResiduals())
}

func TestResetClearsEverything(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.AddOrder(newOrder("O-1", "S-1", model.SideBuy), ""))
	c.Reset()
	assert.Empty(t, c.Orders("", ""))
	assert.False(t, c.OrderExists("O-1"))
	assert.True(t, c.CheckIntegrity())
}

func TestLoadFromStoreAndBuildIndex(t *testing.T) {
	db := store.NewMemory()
	instr := testInstrument()

	// Session one writes through the cache.
	c1 := New(db)
	state := model.AccountState{
		AccountID:   "SIM-001",
		AccountType: model.AccountCash,
		Balances: []model.AccountBalance{
			{Currency: model.USD, Total: dec("1000"), Locked: dec("0"), Free: dec("1000")},
		},
		TsEvent: 1,
	}
	acct, err := account.New(state)
	require.NoError(t, err)
	require.NoError(t, c1.AddAccount(acct))

	o := newOrder("O-1", "S-1", model.SideBuy)
	require.NoError(t, c1.AddOrder(o, ""))
	fill := fillFor(o, "E-1", "1", "100")
	require.NoError(t, o.Apply(model.OrderSubmitted{OrderEventBase: base(o)}))
	require.NoError(t, o.Apply(fill))
	require.NoError(t, c1.UpdateOrder(o))
	pos := model.NewPositionFromFill(instr, "P-1", fill)
	require.NoError(t, c1.AddPosition(pos))

	// Session two loads and rebuilds.
	c2 := New(db)
	require.NoError(t, c2.CacheAccounts())
	require.NoError(t, c2.CacheOrders())
	require.NoError(t, c2.CachePositions())
	c2.BuildIndex()

	assert.True(t, c2.OrderExists("O-1"))
	assert.True(t, c2.PositionExists("P-1"))
	_, ok := c2.Account("SIM")
	assert.True(t, ok)
	got, ok := c2.PositionForOrder("O-1")
	require.True(t, ok)
	assert.Equal(t, model.PositionID("P-1"), got.ID)
	assert.True(t, c2.CheckIntegrity())
}
