package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradecore/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleOrder() *model.Order {
	o := model.NewOrder("O-1", "T-1", "S-1", "BTCUSD.SIM", model.SideBuy, model.OrderTypeLimit, dec("2"), 7)
	o.Price = dec("20000")
	o.VenueOrderID = "V-1"
	o.Status = model.OrderStatusAccepted
	return o
}

func samplePosition() *model.Position {
	instr := model.Instrument{
		ID: "BTCUSD.SIM", BaseCurrency: model.BTC, QuoteCurrency: model.USD,
		SettlementCcy: model.USD, Multiplier: dec("1"),
	}
	fill := model.OrderFilled{
		OrderEventBase: model.OrderEventBase{ClientOrderID: "O-1", InstrumentID: instr.ID, StrategyID: "S-1", TsEvent: 9},
		TradeID:        "E-1", Side: model.SideBuy, LastQty: dec("2"), LastPx: dec("20000"),
	}
	return model.NewPositionFromFill(instr, "P-1", fill)
}

func TestMemoryRoundTrip(t *testing.T) {
	db := NewMemory()

	state := model.AccountState{
		AccountID:   "SIM-001",
		AccountType: model.AccountCash,
		Balances: []model.AccountBalance{
			{Currency: model.USD, Total: dec("1000"), Locked: dec("0"), Free: dec("1000")},
		},
		TsEvent: 1,
	}
	require.NoError(t, db.AddAccount(state))
	require.NoError(t, db.AddOrder(sampleOrder()))
	require.NoError(t, db.AddPosition(samplePosition()))

	accounts, err := db.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, model.AccountID("SIM-001"), accounts[0].AccountID)

	orders, err := db.LoadOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderStatusAccepted, orders[0].Status)
	assert.True(t, orders[0].Price.Equal(dec("20000")))

	positions, err := db.LoadPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].SignedQty.Equal(dec("2")))
	assert.Equal(t, model.OrderSide("BUY"), positions[0].Entry)
}

func TestMemoryUpdateReplaces(t *testing.T) {
	db := NewMemory()
	order := sampleOrder()
	require.NoError(t, db.AddOrder(order))

	order.Status = model.OrderStatusFilled
	order.FilledQty = dec("2")
	require.NoError(t, db.UpdateOrder(order))

	orders, err := db.LoadOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderStatusFilled, orders[0].Status)
}

func TestMemoryStrategyState(t *testing.T) {
	db := NewMemory()

	state, err := db.LoadStrategy("S-1")
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, db.UpdateStrategy("S-1", map[string]string{"ema": "102.5", "phase": "warm"}))
	state, err = db.LoadStrategy("S-1")
	require.NoError(t, err)
	assert.Equal(t, "102.5", state["ema"])

	// Stored state is a copy, not a live reference.
	state["ema"] = "mutated"
	reloaded, err := db.LoadStrategy("S-1")
	require.NoError(t, err)
	assert.Equal(t, "102.5", reloaded["ema"])

	require.NoError(t, db.DeleteStrategy("S-1"))
	state, err = db.LoadStrategy("S-1")
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestMemoryFlush(t *testing.T) {
	db := NewMemory()
	require.NoError(t, db.AddOrder(sampleOrder()))
	require.NoError(t, db.Flush())
	orders, err := db.LoadOrders()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRecordEncoding(t *testing.T) {
	record, err := orderRecord(sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "O-1", record.ClientOrderID)
	assert.Equal(t, "S-1", record.StrategyID)
	assert.Equal(t, "ACCEPTED", record.Status)
	assert.Contains(t, record.Data, `"client_order_id":"O-1"`)

	posRecord, err := positionRecord(samplePosition())
	require.NoError(t, err)
	assert.Equal(t, "P-1", posRecord.PositionID)
	assert.False(t, posRecord.Closed)
}
