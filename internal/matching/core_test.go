package matching

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

type coreRecorder struct {
	triggered []model.ClientOrderID
	market    []model.ClientOrderID
	limit     []model.ClientOrderID
	liquidity map[model.ClientOrderID]model.LiquiditySide
}

func newRecorder() *coreRecorder {
	return &coreRecorder{liquidity: make(map[model.ClientOrderID]model.LiquiditySide)}
}

func (r *coreRecorder) core() *Core {
	instrument := model.Instrument{
		ID:             "BTCUSD.SIM",
		BaseCurrency:   model.BTC,
		QuoteCurrency:  model.USD,
		PricePrecision: 2,
	}
	return NewCore(
		instrument,
		func(o *model.Order) { r.triggered = append(r.triggered, o.ClientOrderID) },
		func(o *model.Order, l model.LiquiditySide) {
			r.market = append(r.market, o.ClientOrderID)
			r.liquidity[o.ClientOrderID] = l
		},
		func(o *model.Order, l model.LiquiditySide) {
			r.limit = append(r.limit, o.ClientOrderID)
			r.liquidity[o.ClientOrderID] = l
		},
	)
}

func limitOrder(id model.ClientOrderID, side model.OrderSide, px string) *model.Order {
	o := model.NewOrder(id, "T-1", "S-1", "BTCUSD.SIM", side, model.OrderTypeLimit, dec("1"), 1)
	o.Price = dec(px)
	return o
}

func stopOrder(id model.ClientOrderID, side model.OrderSide, orderType model.OrderType, trigger, px string) *model.Order {
	o := model.NewOrder(id, "T-1", "S-1", "BTCUSD.SIM", side, orderType, dec("1"), 1)
	o.TriggerPrice = dec(trigger)
	if px != "" {
		o.Price = dec(px)
	}
	return o
}

func TestTickConversion(t *testing.T) {
	r := newRecorder()
	c := r.core()
	assert.Equal(t, int64(10050), c.ToTicks(dec("100.50")))
	assert.True(t, c.FromTicks(10050).Equal(dec("100.5")))
}

func TestLimitBuyMatchesWhenAskComesDown(t *testing.T) {
	r := newRecorder()
	c := r.core()
	buy := limitOrder("B-1", model.SideBuy, "100.00")
	c.SetQuote(dec("100.50"), dec("100.60"))
	require.NoError(t, c.AddOrder(buy))

	c.Iterate(1)
	assert.Empty(t, r.limit)

	c.SetQuote(dec("99.80"), dec("99.90"))
	c.Iterate(2)
	require.Equal(t, []model.ClientOrderID{"B-1"}, r.limit)
	assert.Equal(t, model.LiquidityMaker, r.liquidity["B-1"])
	assert.False(t, c.Exists("B-1"))
}

func TestLimitSellMatchesWhenBidComesUp(t *testing.T) {
	r := newRecorder()
	c := r.core()
	sell := limitOrder("S-1", model.SideSell, "101.00")
	c.SetQuote(dec("100.00"), dec("100.10"))
	require.NoError(t, c.AddOrder(sell))

	c.Iterate(1)
	assert.Empty(t, r.limit)

	c.SetQuote(dec("101.00"), dec("101.10"))
	c.Iterate(2)
	require.Equal(t, []model.ClientOrderID{"S-1"}, r.limit)
	assert.Equal(t, model.LiquidityMaker, r.liquidity["S-1"])
}

func TestCrossingLimitIsTaker(t *testing.T) {
	r := newRecorder()
	c := r.core()
	c.SetQuote(dec("100.00"), dec("100.10"))

	// Buy limit above the ask crosses at insertion.
	buy := limitOrder("B-1", model.SideBuy, "100.20")
	require.NoError(t, c.AddOrder(buy))
	c.Iterate(1)
	require.Equal(t, []model.ClientOrderID{"B-1"}, r.limit)
	assert.Equal(t, model.LiquidityTaker, r.liquidity["B-1"])
}

func TestPostOnlyWouldCross(t *testing.T) {
	r := newRecorder()
	c := r.core()
	c.SetQuote(dec("100.00"), dec("100.10"))
	assert.True(t, c.WouldCross(model.SideBuy, dec("100.10")))
	assert.False(t, c.WouldCross(model.SideBuy, dec("100.00")))
	assert.True(t, c.WouldCross(model.SideSell, dec("100.00")))
	assert.False(t, c.WouldCross(model.SideSell, dec("100.10")))
}

func TestStopMarketTriggersOnLast(t *testing.T) {
	r := newRecorder()
	c := r.core()
	stop := stopOrder("ST-1", model.SideSell, model.OrderTypeStopMarket, "99.00", "")
	require.NoError(t, c.AddOrder(stop))

	c.SetLast(dec("99.50"))
	c.Iterate(1)
	assert.Empty(t, r.triggered)

	c.SetLast(dec("98.90"))
	c.Iterate(2)
	require.Equal(t, []model.ClientOrderID{"ST-1"}, r.triggered)
	require.Equal(t, []model.ClientOrderID{"ST-1"}, r.market)
	assert.Equal(t, model.LiquidityTaker, r.liquidity["ST-1"])
	assert.False(t, c.Exists("ST-1"))
}

func TestStopLimitPostsAfterTrigger(t *testing.T) {
	r := newRecorder()
	c := r.core()
	stop := stopOrder("SL-1", model.SideBuy, model.OrderTypeStopLimit, "101.00", "100.50")
	require.NoError(t, c.AddOrder(stop))

	c.SetLast(dec("101.20"))
	c.Iterate(1)
	require.Equal(t, []model.ClientOrderID{"SL-1"}, r.triggered)
	assert.Empty(t, r.limit, "posts as limit, does not fill yet")
	assert.True(t, c.Exists("SL-1"))

	c.SetQuote(dec("100.30"), dec("100.40"))
	c.Iterate(2)
	require.Equal(t, []model.ClientOrderID{"SL-1"}, r.limit)
	assert.Equal(t, model.LiquidityMaker, r.liquidity["SL-1"])
}

func TestMarketIfTouched(t *testing.T) {
	r := newRecorder()
	c := r.core()
	// Buy MIT triggers when the market touches DOWN to the trigger.
	mit := stopOrder("MIT-1", model.SideBuy, model.OrderTypeMarketIfTouched, "99.00", "")
	require.NoError(t, c.AddOrder(mit))

	c.SetLast(dec("99.50"))
	c.Iterate(1)
	assert.Empty(t, r.market)

	c.SetLast(dec("98.80"))
	c.Iterate(2)
	require.Equal(t, []model.ClientOrderID{"MIT-1"}, r.market)
}

func TestPriceTimePriority(t *testing.T) {
	r := newRecorder()
	c := r.core()
	// Three resting sells; bid jumps over all of them. Expect fills in
	// ask-priority order: lowest price first, FIFO within a level.
	first := limitOrder("A-1", model.SideSell, "101.00")
	second := limitOrder("A-2", model.SideSell, "100.50")
	third := limitOrder("A-3", model.SideSell, "101.00")
	require.NoError(t, c.AddOrder(first))
	require.NoError(t, c.AddOrder(second))
	require.NoError(t, c.AddOrder(third))

	c.SetQuote(dec("102.00"), dec("102.10"))
	c.Iterate(1)
	require.Equal(t, []model.ClientOrderID{"A-2", "A-1", "A-3"}, r.limit)
}

func TestBidPriorityDescending(t *testing.T) {
	r := newRecorder()
	c := r.core()
	low := limitOrder("B-1", model.SideBuy, "99.00")
	high := limitOrder("B-2", model.SideBuy, "100.00")
	require.NoError(t, c.AddOrder(low))
	require.NoError(t, c.AddOrder(high))

	c.SetQuote(dec("98.00"), dec("98.50"))
	c.Iterate(1)
	require.Equal(t, []model.ClientOrderID{"B-2", "B-1"}, r.limit)
}

func TestDeleteAndDuplicate(t *testing.T) {
	r := newRecorder()
	c := r.core()
	o := limitOrder("B-1", model.SideBuy, "100.00")
	require.NoError(t, c.AddOrder(o))
	require.ErrorIs(t, c.AddOrder(o), ErrDuplicateOrder)
	require.NoError(t, c.DeleteOrder("B-1"))
	require.ErrorIs(t, c.DeleteOrder("B-1"), ErrOrderNotFound)
	assert.Equal(t, 0, c.OrderCount())
}

func TestReset(t *testing.T) {
	r := newRecorder()
	c := r.core()
	require.NoError(t, c.AddOrder(limitOrder("B-1", model.SideBuy, "100.00")))
	c.SetQuote(dec("100"), dec("101"))
	c.SetLast(dec("100.5"))
	c.Reset()
	assert.Equal(t, 0, c.OrderCount())
	assert.Equal(t, int64(0), c.Bid())
	assert.Equal(t, int64(0), c.Last())
}
