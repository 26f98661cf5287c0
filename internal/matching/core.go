package matching

import (
	"errors"
	"fmt"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MATCHING CORE - Per-instrument price book for the simulated venue
// ═══════════════════════════════════════════════════════════════════════════════
//
// Prices are raw int64 ticks at the instrument's price precision. Two
// red-black trees keep the resting orders in price-time priority (bids
// descending, asks ascending; strict FIFO within a level via an insertion
// sequence). The core only decides ordering and timing of triggers and
// fills; the injected callbacks do the rest. Single matching thread, no
// locks.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrOrderNotFound - delete/lookup on an id the core is not holding.
	ErrOrderNotFound = errors.New("order not in matching core")
	// ErrDuplicateOrder - AddOrder with an id already resting.
	ErrDuplicateOrder = errors.New("order already in matching core")
)

// TriggerFn fires when a stop/if-touched condition trips.
type TriggerFn func(order *model.Order)

// FillFn fills an order at the venue; liquidity selects the fee.
type FillFn func(order *model.Order, liquidity model.LiquiditySide)

// bookOrder is an order resting in the core.
type bookOrder struct {
	order     *model.Order
	price     int64
	trigger   int64
	seq       uint64
	triggered bool
	// initial records whether the order posted without crossing at
	// insertion (always true for trigger-type orders); posting makes its
	// eventual fill MAKER.
	initial bool
}

type levelKey struct {
	price int64
	seq   uint64
}

// Core is the matching core for one instrument.
type Core struct {
	instrument model.Instrument
	scale      decimal.Decimal

	bid, ask, last int64

	bids   *rbt.Tree[levelKey, *bookOrder]
	asks   *rbt.Tree[levelKey, *bookOrder]
	orders map[model.ClientOrderID]*bookOrder
	seq    uint64

	triggerStop TriggerFn
	fillMarket  FillFn
	fillLimit   FillFn
}

// NewCore creates a matching core with its delegation callbacks.
func NewCore(instrument model.Instrument, triggerStop TriggerFn, fillMarket, fillLimit FillFn) *Core {
	return &Core{
		instrument: instrument,
		scale:      decimal.New(1, instrument.PricePrecision),
		bids: rbt.NewWith[levelKey, *bookOrder](func(a, b levelKey) int {
			// Bids: highest price first, then FIFO.
			switch {
			case a.price > b.price:
				return -1
			case a.price < b.price:
				return 1
			case a.seq < b.seq:
				return -1
			case a.seq > b.seq:
				return 1
			}
			return 0
		}),
		asks: rbt.NewWith[levelKey, *bookOrder](func(a, b levelKey) int {
			// Asks: lowest price first, then FIFO.
			switch {
			case a.price < b.price:
				return -1
			case a.price > b.price:
				return 1
			case a.seq < b.seq:
				return -1
			case a.seq > b.seq:
				return 1
			}
			return 0
		}),
		orders:      make(map[model.ClientOrderID]*bookOrder),
		triggerStop: triggerStop,
		fillMarket:  fillMarket,
		fillLimit:   fillLimit,
	}
}

// ToTicks converts a decimal price to raw ticks at the book's precision.
func (c *Core) ToTicks(px decimal.Decimal) int64 {
	return px.Mul(c.scale).IntPart()
}

// FromTicks converts raw ticks back to a decimal price.
func (c *Core) FromTicks(ticks int64) decimal.Decimal {
	return decimal.New(ticks, -c.instrument.PricePrecision)
}

// SetQuote updates best bid/ask ticks from a quote.
func (c *Core) SetQuote(bid, ask decimal.Decimal) {
	c.bid = c.ToTicks(bid)
	c.ask = c.ToTicks(ask)
}

// SetLast updates the last traded price ticks.
func (c *Core) SetLast(last decimal.Decimal) {
	c.last = c.ToTicks(last)
}

// Bid returns the current best bid in ticks (0 when unset).
func (c *Core) Bid() int64 { return c.bid }

// Ask returns the current best ask in ticks (0 when unset).
func (c *Core) Ask() int64 { return c.ask }

// Last returns the last traded price in ticks (0 when unset).
func (c *Core) Last() int64 { return c.last }

// OrderCount returns the number of resting orders.
func (c *Core) OrderCount() int { return len(c.orders) }

// Exists reports whether an order is resting in the core.
func (c *Core) Exists(id model.ClientOrderID) bool {
	_, ok := c.orders[id]
	return ok
}

// WouldCross reports whether a limit at px on the given side would trade
// immediately against the current market. Post-only orders that would cross
// must be rejected upstream.
func (c *Core) WouldCross(side model.OrderSide, px decimal.Decimal) bool {
	ticks := c.ToTicks(px)
	if side == model.SideBuy {
		return c.ask > 0 && ticks >= c.ask
	}
	return c.bid > 0 && ticks <= c.bid
}

// AddOrder rests an order in the core. Market orders fill on the next
// iteration regardless of book state.
func (c *Core) AddOrder(order *model.Order) error {
	if _, exists := c.orders[order.ClientOrderID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ClientOrderID)
	}
	c.seq++
	bo := &bookOrder{
		order:   order,
		price:   c.ToTicks(order.Price),
		trigger: c.ToTicks(order.TriggerPrice),
		seq:     c.seq,
	}
	bo.initial = !c.crossesAt(order.Side, bo.price) || order.Type.HasTrigger()
	c.orders[order.ClientOrderID] = bo
	c.tree(order.Side).Put(levelKey{price: bo.price, seq: bo.seq}, bo)
	return nil
}

// DeleteOrder removes a resting order.
func (c *Core) DeleteOrder(id model.ClientOrderID) error {
	bo, ok := c.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	c.remove(bo)
	return nil
}

// Reset drops all resting orders and market state.
func (c *Core) Reset() {
	c.bids.Clear()
	c.asks.Clear()
	c.orders = make(map[model.ClientOrderID]*bookOrder)
	c.bid, c.ask, c.last = 0, 0, 0
}

// Orders returns the resting orders, bids before asks, in priority order.
func (c *Core) Orders() []*model.Order {
	out := make([]*model.Order, 0, len(c.orders))
	for _, bo := range c.snapshot(c.bids) {
		out = append(out, bo.order)
	}
	for _, bo := range c.snapshot(c.asks) {
		out = append(out, bo.order)
	}
	return out
}

// Iterate walks both sides in priority order and applies each order's
// matching predicate, delegating to the injected callbacks. Callbacks may
// remove the order (fill) or leave it resting.
func (c *Core) Iterate(ts int64) {
	_ = ts
	for _, bo := range c.snapshot(c.bids) {
		c.matchOrder(bo)
	}
	for _, bo := range c.snapshot(c.asks) {
		c.matchOrder(bo)
	}
}

func (c *Core) matchOrder(bo *bookOrder) {
	if !c.Exists(bo.order.ClientOrderID) {
		return // removed by an earlier callback this iteration
	}
	switch bo.order.Type {
	case model.OrderTypeMarket:
		c.fill(bo, c.fillMarket)
	case model.OrderTypeLimit:
		if c.limitMatched(bo) {
			c.fill(bo, c.fillLimit)
		}
	case model.OrderTypeStopMarket:
		if c.stopTriggered(bo) {
			c.remove(bo)
			c.triggerStop(bo.order)
			c.fillMarket(bo.order, model.LiquidityTaker)
		}
	case model.OrderTypeStopLimit:
		if !bo.triggered {
			if c.stopTriggered(bo) {
				bo.triggered = true
				c.triggerStop(bo.order)
			}
			return
		}
		if c.limitMatched(bo) {
			c.fill(bo, c.fillLimit)
		}
	case model.OrderTypeMarketIfTouched:
		if c.touchTriggered(bo) {
			c.remove(bo)
			c.triggerStop(bo.order)
			c.fillMarket(bo.order, model.LiquidityTaker)
		}
	case model.OrderTypeLimitIfTouched:
		if !bo.triggered {
			if c.touchTriggered(bo) {
				bo.triggered = true
				c.triggerStop(bo.order)
			}
			return
		}
		if c.limitMatched(bo) {
			c.fill(bo, c.fillLimit)
		}
	}
}

func (c *Core) fill(bo *bookOrder, fn FillFn) {
	liquidity := c.liquidity(bo)
	c.remove(bo)
	fn(bo.order, liquidity)
}

// liquidity resolves the fee side for a fill: an order that posted at
// insertion makes liquidity; one that crossed takes it.
func (c *Core) liquidity(bo *bookOrder) model.LiquiditySide {
	if bo.order.Type == model.OrderTypeMarket {
		return model.LiquidityTaker
	}
	if bo.triggered {
		// Stop-limit and limit-if-touched post after triggering.
		return model.LiquidityMaker
	}
	if bo.initial {
		return model.LiquidityMaker
	}
	return model.LiquidityTaker
}

// limitMatched applies the limit predicate: sells match when the bid
// reaches the price, buys when the ask comes down to it.
func (c *Core) limitMatched(bo *bookOrder) bool {
	if bo.order.Side == model.SideBuy {
		return c.ask > 0 && c.ask <= bo.price
	}
	return c.bid > 0 && c.bid >= bo.price
}

// stopTriggered applies the stop predicate: last crossing the trigger on
// the adverse side.
func (c *Core) stopTriggered(bo *bookOrder) bool {
	if c.last == 0 || bo.trigger == 0 {
		return false
	}
	if bo.order.Side == model.SideBuy {
		return c.last >= bo.trigger
	}
	return c.last <= bo.trigger
}

// touchTriggered is the symmetric predicate on the opposite side: buys
// trigger when the market touches down, sells when it touches up.
func (c *Core) touchTriggered(bo *bookOrder) bool {
	if c.last == 0 || bo.trigger == 0 {
		return false
	}
	if bo.order.Side == model.SideBuy {
		return c.last <= bo.trigger
	}
	return c.last >= bo.trigger
}

func (c *Core) crossesAt(side model.OrderSide, priceTicks int64) bool {
	if side == model.SideBuy {
		return c.ask > 0 && priceTicks >= c.ask
	}
	return c.bid > 0 && priceTicks <= c.bid
}

func (c *Core) tree(side model.OrderSide) *rbt.Tree[levelKey, *bookOrder] {
	if side == model.SideBuy {
		return c.bids
	}
	return c.asks
}

func (c *Core) remove(bo *bookOrder) {
	c.tree(bo.order.Side).Remove(levelKey{price: bo.price, seq: bo.seq})
	delete(c.orders, bo.order.ClientOrderID)
}

func (c *Core) snapshot(tree *rbt.Tree[levelKey, *bookOrder]) []*bookOrder {
	out := make([]*bookOrder, 0, tree.Size())
	it := tree.Iterator()
	for it.Next() {
		out = append(out, it.Value())
	}
	return out
}
