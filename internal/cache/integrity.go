package cache

import (
	"github.com/rs/zerolog/log"
)

// CheckIntegrity walks every cache and every index both ways, counting
// mismatches. Returns true when the caches and indexes form the expected
// bi-directional one-to-one relationship. Never panics; violations are
// logged at error severity and recovery is not attempted.
func (c *Cache) CheckIntegrity() bool {
	failures := 0
	fail := func(msg string, kv ...string) {
		failures++
		ev := log.Error().Str("check", "integrity")
		for i := 0; i+1 < len(kv); i += 2 {
			ev = ev.Str(kv[i], kv[i+1])
		}
		ev.Msg(msg)
	}

	// Cache -> index.
	for id, order := range c.orders {
		if id != order.ClientOrderID {
			fail("order keyed under wrong id", "key", string(id), "order", string(order.ClientOrderID))
		}
		if !c.indexOrders.contains(id) {
			fail("order not in index_orders", "order", string(id))
		}
		if order.IsWorking() && !c.indexOrdersWorking.contains(id) {
			fail("working order not in working bucket", "order", string(id))
		}
		if order.IsCompleted() && !c.indexOrdersCompleted.contains(id) {
			fail("completed order not in completed bucket", "order", string(id))
		}
		if strategyID, ok := c.indexOrderStrategy[id]; !ok || strategyID != order.StrategyID {
			fail("order strategy index mismatch", "order", string(id))
		}
		if set, ok := c.indexInstrumentOrders[order.InstrumentID]; !ok || !set.contains(id) {
			fail("order missing from instrument index", "order", string(id))
		}
		// Strategy scan views disappear wholesale on DeleteStrategy, so
		// membership is only required while the view exists.
		if set, ok := c.indexStrategyOrders[order.StrategyID]; ok && !set.contains(id) {
			fail("order missing from strategy index", "order", string(id))
		} else if !ok && c.indexStrategies.contains(order.StrategyID) {
			fail("strategy in roster without order index", "strategy", string(order.StrategyID))
		}
		if order.VenueOrderID != "" {
			if mapped, ok := c.indexVenueOrderIDs[order.VenueOrderID]; !ok || mapped != id {
				fail("venue order id index mismatch", "order", string(id), "venue_order_id", string(order.VenueOrderID))
			}
		}
	}
	for id, position := range c.positions {
		if id != position.ID {
			fail("position keyed under wrong id", "key", string(id))
		}
		if !c.indexPositions.contains(id) {
			fail("position not in index_positions", "position", string(id))
		}
		if position.IsOpen() && !c.indexPositionsOpen.contains(id) {
			fail("open position not in open bucket", "position", string(id))
		}
		if position.IsClosed() && !c.indexPositionsClosed.contains(id) {
			fail("closed position not in closed bucket", "position", string(id))
		}
		if strategyID, ok := c.indexPositionStrategy[id]; !ok || strategyID != position.StrategyID {
			fail("position strategy index mismatch", "position", string(id))
		}
		if set, ok := c.indexInstrumentPosition[position.InstrumentID]; !ok || !set.contains(id) {
			fail("position missing from instrument index", "position", string(id))
		}
		if set, ok := c.indexStrategyPositions[position.StrategyID]; ok && !set.contains(id) {
			fail("position missing from strategy index", "position", string(id))
		}
		if len(position.OrderIDs) == 0 {
			fail("position has no contributing orders", "position", string(id))
		}
		for _, orderID := range position.OrderIDs {
			if mapped, ok := c.indexOrderPosition[orderID]; !ok || mapped != id {
				fail("contributing order not mapped to position", "position", string(id), "order", string(orderID))
			}
		}
	}

	// Index -> cache.
	for id := range c.indexOrders {
		if _, ok := c.orders[id]; !ok {
			fail("index_orders references missing order", "order", string(id))
		}
	}
	for id := range c.indexOrdersWorking {
		order, ok := c.orders[id]
		if !ok || !order.IsWorking() {
			fail("working bucket references non-working order", "order", string(id))
		}
	}
	for id := range c.indexOrdersCompleted {
		order, ok := c.orders[id]
		if !ok || !order.IsCompleted() {
			fail("completed bucket references non-completed order", "order", string(id))
		}
	}
	for venueOrderID, clientOrderID := range c.indexVenueOrderIDs {
		order, ok := c.orders[clientOrderID]
		if !ok {
			fail("venue order id references missing order", "venue_order_id", string(venueOrderID))
		} else if order.VenueOrderID != "" && order.VenueOrderID != venueOrderID {
			fail("venue order id disagrees with order", "venue_order_id", string(venueOrderID))
		}
	}
	for id := range c.indexPositions {
		if _, ok := c.positions[id]; !ok {
			fail("index_positions references missing position", "position", string(id))
		}
	}
	for id := range c.indexPositionsOpen {
		position, ok := c.positions[id]
		if !ok || !position.IsOpen() {
			fail("open bucket references non-open position", "position", string(id))
		}
	}
	for id := range c.indexPositionsClosed {
		position, ok := c.positions[id]
		if !ok || !position.IsClosed() {
			fail("closed bucket references non-closed position", "position", string(id))
		}
	}
	// An order may be pre-assigned a position id before the opening fill
	// arrives, so order->position entries are only required to reference a
	// cached order and mirror the inverse index.
	for orderID := range c.indexOrderPosition {
		if _, ok := c.orders[orderID]; !ok {
			fail("order->position index references missing order", "order", string(orderID))
		}
	}
	for positionID, orders := range c.indexPositionOrders {
		for orderID := range orders {
			if mapped, ok := c.indexOrderPosition[orderID]; !ok || mapped != positionID {
				fail("position->orders not mirrored by order->position", "position", string(positionID), "order", string(orderID))
			}
		}
	}
	for strategyID, orders := range c.indexStrategyOrders {
		for orderID := range orders {
			order, ok := c.orders[orderID]
			if !ok || order.StrategyID != strategyID {
				fail("strategy order index disagrees with order", "strategy", string(strategyID), "order", string(orderID))
			}
		}
	}
	for strategyID, positions := range c.indexStrategyPositions {
		for positionID := range positions {
			position, ok := c.positions[positionID]
			if !ok || position.StrategyID != strategyID {
				fail("strategy position index disagrees with position", "strategy", string(strategyID), "position", string(positionID))
			}
		}
	}

	if failures > 0 {
		log.Error().Int("failures", failures).Msg("cache integrity check FAILED")
		return false
	}
	log.Debug().Msg("cache integrity check passed")
	return true
}

// CheckResiduals reports working orders and open positions as warnings.
// Called at shutdown; residual state usually means something is still live
// at the venue.
func (c *Cache) CheckResiduals() bool {
	residuals := false
	for id := range c.indexOrdersWorking {
		residuals = true
		order := c.orders[id]
		log.Warn().
			Str("order", string(id)).
			Str("status", string(order.Status)).
			Str("instrument", string(order.InstrumentID)).
			Msg("residual working order")
	}
	for id := range c.indexPositionsOpen {
		residuals = true
		position := c.positions[id]
		log.Warn().
			Str("position", string(id)).
			Str("side", string(position.Side())).
			Str("qty", position.Quantity().String()).
			Msg("residual open position")
	}
	return residuals
}
