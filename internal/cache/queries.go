package cache

import (
	"sort"

	"github.com/web3guy0/tradecore/internal/account"
	"github.com/web3guy0/tradecore/internal/model"
)

// ───────────────────────────────────────────────────────────────────────────────
// Queries. Singular getters return (value, ok); plural getters take optional
// instrument/strategy filters resolved as an intersection of the per-axis
// index sets. Empty filters return the top-level bucket directly.
// ───────────────────────────────────────────────────────────────────────────────

// Account returns the account for a venue.
func (c *Cache) Account(venue model.Venue) (account.Account, bool) {
	id, ok := c.indexVenueAccount[venue]
	if !ok {
		return nil, false
	}
	acct, ok := c.accounts[id]
	return acct, ok
}

// AccountForID returns the account by id.
func (c *Cache) AccountForID(id model.AccountID) (account.Account, bool) {
	acct, ok := c.accounts[id]
	return acct, ok
}

// Accounts returns every cached account.
func (c *Cache) Accounts() []account.Account {
	out := make([]account.Account, 0, len(c.accounts))
	for _, acct := range c.accounts {
		out = append(out, acct)
	}
	return out
}

// Instrument returns a registered instrument definition.
func (c *Cache) Instrument(id model.InstrumentID) (model.Instrument, bool) {
	instrument, ok := c.instruments[id]
	return instrument, ok
}

// Order returns the order by client order id.
func (c *Cache) Order(id model.ClientOrderID) (*model.Order, bool) {
	order, ok := c.orders[id]
	return order, ok
}

// OrderForVenueID resolves a venue order id to the order.
func (c *Cache) OrderForVenueID(id model.VenueOrderID) (*model.Order, bool) {
	clientID, ok := c.indexVenueOrderIDs[id]
	if !ok {
		return nil, false
	}
	return c.Order(clientID)
}

// ClientOrderIDForVenueID resolves the 1:1 venue id mapping.
func (c *Cache) ClientOrderIDForVenueID(id model.VenueOrderID) (model.ClientOrderID, bool) {
	clientID, ok := c.indexVenueOrderIDs[id]
	return clientID, ok
}

// OrderExists reports whether the client order id is cached.
func (c *Cache) OrderExists(id model.ClientOrderID) bool {
	return c.indexOrders.contains(id)
}

// ClientOrderIDs returns the filtered set of order ids.
func (c *Cache) ClientOrderIDs(instrumentID model.InstrumentID, strategyID model.StrategyID) []model.ClientOrderID {
	return sortedOrderIDs(c.filterOrderIDs(c.indexOrders, instrumentID, strategyID))
}

// ClientOrderIDsWorking returns working order ids under the filters.
func (c *Cache) ClientOrderIDsWorking(instrumentID model.InstrumentID, strategyID model.StrategyID) []model.ClientOrderID {
	return sortedOrderIDs(c.filterOrderIDs(c.indexOrdersWorking, instrumentID, strategyID))
}

// ClientOrderIDsCompleted returns completed order ids under the filters.
func (c *Cache) ClientOrderIDsCompleted(instrumentID model.InstrumentID, strategyID model.StrategyID) []model.ClientOrderID {
	return sortedOrderIDs(c.filterOrderIDs(c.indexOrdersCompleted, instrumentID, strategyID))
}

// Orders returns the filtered orders.
func (c *Cache) Orders(instrumentID model.InstrumentID, strategyID model.StrategyID) []*model.Order {
	return c.ordersFor(c.filterOrderIDs(c.indexOrders, instrumentID, strategyID))
}

// OrdersWorking returns the filtered working orders.
func (c *Cache) OrdersWorking(instrumentID model.InstrumentID, strategyID model.StrategyID) []*model.Order {
	return c.ordersFor(c.filterOrderIDs(c.indexOrdersWorking, instrumentID, strategyID))
}

// OrdersCompleted returns the filtered completed orders.
func (c *Cache) OrdersCompleted(instrumentID model.InstrumentID, strategyID model.StrategyID) []*model.Order {
	return c.ordersFor(c.filterOrderIDs(c.indexOrdersCompleted, instrumentID, strategyID))
}

// OrdersWorkingCount returns the working order count under the filters.
func (c *Cache) OrdersWorkingCount(instrumentID model.InstrumentID, strategyID model.StrategyID) int {
	return len(c.filterOrderIDs(c.indexOrdersWorking, instrumentID, strategyID))
}

// Position returns the position by id.
func (c *Cache) Position(id model.PositionID) (*model.Position, bool) {
	position, ok := c.positions[id]
	return position, ok
}

// PositionExists reports whether the position id is cached.
func (c *Cache) PositionExists(id model.PositionID) bool {
	return c.indexPositions.contains(id)
}

// PositionForOrder returns the position an order contributed to.
func (c *Cache) PositionForOrder(id model.ClientOrderID) (*model.Position, bool) {
	positionID, ok := c.indexOrderPosition[id]
	if !ok {
		return nil, false
	}
	return c.Position(positionID)
}

// PositionIDForOrder returns the position id assigned to an order.
func (c *Cache) PositionIDForOrder(id model.ClientOrderID) (model.PositionID, bool) {
	positionID, ok := c.indexOrderPosition[id]
	return positionID, ok
}

// PositionIDs returns the filtered set of position ids.
func (c *Cache) PositionIDs(instrumentID model.InstrumentID, strategyID model.StrategyID) []model.PositionID {
	return sortedPositionIDs(c.filterPositionIDs(c.indexPositions, instrumentID, strategyID))
}

// PositionIDsOpen returns open position ids under the filters.
func (c *Cache) PositionIDsOpen(instrumentID model.InstrumentID, strategyID model.StrategyID) []model.PositionID {
	return sortedPositionIDs(c.filterPositionIDs(c.indexPositionsOpen, instrumentID, strategyID))
}

// PositionIDsClosed returns closed position ids under the filters.
func (c *Cache) PositionIDsClosed(instrumentID model.InstrumentID, strategyID model.StrategyID) []model.PositionID {
	return sortedPositionIDs(c.filterPositionIDs(c.indexPositionsClosed, instrumentID, strategyID))
}

// Positions returns the filtered positions.
func (c *Cache) Positions(instrumentID model.InstrumentID, strategyID model.StrategyID) []*model.Position {
	return c.positionsFor(c.filterPositionIDs(c.indexPositions, instrumentID, strategyID))
}

// PositionsOpen returns the filtered open positions.
func (c *Cache) PositionsOpen(instrumentID model.InstrumentID, strategyID model.StrategyID) []*model.Position {
	return c.positionsFor(c.filterPositionIDs(c.indexPositionsOpen, instrumentID, strategyID))
}

// PositionsClosed returns the filtered closed positions.
func (c *Cache) PositionsClosed(instrumentID model.InstrumentID, strategyID model.StrategyID) []*model.Position {
	return c.positionsFor(c.filterPositionIDs(c.indexPositionsClosed, instrumentID, strategyID))
}

// PositionOpenForInstrument returns the single open position for an
// (instrument, strategy) pair, the NETTING lookup.
func (c *Cache) PositionOpenForInstrument(instrumentID model.InstrumentID, strategyID model.StrategyID) (*model.Position, bool) {
	for id := range c.filterPositionIDs(c.indexPositionsOpen, instrumentID, strategyID) {
		return c.Position(id)
	}
	return nil, false
}

// OrdersForPosition returns the orders that contributed to a position.
func (c *Cache) OrdersForPosition(id model.PositionID) []*model.Order {
	return c.ordersFor(c.indexPositionOrders[id])
}

// StrategyForOrder returns the strategy that owns an order.
func (c *Cache) StrategyForOrder(id model.ClientOrderID) (model.StrategyID, bool) {
	strategyID, ok := c.indexOrderStrategy[id]
	return strategyID, ok
}

// StrategyForPosition returns the strategy that owns a position.
func (c *Cache) StrategyForPosition(id model.PositionID) (model.StrategyID, bool) {
	strategyID, ok := c.indexPositionStrategy[id]
	return strategyID, ok
}

// StrategyIDs returns the strategy roster.
func (c *Cache) StrategyIDs() []model.StrategyID {
	out := make([]model.StrategyID, 0, len(c.indexStrategies))
	for id := range c.indexStrategies {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ───────────────────────────────────────────────────────────────────────────────
// Filter plumbing
// ───────────────────────────────────────────────────────────────────────────────

func (c *Cache) filterOrderIDs(
	bucket idSet[model.ClientOrderID],
	instrumentID model.InstrumentID,
	strategyID model.StrategyID,
) idSet[model.ClientOrderID] {
	result := bucket
	if instrumentID != "" {
		result = intersect(result, c.indexInstrumentOrders[instrumentID])
	}
	if strategyID != "" {
		result = intersect(result, c.indexStrategyOrders[strategyID])
	}
	return result
}

func (c *Cache) filterPositionIDs(
	bucket idSet[model.PositionID],
	instrumentID model.InstrumentID,
	strategyID model.StrategyID,
) idSet[model.PositionID] {
	result := bucket
	if instrumentID != "" {
		result = intersect(result, c.indexInstrumentPosition[instrumentID])
	}
	if strategyID != "" {
		result = intersect(result, c.indexStrategyPositions[strategyID])
	}
	return result
}

func intersect[T comparable](a, b idSet[T]) idSet[T] {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(idSet[T])
	for v := range a {
		if b.contains(v) {
			out.add(v)
		}
	}
	return out
}

func (c *Cache) ordersFor(ids idSet[model.ClientOrderID]) []*model.Order {
	out := make([]*model.Order, 0, len(ids))
	for id := range ids {
		if order, ok := c.orders[id]; ok {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientOrderID < out[j].ClientOrderID })
	return out
}

func (c *Cache) positionsFor(ids idSet[model.PositionID]) []*model.Position {
	out := make([]*model.Position, 0, len(ids))
	for id := range ids {
		if position, ok := c.positions[id]; ok {
			out = append(out, position)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedOrderIDs(ids idSet[model.ClientOrderID]) []model.ClientOrderID {
	out := make([]model.ClientOrderID, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedPositionIDs(ids idSet[model.PositionID]) []model.PositionID {
	out := make([]model.PositionID, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
