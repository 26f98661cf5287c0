package cache

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradecore/internal/account"
	"github.com/web3guy0/tradecore/internal/model"
	"github.com/web3guy0/tradecore/internal/store"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION CACHE - Authoritative in-memory execution state
// ═══════════════════════════════════════════════════════════════════════════════
//
// The cache owns every live Order, Position and Account. Entities mutate
// only through the update methods here, which refresh the indexes in the
// same step; the indexes and the entity maps form a bi-directional
// one-to-one relationship that CheckIntegrity proves.
//
// Mutated only on the engine goroutine, with the durable store written
// before indexes are touched.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrDuplicateID - an add hit an existing id. Fatal for that call; the
// caller must reconcile.
var ErrDuplicateID = errors.New("duplicate id")

// ErrNotFound - an update referenced an entity the cache does not own.
var ErrNotFound = errors.New("not found in cache")

type idSet[T comparable] map[T]struct{}

func (s idSet[T]) add(v T)           { s[v] = struct{}{} }
func (s idSet[T]) remove(v T)        { delete(s, v) }
func (s idSet[T]) contains(v T) bool { _, ok := s[v]; return ok }

// Cache is the authoritative execution-state index.
type Cache struct {
	db store.Database // optional durable store

	accounts    map[model.AccountID]account.Account
	orders      map[model.ClientOrderID]*model.Order
	positions   map[model.PositionID]*model.Position
	instruments map[model.InstrumentID]model.Instrument

	indexVenueAccount       map[model.Venue]model.AccountID
	indexVenueOrderIDs      map[model.VenueOrderID]model.ClientOrderID
	indexOrderPosition      map[model.ClientOrderID]model.PositionID
	indexOrderStrategy      map[model.ClientOrderID]model.StrategyID
	indexPositionStrategy   map[model.PositionID]model.StrategyID
	indexPositionOrders     map[model.PositionID]idSet[model.ClientOrderID]
	indexInstrumentOrders   map[model.InstrumentID]idSet[model.ClientOrderID]
	indexInstrumentPosition map[model.InstrumentID]idSet[model.PositionID]
	indexStrategyOrders     map[model.StrategyID]idSet[model.ClientOrderID]
	indexStrategyPositions  map[model.StrategyID]idSet[model.PositionID]

	indexOrders          idSet[model.ClientOrderID]
	indexOrdersWorking   idSet[model.ClientOrderID]
	indexOrdersCompleted idSet[model.ClientOrderID]
	indexPositions       idSet[model.PositionID]
	indexPositionsOpen   idSet[model.PositionID]
	indexPositionsClosed idSet[model.PositionID]
	indexStrategies      idSet[model.StrategyID]
}

// New creates an empty cache over an optional durable store.
func New(db store.Database) *Cache {
	c := &Cache{db: db}
	c.clearCaches()
	c.clearIndex()
	return c
}

func (c *Cache) clearCaches() {
	c.accounts = make(map[model.AccountID]account.Account)
	c.orders = make(map[model.ClientOrderID]*model.Order)
	c.positions = make(map[model.PositionID]*model.Position)
	c.instruments = make(map[model.InstrumentID]model.Instrument)
}

func (c *Cache) clearIndex() {
	c.indexVenueAccount = make(map[model.Venue]model.AccountID)
	c.indexVenueOrderIDs = make(map[model.VenueOrderID]model.ClientOrderID)
	c.indexOrderPosition = make(map[model.ClientOrderID]model.PositionID)
	c.indexOrderStrategy = make(map[model.ClientOrderID]model.StrategyID)
	c.indexPositionStrategy = make(map[model.PositionID]model.StrategyID)
	c.indexPositionOrders = make(map[model.PositionID]idSet[model.ClientOrderID])
	c.indexInstrumentOrders = make(map[model.InstrumentID]idSet[model.ClientOrderID])
	c.indexInstrumentPosition = make(map[model.InstrumentID]idSet[model.PositionID])
	c.indexStrategyOrders = make(map[model.StrategyID]idSet[model.ClientOrderID])
	c.indexStrategyPositions = make(map[model.StrategyID]idSet[model.PositionID])
	c.indexOrders = make(idSet[model.ClientOrderID])
	c.indexOrdersWorking = make(idSet[model.ClientOrderID])
	c.indexOrdersCompleted = make(idSet[model.ClientOrderID])
	c.indexPositions = make(idSet[model.PositionID])
	c.indexPositionsOpen = make(idSet[model.PositionID])
	c.indexPositionsClosed = make(idSet[model.PositionID])
	c.indexStrategies = make(idSet[model.StrategyID])
}

// Reset clears caches first, then indexes.
func (c *Cache) Reset() {
	c.clearCaches()
	c.clearIndex()
	log.Info().Msg("cache reset")
}

// ───────────────────────────────────────────────────────────────────────────────
// Load path
// ───────────────────────────────────────────────────────────────────────────────

// CacheAccounts populates accounts from the durable store.
func (c *Cache) CacheAccounts() error {
	if c.db == nil {
		return nil
	}
	states, err := c.db.LoadAccounts()
	if err != nil {
		return fmt.Errorf("cache accounts: %w", err)
	}
	for _, state := range states {
		acct, err := account.New(state)
		if err != nil {
			return fmt.Errorf("cache account %s: %w", state.AccountID, err)
		}
		c.accounts[acct.ID()] = acct
	}
	log.Info().Int("count", len(states)).Msg("cached accounts from database")
	return nil
}

// CacheOrders populates orders from the durable store.
func (c *Cache) CacheOrders() error {
	if c.db == nil {
		return nil
	}
	orders, err := c.db.LoadOrders()
	if err != nil {
		return fmt.Errorf("cache orders: %w", err)
	}
	for _, order := range orders {
		c.orders[order.ClientOrderID] = order
	}
	log.Info().Int("count", len(orders)).Msg("cached orders from database")
	return nil
}

// CachePositions populates positions from the durable store.
func (c *Cache) CachePositions() error {
	if c.db == nil {
		return nil
	}
	positions, err := c.db.LoadPositions()
	if err != nil {
		return fmt.Errorf("cache positions: %w", err)
	}
	for _, position := range positions {
		c.positions[position.ID] = position
	}
	log.Info().Int("count", len(positions)).Msg("cached positions from database")
	return nil
}

// BuildIndex rebuilds every index from the cached entities.
func (c *Cache) BuildIndex() {
	c.clearIndex()
	for accountID := range c.accounts {
		c.indexVenueAccount[venueOf(accountID)] = accountID
	}
	for id, order := range c.orders {
		c.indexOrder(order)
		if order.PositionID != "" {
			c.indexOrderPosition[id] = order.PositionID
			c.positionOrders(order.PositionID).add(id)
		}
	}
	for _, position := range c.positions {
		c.indexPosition(position)
	}
	log.Info().
		Int("orders", len(c.orders)).
		Int("positions", len(c.positions)).
		Int("accounts", len(c.accounts)).
		Msg("cache index built")
}

// venueOf derives the venue from an account id formatted "VENUE-number",
// the issuer convention used across the runtime.
func venueOf(accountID model.AccountID) model.Venue {
	s := string(accountID)
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			return model.Venue(s[:i])
		}
	}
	return model.Venue(s)
}

// ───────────────────────────────────────────────────────────────────────────────
// Writes
// ───────────────────────────────────────────────────────────────────────────────

// AddAccount indexes a new account. Duplicate ids are an error.
func (c *Cache) AddAccount(acct account.Account) error {
	if _, exists := c.accounts[acct.ID()]; exists {
		return fmt.Errorf("%w: account %s", ErrDuplicateID, acct.ID())
	}
	if c.db != nil {
		if last, ok := acct.LastEvent(); ok {
			if err := c.db.AddAccount(last); err != nil {
				return fmt.Errorf("persist account %s: %w", acct.ID(), err)
			}
		}
	}
	c.accounts[acct.ID()] = acct
	c.indexVenueAccount[venueOf(acct.ID())] = acct.ID()
	return nil
}

// UpdateAccount persists the account's latest state event.
func (c *Cache) UpdateAccount(acct account.Account) error {
	if _, exists := c.accounts[acct.ID()]; !exists {
		return fmt.Errorf("%w: account %s", ErrNotFound, acct.ID())
	}
	if c.db != nil {
		if last, ok := acct.LastEvent(); ok {
			if err := c.db.UpdateAccount(last); err != nil {
				return fmt.Errorf("persist account %s: %w", acct.ID(), err)
			}
		}
	}
	return nil
}

// AddInstrument registers an instrument definition.
func (c *Cache) AddInstrument(instrument model.Instrument) {
	c.instruments[instrument.ID] = instrument
}

// AddOrder indexes a new order, optionally pre-assigned to a position.
// Duplicate client order ids are an error.
func (c *Cache) AddOrder(order *model.Order, positionID model.PositionID) error {
	if c.indexOrders.contains(order.ClientOrderID) {
		return fmt.Errorf("%w: order %s", ErrDuplicateID, order.ClientOrderID)
	}
	if c.db != nil {
		if err := c.db.AddOrder(order); err != nil {
			return fmt.Errorf("persist order %s: %w", order.ClientOrderID, err)
		}
	}
	c.orders[order.ClientOrderID] = order
	c.indexOrder(order)
	if positionID != "" {
		c.AddPositionID(positionID, order.ClientOrderID)
	}
	return nil
}

// indexOrder writes the static per-order index entries.
func (c *Cache) indexOrder(order *model.Order) {
	id := order.ClientOrderID
	c.indexOrders.add(id)
	c.indexOrderStrategy[id] = order.StrategyID
	c.instrumentOrders(order.InstrumentID).add(id)
	c.strategyOrders(order.StrategyID).add(id)
	c.indexStrategies.add(order.StrategyID)
	if order.VenueOrderID != "" {
		c.indexVenueOrderIDs[order.VenueOrderID] = id
	}
	c.reclassifyOrder(order)
}

// AddPositionID links an order to a position in both directions.
func (c *Cache) AddPositionID(positionID model.PositionID, clientOrderID model.ClientOrderID) {
	c.indexOrderPosition[clientOrderID] = positionID
	c.positionOrders(positionID).add(clientOrderID)
	if order, ok := c.orders[clientOrderID]; ok {
		order.PositionID = positionID
	}
}

// AddVenueOrderID records the venue's id for an order once assigned.
func (c *Cache) AddVenueOrderID(venueOrderID model.VenueOrderID, clientOrderID model.ClientOrderID) {
	c.indexVenueOrderIDs[venueOrderID] = clientOrderID
}

// UpdateOrder persists the order and reclassifies its working/completed
// bucket from the current status, atomically with the index refresh.
func (c *Cache) UpdateOrder(order *model.Order) error {
	if !c.indexOrders.contains(order.ClientOrderID) {
		return fmt.Errorf("%w: order %s", ErrNotFound, order.ClientOrderID)
	}
	if c.db != nil {
		if err := c.db.UpdateOrder(order); err != nil {
			return fmt.Errorf("persist order %s: %w", order.ClientOrderID, err)
		}
	}
	if order.VenueOrderID != "" {
		c.indexVenueOrderIDs[order.VenueOrderID] = order.ClientOrderID
	}
	if order.PositionID != "" {
		c.indexOrderPosition[order.ClientOrderID] = order.PositionID
		c.positionOrders(order.PositionID).add(order.ClientOrderID)
	}
	c.reclassifyOrder(order)
	return nil
}

func (c *Cache) reclassifyOrder(order *model.Order) {
	id := order.ClientOrderID
	switch {
	case order.Status.IsWorking():
		c.indexOrdersWorking.add(id)
		c.indexOrdersCompleted.remove(id)
	case order.Status.IsCompleted():
		c.indexOrdersWorking.remove(id)
		c.indexOrdersCompleted.add(id)
	default:
		// INITIALIZED: in neither bucket.
		c.indexOrdersWorking.remove(id)
		c.indexOrdersCompleted.remove(id)
	}
}

// AddPosition indexes a new position. Duplicate ids are an error.
func (c *Cache) AddPosition(position *model.Position) error {
	if c.indexPositions.contains(position.ID) {
		return fmt.Errorf("%w: position %s", ErrDuplicateID, position.ID)
	}
	if c.db != nil {
		if err := c.db.AddPosition(position); err != nil {
			return fmt.Errorf("persist position %s: %w", position.ID, err)
		}
	}
	c.positions[position.ID] = position
	c.indexPosition(position)
	return nil
}

func (c *Cache) indexPosition(position *model.Position) {
	id := position.ID
	c.indexPositions.add(id)
	c.indexPositionStrategy[id] = position.StrategyID
	c.instrumentPositions(position.InstrumentID).add(id)
	c.strategyPositions(position.StrategyID).add(id)
	c.indexStrategies.add(position.StrategyID)
	for _, orderID := range position.OrderIDs {
		c.indexOrderPosition[orderID] = id
		c.positionOrders(id).add(orderID)
	}
	c.reclassifyPosition(position)
}

// UpdatePosition persists the position and moves it between the open and
// closed buckets as its net quantity dictates.
func (c *Cache) UpdatePosition(position *model.Position) error {
	if !c.indexPositions.contains(position.ID) {
		return fmt.Errorf("%w: position %s", ErrNotFound, position.ID)
	}
	if c.db != nil {
		if err := c.db.UpdatePosition(position); err != nil {
			return fmt.Errorf("persist position %s: %w", position.ID, err)
		}
	}
	for _, orderID := range position.OrderIDs {
		c.indexOrderPosition[orderID] = position.ID
		c.positionOrders(position.ID).add(orderID)
	}
	c.reclassifyPosition(position)
	return nil
}

func (c *Cache) reclassifyPosition(position *model.Position) {
	if position.IsOpen() {
		c.indexPositionsOpen.add(position.ID)
		c.indexPositionsClosed.remove(position.ID)
	} else {
		c.indexPositionsOpen.remove(position.ID)
		c.indexPositionsClosed.add(position.ID)
	}
}

// AddStrategy registers a strategy in the roster.
func (c *Cache) AddStrategy(id model.StrategyID) {
	c.indexStrategies.add(id)
}

// DeleteStrategy removes a strategy and its scan-index entries. Orders and
// positions themselves are kept; only the per-strategy views go away.
func (c *Cache) DeleteStrategy(id model.StrategyID) error {
	c.indexStrategies.remove(id)
	delete(c.indexStrategyOrders, id)
	delete(c.indexStrategyPositions, id)
	if c.db != nil {
		if err := c.db.DeleteStrategy(id); err != nil {
			return fmt.Errorf("delete strategy %s: %w", id, err)
		}
	}
	return nil
}

// ───────────────────────────────────────────────────────────────────────────────
// Index sub-map accessors (create on first touch)
// ───────────────────────────────────────────────────────────────────────────────

func (c *Cache) positionOrders(id model.PositionID) idSet[model.ClientOrderID] {
	s, ok := c.indexPositionOrders[id]
	if !ok {
		s = make(idSet[model.ClientOrderID])
		c.indexPositionOrders[id] = s
	}
	return s
}

func (c *Cache) instrumentOrders(id model.InstrumentID) idSet[model.ClientOrderID] {
	s, ok := c.indexInstrumentOrders[id]
	if !ok {
		s = make(idSet[model.ClientOrderID])
		c.indexInstrumentOrders[id] = s
	}
	return s
}

func (c *Cache) instrumentPositions(id model.InstrumentID) idSet[model.PositionID] {
	s, ok := c.indexInstrumentPosition[id]
	if !ok {
		s = make(idSet[model.PositionID])
		c.indexInstrumentPosition[id] = s
	}
	return s
}

func (c *Cache) strategyOrders(id model.StrategyID) idSet[model.ClientOrderID] {
	s, ok := c.indexStrategyOrders[id]
	if !ok {
		s = make(idSet[model.ClientOrderID])
		c.indexStrategyOrders[id] = s
	}
	return s
}

func (c *Cache) strategyPositions(id model.StrategyID) idSet[model.PositionID] {
	s, ok := c.indexStrategyPositions[id]
	if !ok {
		s = make(idSet[model.PositionID])
		c.indexStrategyPositions[id] = s
	}
	return s
}
