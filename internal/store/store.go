package store

import (
	"github.com/web3guy0/tradecore/internal/model"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION DATABASE - Durable store behind the cache
// ═══════════════════════════════════════════════════════════════════════════════
//
// The cache is the single reader and writer; it serializes writes on the
// engine goroutine and only requires that writes ordered X before Y persist
// in that order. Implementations: gorm (sqlite or postgres by DSN) and an
// in-memory map for tests and backtests.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Database is the durable side of the execution cache.
type Database interface {
	LoadAccounts() ([]model.AccountState, error)
	LoadOrders() ([]*model.Order, error)
	LoadPositions() ([]*model.Position, error)

	AddAccount(state model.AccountState) error
	AddOrder(order *model.Order) error
	AddPosition(position *model.Position) error

	UpdateAccount(state model.AccountState) error
	UpdateOrder(order *model.Order) error
	UpdatePosition(position *model.Position) error

	// LoadStrategy returns the persisted state dict for one strategy.
	LoadStrategy(id model.StrategyID) (map[string]string, error)
	// UpdateStrategy replaces the persisted state dict for one strategy.
	UpdateStrategy(id model.StrategyID, state map[string]string) error
	// DeleteStrategy removes the strategy's persisted state.
	DeleteStrategy(id model.StrategyID) error

	// Flush drops all persisted execution state.
	Flush() error
	Close() error
}
