package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/web3guy0/tradecore/internal/model"
)

// MemoryDatabase keeps execution state in process. Used for tests and
// backtests; write ordering is trivially preserved.
type MemoryDatabase struct {
	mu         sync.Mutex
	accounts   map[model.AccountID]string
	orders     map[model.ClientOrderID]string
	positions  map[model.PositionID]string
	strategies map[model.StrategyID]map[string]string
}

// NewMemory creates an empty in-memory database.
func NewMemory() *MemoryDatabase {
	return &MemoryDatabase{
		accounts:   make(map[model.AccountID]string),
		orders:     make(map[model.ClientOrderID]string),
		positions:  make(map[model.PositionID]string),
		strategies: make(map[model.StrategyID]map[string]string),
	}
}

func (m *MemoryDatabase) LoadAccounts() ([]model.AccountState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AccountState, 0, len(m.accounts))
	for id, data := range m.accounts {
		var state model.AccountState
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", id, err)
		}
		out = append(out, state)
	}
	return out, nil
}

func (m *MemoryDatabase) LoadOrders() ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Order, 0, len(m.orders))
	for id, data := range m.orders {
		order := &model.Order{}
		if err := json.Unmarshal([]byte(data), order); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", id, err)
		}
		out = append(out, order)
	}
	return out, nil
}

func (m *MemoryDatabase) LoadPositions() ([]*model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Position, 0, len(m.positions))
	for id, data := range m.positions {
		position := &model.Position{}
		if err := json.Unmarshal([]byte(data), position); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", id, err)
		}
		out = append(out, position)
	}
	return out, nil
}

func (m *MemoryDatabase) AddAccount(state model.AccountState) error {
	return m.putAccount(state)
}

func (m *MemoryDatabase) UpdateAccount(state model.AccountState) error {
	return m.putAccount(state)
}

func (m *MemoryDatabase) putAccount(state model.AccountState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[state.AccountID] = string(data)
	return nil
}

func (m *MemoryDatabase) AddOrder(order *model.Order) error {
	return m.putOrder(order)
}

func (m *MemoryDatabase) UpdateOrder(order *model.Order) error {
	return m.putOrder(order)
}

func (m *MemoryDatabase) putOrder(order *model.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ClientOrderID] = string(data)
	return nil
}

func (m *MemoryDatabase) AddPosition(position *model.Position) error {
	return m.putPosition(position)
}

func (m *MemoryDatabase) UpdatePosition(position *model.Position) error {
	return m.putPosition(position)
}

func (m *MemoryDatabase) putPosition(position *model.Position) error {
	data, err := json.Marshal(position)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[position.ID] = string(data)
	return nil
}

func (m *MemoryDatabase) LoadStrategy(id model.StrategyID) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.strategies[id]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryDatabase) UpdateStrategy(id model.StrategyID, state map[string]string) error {
	copied := make(map[string]string, len(state))
	for k, v := range state {
		copied[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[id] = copied
	return nil
}

func (m *MemoryDatabase) DeleteStrategy(id model.StrategyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strategies, id)
	return nil
}

func (m *MemoryDatabase) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[model.AccountID]string)
	m.orders = make(map[model.ClientOrderID]string)
	m.positions = make(map[model.PositionID]string)
	m.strategies = make(map[model.StrategyID]map[string]string)
	return nil
}

func (m *MemoryDatabase) Close() error { return nil }
