package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/tradecore/internal/model"
)

// Records. Execution state is stored as JSON documents keyed by id; the
// relational columns exist for operator queries, not for joins.

// AccountRecord persists the latest state event per account.
type AccountRecord struct {
	AccountID string `gorm:"primaryKey"`
	Type      string
	Data      string `gorm:"type:text"`
	UpdatedAt time.Time
}

// OrderRecord persists an order snapshot.
type OrderRecord struct {
	ClientOrderID string `gorm:"primaryKey"`
	StrategyID    string `gorm:"index"`
	InstrumentID  string `gorm:"index"`
	Status        string
	Data          string `gorm:"type:text"`
	UpdatedAt     time.Time
}

// PositionRecord persists a position snapshot.
type PositionRecord struct {
	PositionID   string `gorm:"primaryKey"`
	StrategyID   string `gorm:"index"`
	InstrumentID string `gorm:"index"`
	Closed       bool
	Data         string `gorm:"type:text"`
	UpdatedAt    time.Time
}

// StrategyRecord persists one strategy's state dict.
type StrategyRecord struct {
	StrategyID string `gorm:"primaryKey"`
	Data       string `gorm:"type:text"`
	UpdatedAt  time.Time
}

// GormDatabase is the gorm-backed Database.
type GormDatabase struct {
	db *gorm.DB
}

// Open connects by DSN: "*.db" / ":memory:" / "file:" opens sqlite,
// anything else is treated as a postgres DSN.
func Open(dsn string) (*GormDatabase, error) {
	var dialector gorm.Dialector
	if strings.HasSuffix(dsn, ".db") || strings.HasPrefix(dsn, "file:") || dsn == ":memory:" {
		dialector = sqlite.Open(dsn)
	} else {
		dialector = postgres.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open execution database: %w", err)
	}
	if err := db.AutoMigrate(&AccountRecord{}, &OrderRecord{}, &PositionRecord{}, &StrategyRecord{}); err != nil {
		return nil, fmt.Errorf("migrate execution database: %w", err)
	}
	log.Info().Str("dsn", dsn).Msg("💾 Execution database connected")
	return &GormDatabase{db: db}, nil
}

// LoadAccounts returns the latest persisted state per account.
func (g *GormDatabase) LoadAccounts() ([]model.AccountState, error) {
	var records []AccountRecord
	if err := g.db.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]model.AccountState, 0, len(records))
	for _, r := range records {
		var state model.AccountState
		if err := json.Unmarshal([]byte(r.Data), &state); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", r.AccountID, err)
		}
		out = append(out, state)
	}
	return out, nil
}

// LoadOrders returns every persisted order snapshot.
func (g *GormDatabase) LoadOrders() ([]*model.Order, error) {
	var records []OrderRecord
	if err := g.db.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Order, 0, len(records))
	for _, r := range records {
		order := &model.Order{}
		if err := json.Unmarshal([]byte(r.Data), order); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", r.ClientOrderID, err)
		}
		out = append(out, order)
	}
	return out, nil
}

// LoadPositions returns every persisted position snapshot.
func (g *GormDatabase) LoadPositions() ([]*model.Position, error) {
	var records []PositionRecord
	if err := g.db.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Position, 0, len(records))
	for _, r := range records {
		position := &model.Position{}
		if err := json.Unmarshal([]byte(r.Data), position); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", r.PositionID, err)
		}
		out = append(out, position)
	}
	return out, nil
}

// AddAccount persists a new account's state.
func (g *GormDatabase) AddAccount(state model.AccountState) error {
	return g.saveAccount(state, true)
}

// UpdateAccount replaces the persisted state for an account.
func (g *GormDatabase) UpdateAccount(state model.AccountState) error {
	return g.saveAccount(state, false)
}

func (g *GormDatabase) saveAccount(state model.AccountState, create bool) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", state.AccountID, err)
	}
	record := AccountRecord{
		AccountID: string(state.AccountID),
		Type:      string(state.AccountType),
		Data:      string(data),
		UpdatedAt: time.Now(),
	}
	if create {
		return g.db.Create(&record).Error
	}
	return g.db.Save(&record).Error
}

// AddOrder persists a new order snapshot.
func (g *GormDatabase) AddOrder(order *model.Order) error {
	record, err := orderRecord(order)
	if err != nil {
		return err
	}
	return g.db.Create(&record).Error
}

// UpdateOrder replaces the persisted snapshot for an order.
func (g *GormDatabase) UpdateOrder(order *model.Order) error {
	record, err := orderRecord(order)
	if err != nil {
		return err
	}
	return g.db.Save(&record).Error
}

func orderRecord(order *model.Order) (OrderRecord, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("encode order %s: %w", order.ClientOrderID, err)
	}
	return OrderRecord{
		ClientOrderID: string(order.ClientOrderID),
		StrategyID:    string(order.StrategyID),
		InstrumentID:  string(order.InstrumentID),
		Status:        string(order.Status),
		Data:          string(data),
		UpdatedAt:     time.Now(),
	}, nil
}

// AddPosition persists a new position snapshot.
func (g *GormDatabase) AddPosition(position *model.Position) error {
	record, err := positionRecord(position)
	if err != nil {
		return err
	}
	return g.db.Create(&record).Error
}

// UpdatePosition replaces the persisted snapshot for a position.
func (g *GormDatabase) UpdatePosition(position *model.Position) error {
	record, err := positionRecord(position)
	if err != nil {
		return err
	}
	return g.db.Save(&record).Error
}

func positionRecord(position *model.Position) (PositionRecord, error) {
	data, err := json.Marshal(position)
	if err != nil {
		return PositionRecord{}, fmt.Errorf("encode position %s: %w", position.ID, err)
	}
	return PositionRecord{
		PositionID:   string(position.ID),
		StrategyID:   string(position.StrategyID),
		InstrumentID: string(position.InstrumentID),
		Closed:       position.IsClosed(),
		Data:         string(data),
		UpdatedAt:    time.Now(),
	}, nil
}

// LoadStrategy returns the persisted state dict for one strategy.
func (g *GormDatabase) LoadStrategy(id model.StrategyID) (map[string]string, error) {
	var record StrategyRecord
	err := g.db.First(&record, "strategy_id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	state := make(map[string]string)
	if err := json.Unmarshal([]byte(record.Data), &state); err != nil {
		return nil, fmt.Errorf("decode strategy %s: %w", id, err)
	}
	return state, nil
}

// UpdateStrategy replaces the persisted state dict for one strategy.
func (g *GormDatabase) UpdateStrategy(id model.StrategyID, state map[string]string) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode strategy %s: %w", id, err)
	}
	return g.db.Save(&StrategyRecord{
		StrategyID: string(id),
		Data:       string(data),
		UpdatedAt:  time.Now(),
	}).Error
}

// DeleteStrategy removes the strategy's persisted state.
func (g *GormDatabase) DeleteStrategy(id model.StrategyID) error {
	return g.db.Delete(&StrategyRecord{}, "strategy_id = ?", string(id)).Error
}

// Flush drops all persisted execution state.
func (g *GormDatabase) Flush() error {
	for _, m := range []any{&AccountRecord{}, &OrderRecord{}, &PositionRecord{}, &StrategyRecord{}} {
		if err := g.db.Where("1 = 1").Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying connection.
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
