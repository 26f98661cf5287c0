package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COMMANDS - Strategy intents bound for the execution engine
// ═══════════════════════════════════════════════════════════════════════════════

// CommandType discriminates execution commands on the wire.
type CommandType string

const (
	CommandSubmitOrder       CommandType = "SubmitOrder"
	CommandSubmitOrderList   CommandType = "SubmitOrderList"
	CommandModifyOrder       CommandType = "ModifyOrder"
	CommandCancelOrder       CommandType = "CancelOrder"
	CommandCancelAllOrders   CommandType = "CancelAllOrders"
	CommandBatchCancelOrders CommandType = "BatchCancelOrders"
	CommandQueryOrder        CommandType = "QueryOrder"
)

// Command is implemented by every execution command.
type Command interface {
	CommandType() CommandType
	Scope() CommandScope
}

// CommandScope carries the addressing fields common to all commands.
type CommandScope struct {
	ClientID     ClientID     `json:"client_id,omitempty"`
	TraderID     TraderID     `json:"trader_id"`
	StrategyID   StrategyID   `json:"strategy_id"`
	InstrumentID InstrumentID `json:"instrument_id"`
	CommandID    string       `json:"command_id"`
	TsInit       int64        `json:"ts_init"`
}

// SubmitOrder asks the engine to route a new order to a venue.
type SubmitOrder struct {
	CommandScope
	Order            *Order     `json:"order"`
	PositionID       PositionID `json:"position_id,omitempty"`
	EmulationTrigger string     `json:"emulation_trigger,omitempty"`
	ExecAlgorithm    string     `json:"exec_algorithm,omitempty"`
}

func (c SubmitOrder) CommandType() CommandType { return CommandSubmitOrder }
func (c SubmitOrder) Scope() CommandScope      { return c.CommandScope }

// SubmitOrderList submits a contingent list of orders atomically.
type SubmitOrderList struct {
	CommandScope
	Orders           []*Order   `json:"orders"`
	PositionID       PositionID `json:"position_id,omitempty"`
	EmulationTrigger string     `json:"emulation_trigger,omitempty"`
	ExecAlgorithm    string     `json:"exec_algorithm,omitempty"`
}

func (c SubmitOrderList) CommandType() CommandType { return CommandSubmitOrderList }
func (c SubmitOrderList) Scope() CommandScope      { return c.CommandScope }

// ModifyOrder amends quantity/price/trigger of a working order.
type ModifyOrder struct {
	CommandScope
	ClientOrderID ClientOrderID   `json:"client_order_id"`
	VenueOrderID  VenueOrderID    `json:"venue_order_id,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TriggerPrice  decimal.Decimal `json:"trigger_price"`
}

func (c ModifyOrder) CommandType() CommandType { return CommandModifyOrder }
func (c ModifyOrder) Scope() CommandScope      { return c.CommandScope }

// CancelOrder cancels a single working order.
type CancelOrder struct {
	CommandScope
	ClientOrderID ClientOrderID `json:"client_order_id"`
	VenueOrderID  VenueOrderID  `json:"venue_order_id,omitempty"`
}

func (c CancelOrder) CommandType() CommandType { return CommandCancelOrder }
func (c CancelOrder) Scope() CommandScope      { return c.CommandScope }

// CancelAllOrders cancels every working order for the instrument, optionally
// filtered to one side (SideNone cancels both).
type CancelAllOrders struct {
	CommandScope
	OrderSide OrderSide `json:"order_side"`
}

func (c CancelAllOrders) CommandType() CommandType { return CommandCancelAllOrders }
func (c CancelAllOrders) Scope() CommandScope      { return c.CommandScope }

// BatchCancelOrders cancels an explicit set of orders in one venue round trip.
type BatchCancelOrders struct {
	CommandScope
	Cancels []CancelOrder `json:"cancels"`
}

func (c BatchCancelOrders) CommandType() CommandType { return CommandBatchCancelOrders }
func (c BatchCancelOrders) Scope() CommandScope      { return c.CommandScope }

// QueryOrder requests a status report for one order from the venue.
type QueryOrder struct {
	CommandScope
	ClientOrderID ClientOrderID `json:"client_order_id"`
	VenueOrderID  VenueOrderID  `json:"venue_order_id,omitempty"`
}

func (c QueryOrder) CommandType() CommandType { return CommandQueryOrder }
func (c QueryOrder) Scope() CommandScope      { return c.CommandScope }

// ───────────────────────────────────────────────────────────────────────────────
// Wire codec
// ───────────────────────────────────────────────────────────────────────────────

type commandEnvelope struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalCommand encodes a command with its type tag.
func MarshalCommand(c Command) ([]byte, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", c.CommandType(), err)
	}
	return json.Marshal(commandEnvelope{Type: c.CommandType(), Payload: payload})
}

// UnmarshalCommand decodes a command produced by MarshalCommand.
func UnmarshalCommand(data []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal command envelope: %w", err)
	}
	var c Command
	switch env.Type {
	case CommandSubmitOrder:
		c = &SubmitOrder{}
	case CommandSubmitOrderList:
		c = &SubmitOrderList{}
	case CommandModifyOrder:
		c = &ModifyOrder{}
	case CommandCancelOrder:
		c = &CancelOrder{}
	case CommandCancelAllOrders:
		c = &CancelAllOrders{}
	case CommandBatchCancelOrders:
		c = &BatchCancelOrders{}
	case CommandQueryOrder:
		c = &QueryOrder{}
	default:
		return nil, fmt.Errorf("unknown command type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, c); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return c, nil
}
