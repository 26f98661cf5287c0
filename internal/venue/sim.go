package venue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/clock"
	"github.com/web3guy0/tradecore/internal/matching"
	"github.com/web3guy0/tradecore/internal/model"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIM VENUE - Execution client backed by in-process matching cores
// ═══════════════════════════════════════════════════════════════════════════════
//
// One matching core per instrument. Quotes drive the cores; triggers and
// fills come back through the core callbacks and are emitted to the engine
// as order events. The venue also keeps per-order status and fill reports so
// reconciliation can request a mass status like it would from a live venue.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrNoMarket - an order arrived for an instrument with no quotes yet.
var ErrNoMarket = errors.New("no market for instrument")

// EventSink receives venue events; wired to the engine at construction.
type EventSink func(msg any)

// Sim is a simulated venue.
type Sim struct {
	id        model.ClientID
	venue     model.Venue
	accountID model.AccountID
	clk       clock.Clock
	sink      EventSink

	instruments map[model.InstrumentID]model.Instrument
	cores       map[model.InstrumentID]*matching.Core
	orders      map[model.ClientOrderID]*model.Order
	venueIDs    map[model.ClientOrderID]model.VenueOrderID

	statusReports map[model.VenueOrderID]model.OrderStatusReport
	fillReports   map[model.VenueOrderID][]model.FillReport

	venueSeq int
	tradeSeq int
	running  bool
}

// NewSim creates a simulated venue delivering events into sink.
func NewSim(id model.ClientID, venue model.Venue, accountID model.AccountID, clk clock.Clock, sink EventSink) *Sim {
	return &Sim{
		id:            id,
		venue:         venue,
		accountID:     accountID,
		clk:           clk,
		sink:          sink,
		instruments:   make(map[model.InstrumentID]model.Instrument),
		cores:         make(map[model.InstrumentID]*matching.Core),
		orders:        make(map[model.ClientOrderID]*model.Order),
		venueIDs:      make(map[model.ClientOrderID]model.VenueOrderID),
		statusReports: make(map[model.VenueOrderID]model.OrderStatusReport),
		fillReports:   make(map[model.VenueOrderID][]model.FillReport),
	}
}

func (s *Sim) ID() model.ClientID         { return s.id }
func (s *Sim) Venue() model.Venue         { return s.venue }
func (s *Sim) AccountID() model.AccountID { return s.accountID }

// Start marks the venue live.
func (s *Sim) Start() error {
	s.running = true
	log.Info().Str("venue", string(s.venue)).Msg("sim venue started")
	return nil
}

// Stop halts event emission.
func (s *Sim) Stop() error {
	s.running = false
	log.Info().Str("venue", string(s.venue)).Msg("sim venue stopped")
	return nil
}

// RegisterInstrument adds a tradable instrument and its matching core.
func (s *Sim) RegisterInstrument(instrument model.Instrument) {
	s.instruments[instrument.ID] = instrument
	s.cores[instrument.ID] = matching.NewCore(
		instrument,
		func(order *model.Order) { s.onTriggered(order) },
		func(order *model.Order, liquidity model.LiquiditySide) { s.onMarketFill(order, liquidity) },
		func(order *model.Order, liquidity model.LiquiditySide) { s.onLimitFill(order, liquidity) },
	)
}

// Core exposes the matching core for an instrument (tests, inspection).
func (s *Sim) Core(id model.InstrumentID) (*matching.Core, bool) {
	core, ok := s.cores[id]
	return core, ok
}

// OnQuote updates one instrument's market and iterates its core.
func (s *Sim) OnQuote(id model.InstrumentID, bid, ask, last decimal.Decimal) {
	core, ok := s.cores[id]
	if !ok {
		log.Warn().Str("instrument", string(id)).Msg("quote for unknown instrument")
		return
	}
	core.SetQuote(bid, ask)
	if !last.IsZero() {
		core.SetLast(last)
	}
	core.Iterate(s.clk.NowNS())
}

// ───────────────────────────────────────────────────────────────────────────────
// ExecutionClient
// ───────────────────────────────────────────────────────────────────────────────

// SubmitOrder accepts or rejects an order and rests it in the core.
func (s *Sim) SubmitOrder(cmd *model.SubmitOrder) error {
	order := cmd.Order
	core, ok := s.cores[order.InstrumentID]
	if !ok {
		s.emitRejected(order, "unknown instrument")
		return nil
	}
	if order.Type == model.OrderTypeMarket && core.Ask() == 0 && core.Bid() == 0 {
		s.emitRejected(order, ErrNoMarket.Error())
		return nil
	}
	if order.IsPostOnly && core.WouldCross(order.Side, order.Price) {
		s.emitRejected(order, "post-only order would cross")
		return nil
	}

	venueOrderID := s.nextVenueOrderID()
	s.orders[order.ClientOrderID] = order
	s.venueIDs[order.ClientOrderID] = venueOrderID
	s.emitAccepted(order, venueOrderID)

	if err := core.AddOrder(order); err != nil {
		s.emitRejected(order, err.Error())
		return nil
	}
	core.Iterate(s.clk.NowNS())
	return nil
}

// SubmitOrderList submits each order in sequence.
func (s *Sim) SubmitOrderList(cmd *model.SubmitOrderList) error {
	for _, order := range cmd.Orders {
		single := &model.SubmitOrder{CommandScope: cmd.CommandScope, Order: order}
		if err := s.SubmitOrder(single); err != nil {
			return err
		}
	}
	return nil
}

// ModifyOrder re-prices/re-sizes a resting order.
func (s *Sim) ModifyOrder(cmd *model.ModifyOrder) error {
	order, ok := s.orders[cmd.ClientOrderID]
	if !ok {
		return fmt.Errorf("modify: unknown order %s", cmd.ClientOrderID)
	}
	core := s.cores[order.InstrumentID]
	if core.Exists(order.ClientOrderID) {
		_ = core.DeleteOrder(order.ClientOrderID)
	}
	s.emit(model.OrderUpdated{
		OrderEventBase: s.eventBase(order),
		Quantity:       cmd.Quantity,
		Price:          cmd.Price,
		TriggerPrice:   cmd.TriggerPrice,
	})
	// The engine applied the amendment to the owned order; re-rest it.
	if err := core.AddOrder(order); err != nil {
		return err
	}
	core.Iterate(s.clk.NowNS())
	return nil
}

// CancelOrder removes a resting order.
func (s *Sim) CancelOrder(cmd *model.CancelOrder) error {
	order, ok := s.orders[cmd.ClientOrderID]
	if !ok {
		return fmt.Errorf("cancel: unknown order %s", cmd.ClientOrderID)
	}
	s.cancel(order)
	return nil
}

// CancelAllOrders cancels every resting order for the instrument, filtered
// by side (SideNone cancels both).
func (s *Sim) CancelAllOrders(cmd *model.CancelAllOrders) error {
	core, ok := s.cores[cmd.InstrumentID]
	if !ok {
		return fmt.Errorf("cancel all: unknown instrument %s", cmd.InstrumentID)
	}
	for _, order := range core.Orders() {
		if cmd.OrderSide != "" && cmd.OrderSide != model.SideNone && order.Side != cmd.OrderSide {
			continue
		}
		s.cancel(order)
	}
	return nil
}

// BatchCancelOrders cancels an explicit set in one call.
func (s *Sim) BatchCancelOrders(cmd *model.BatchCancelOrders) error {
	for i := range cmd.Cancels {
		if err := s.CancelOrder(&cmd.Cancels[i]); err != nil {
			log.Warn().Err(err).Msg("batch cancel entry failed")
		}
	}
	return nil
}

// QueryOrder emits the venue's status report for one order.
func (s *Sim) QueryOrder(cmd *model.QueryOrder) error {
	venueOrderID, ok := s.venueIDs[cmd.ClientOrderID]
	if !ok {
		return fmt.Errorf("query: unknown order %s", cmd.ClientOrderID)
	}
	if report, ok := s.statusReports[venueOrderID]; ok {
		s.emit(report)
	}
	return nil
}

// GenerateOrderStatusReports returns the venue's view of every order.
func (s *Sim) GenerateOrderStatusReports() ([]model.OrderStatusReport, error) {
	out := make([]model.OrderStatusReport, 0, len(s.statusReports))
	for _, report := range s.statusReports {
		out = append(out, report)
	}
	return out, nil
}

// GenerateFillReports returns every recorded execution.
func (s *Sim) GenerateFillReports() ([]model.FillReport, error) {
	var out []model.FillReport
	for _, fills := range s.fillReports {
		out = append(out, fills...)
	}
	return out, nil
}

// GeneratePositionStatusReports returns net exposure per instrument.
func (s *Sim) GeneratePositionStatusReports() ([]model.PositionStatusReport, error) {
	var out []model.PositionStatusReport
	for id := range s.instruments {
		if report, ok := s.netPosition(id); ok {
			out = append(out, report)
		}
	}
	return out, nil
}

// GenerateMassStatus snapshots every order, fill and net position.
func (s *Sim) GenerateMassStatus() (*model.ExecutionMassStatus, error) {
	mass := model.NewExecutionMassStatus(s.id, s.accountID, s.venue, s.clk.NowNS())
	for venueOrderID, report := range s.statusReports {
		mass.AddOrderReport(report)
		mass.AddFillReports(venueOrderID, s.fillReports[venueOrderID])
	}
	for id := range s.instruments {
		if report, ok := s.netPosition(id); ok {
			mass.AddPositionReport(report)
		}
	}
	return mass, nil
}

// ───────────────────────────────────────────────────────────────────────────────
// Core callbacks
// ───────────────────────────────────────────────────────────────────────────────

func (s *Sim) onTriggered(order *model.Order) {
	s.emit(model.OrderTriggered{OrderEventBase: s.eventBase(order)})
}

func (s *Sim) onMarketFill(order *model.Order, liquidity model.LiquiditySide) {
	core := s.cores[order.InstrumentID]
	var px decimal.Decimal
	if order.Side == model.SideBuy {
		px = core.FromTicks(core.Ask())
	} else {
		px = core.FromTicks(core.Bid())
	}
	if px.IsZero() {
		px = core.FromTicks(core.Last())
	}
	s.fillAt(order, px, liquidity)
}

func (s *Sim) onLimitFill(order *model.Order, liquidity model.LiquiditySide) {
	s.fillAt(order, order.Price, liquidity)
}

func (s *Sim) fillAt(order *model.Order, px decimal.Decimal, liquidity model.LiquiditySide) {
	instrument := s.instruments[order.InstrumentID]
	qty := order.LeavesQty()
	if !qty.IsPositive() {
		return
	}
	s.tradeSeq++
	tradeID := model.TradeID(fmt.Sprintf("%s-E-%d-%s", s.venue, s.tradeSeq, shortID()))

	rate := instrument.TakerFee
	if liquidity == model.LiquidityMaker {
		rate = instrument.MakerFee
	}
	notional := instrument.Notional(qty, px, false)
	commission := model.NewMoney(notional.Amount.Mul(rate), notional.Currency)

	fill := model.OrderFilled{
		OrderEventBase: s.eventBase(order),
		TradeID:        tradeID,
		Side:           order.Side,
		LastQty:        qty,
		LastPx:         px,
		Commission:     commission,
		LiquiditySide:  liquidity,
	}
	s.recordFill(order, fill)
	s.emit(fill)
}

func (s *Sim) cancel(order *model.Order) {
	core := s.cores[order.InstrumentID]
	if core.Exists(order.ClientOrderID) {
		_ = core.DeleteOrder(order.ClientOrderID)
	}
	s.emitStatus(order, model.OrderStatusCanceled)
	s.emit(model.OrderCanceled{OrderEventBase: s.eventBase(order)})
}

// ───────────────────────────────────────────────────────────────────────────────
// Event plumbing
// ───────────────────────────────────────────────────────────────────────────────

func (s *Sim) emit(msg any) {
	if !s.running {
		log.Warn().Str("venue", string(s.venue)).Msg("venue stopped, event dropped")
		return
	}
	s.sink(msg)
}

func (s *Sim) emitAccepted(order *model.Order, venueOrderID model.VenueOrderID) {
	base := s.eventBase(order)
	base.VenueOrderID = venueOrderID
	s.statusReports[venueOrderID] = model.OrderStatusReport{
		AccountID:     s.accountID,
		InstrumentID:  order.InstrumentID,
		ClientOrderID: order.ClientOrderID,
		VenueOrderID:  venueOrderID,
		Side:          order.Side,
		Type:          order.Type,
		Status:        model.OrderStatusAccepted,
		Quantity:      order.Quantity,
		FilledQty:     decimal.Zero,
		Price:         order.Price,
		TriggerPrice:  order.TriggerPrice,
		TsInit:        s.clk.NowNS(),
	}
	s.emit(model.OrderAccepted{OrderEventBase: base})
}

func (s *Sim) emitRejected(order *model.Order, reason string) {
	s.emit(model.OrderRejected{OrderEventBase: s.eventBase(order), Reason: reason})
}

func (s *Sim) emitStatus(order *model.Order, status model.OrderStatus) {
	venueOrderID, ok := s.venueIDs[order.ClientOrderID]
	if !ok {
		return
	}
	report := s.statusReports[venueOrderID]
	report.Status = status
	s.statusReports[venueOrderID] = report
}

func (s *Sim) recordFill(order *model.Order, fill model.OrderFilled) {
	venueOrderID, ok := s.venueIDs[order.ClientOrderID]
	if !ok {
		return
	}
	report := s.statusReports[venueOrderID]
	report.FilledQty = report.FilledQty.Add(fill.LastQty)
	if report.FilledQty.GreaterThanOrEqual(report.Quantity) {
		report.Status = model.OrderStatusFilled
	} else {
		report.Status = model.OrderStatusPartiallyFilled
	}
	s.statusReports[venueOrderID] = report
	s.fillReports[venueOrderID] = append(s.fillReports[venueOrderID], model.FillReport{
		AccountID:     s.accountID,
		InstrumentID:  order.InstrumentID,
		ClientOrderID: order.ClientOrderID,
		VenueOrderID:  venueOrderID,
		TradeID:       fill.TradeID,
		Side:          fill.Side,
		LastQty:       fill.LastQty,
		LastPx:        fill.LastPx,
		Commission:    fill.Commission,
		LiquiditySide: fill.LiquiditySide,
		TsEvent:       fill.TsEvent,
		TsInit:        s.clk.NowNS(),
	})
}

func (s *Sim) netPosition(id model.InstrumentID) (model.PositionStatusReport, bool) {
	// The sim venue does not carry positions itself; fills flow straight
	// through to the engine's ledgers. Net exposure is reconstructed from
	// recorded fills.
	net := decimal.Zero
	for _, fills := range s.fillReports {
		for _, fr := range fills {
			if fr.InstrumentID != id {
				continue
			}
			if fr.Side == model.SideBuy {
				net = net.Add(fr.LastQty)
			} else {
				net = net.Sub(fr.LastQty)
			}
		}
	}
	if net.IsZero() {
		return model.PositionStatusReport{}, false
	}
	side := model.PositionLong
	if net.IsNegative() {
		side = model.PositionShort
	}
	return model.PositionStatusReport{
		AccountID:    s.accountID,
		InstrumentID: id,
		Side:         side,
		Quantity:     net.Abs(),
		TsInit:       s.clk.NowNS(),
	}, true
}

func (s *Sim) eventBase(order *model.Order) model.OrderEventBase {
	base := model.OrderEventBase{
		ClientOrderID: order.ClientOrderID,
		InstrumentID:  order.InstrumentID,
		StrategyID:    order.StrategyID,
		AccountID:     s.accountID,
		TsEvent:       s.clk.NowNS(),
	}
	if venueOrderID, ok := s.venueIDs[order.ClientOrderID]; ok {
		base.VenueOrderID = venueOrderID
	}
	return base
}

func (s *Sim) nextVenueOrderID() model.VenueOrderID {
	s.venueSeq++
	return model.VenueOrderID(fmt.Sprintf("%s-%d", s.venue, s.venueSeq))
}

func shortID() string {
	return uuid.NewString()[:8]
}
