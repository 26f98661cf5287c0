package engine

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// ───────────────────────────────────────────────────────────────────────────────
// Reconciliation. Venue truth wins: the local order is walked through the
// report's state (rejected -> accepted -> triggered -> updated -> fills ->
// canceled/expired), each stage skipped when the local state already
// matches. Orders the venue reports that the cache has never seen are
// synthesized as external orders and injected as if locally originated.
// Re-receiving an already-applied report is a no-op.
// ───────────────────────────────────────────────────────────────────────────────

// ReconcileState requests a mass status from every registered client and
// aligns the cache with each. Called at startup before trading resumes.
func (e *Engine) ReconcileState() {
	for _, client := range e.clients {
		mass, err := client.GenerateMassStatus()
		if err != nil {
			log.Error().Err(err).Str("client", string(client.ID())).Msg("mass status request failed")
			continue
		}
		if mass != nil {
			e.ReconcileMassStatus(mass)
		}
	}
}

// ReconcileMassStatus aligns the cache with a full venue snapshot.
func (e *Engine) ReconcileMassStatus(mass *model.ExecutionMassStatus) {
	log.Info().
		Str("client", string(mass.ClientID)).
		Int("orders", len(mass.Orders)).
		Int("positions", len(mass.Positions)).
		Msg("reconciling venue mass status")

	// Deterministic order: venue order ids sorted.
	venueIDs := make([]model.VenueOrderID, 0, len(mass.Orders))
	for id := range mass.Orders {
		venueIDs = append(venueIDs, id)
	}
	sort.Slice(venueIDs, func(i, j int) bool { return venueIDs[i] < venueIDs[j] })

	for _, venueID := range venueIDs {
		e.ReconcileReport(mass.Orders[venueID], mass.Fills[venueID])
	}
	for _, report := range mass.Positions {
		e.reconcilePositionReport(report)
	}
	if !e.cache.CheckIntegrity() && e.metrics != nil {
		e.metrics.IntegrityViolations.Inc()
	}
}

// ReconcileReport aligns one order with its venue report and fills.
func (e *Engine) ReconcileReport(report model.OrderStatusReport, fills []model.FillReport) {
	order, ok := e.resolveReportedOrder(report)
	if !ok {
		order = e.synthesizeExternalOrder(report)
		if order == nil {
			return
		}
	}

	// Rejected is terminal and excludes everything else.
	if report.Status == model.OrderStatusRejected {
		if order.Status != model.OrderStatusRejected {
			e.applyAndPublish(order, model.OrderRejected{
				OrderEventBase: e.reportBase(order, report),
				Reason:         "reported rejected by venue",
			})
		}
		return
	}

	// Accepted: every live venue order has passed through acceptance.
	if order.Status == model.OrderStatusInitialized || order.Status == model.OrderStatusSubmitted {
		e.applyAndPublish(order, model.OrderAccepted{OrderEventBase: e.reportBase(order, report)})
	}

	if report.Status == model.OrderStatusTriggered && order.Status != model.OrderStatusTriggered {
		e.applyAndPublish(order, model.OrderTriggered{OrderEventBase: e.reportBase(order, report)})
	}

	// Amendments: venue quantity/price differ from the local view.
	if e.reportAmends(order, report) {
		e.applyAndPublish(order, model.OrderUpdated{
			OrderEventBase: e.reportBase(order, report),
			Quantity:       report.Quantity,
			Price:          report.Price,
			TriggerPrice:   report.TriggerPrice,
		})
	}

	// Fills before terminal states so a canceled partial fill replays
	// legally through the order state machine.
	e.reconcileFills(order, report, fills)

	switch report.Status {
	case model.OrderStatusCanceled:
		if order.Status != model.OrderStatusCanceled {
			e.applyAndPublish(order, model.OrderCanceled{OrderEventBase: e.reportBase(order, report)})
		}
	case model.OrderStatusExpired:
		if order.Status != model.OrderStatusExpired {
			e.applyAndPublish(order, model.OrderExpired{OrderEventBase: e.reportBase(order, report)})
		}
	}
}

// resolveReportedOrder finds the local order for a venue report.
func (e *Engine) resolveReportedOrder(report model.OrderStatusReport) (*model.Order, bool) {
	if report.ClientOrderID != "" {
		if order, ok := e.cache.Order(report.ClientOrderID); ok {
			return order, true
		}
	}
	if order, ok := e.cache.OrderForVenueID(report.VenueOrderID); ok {
		return order, true
	}
	return nil, false
}

// synthesizeExternalOrder builds a local order for one the venue reports but
// the cache has never seen, and injects it as if locally originated.
func (e *Engine) synthesizeExternalOrder(report model.OrderStatusReport) *model.Order {
	e.reconSeq++
	clientOrderID := report.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = model.ClientOrderID(fmt.Sprintf("RECON-%d", e.reconSeq))
	}
	side := report.Side
	if side == "" || side == model.SideNone {
		log.Error().Str("venue_order_id", string(report.VenueOrderID)).Msg("cannot synthesize order without side")
		return nil
	}
	orderType := report.Type
	if orderType == "" {
		orderType = model.OrderTypeLimit
	}
	order := model.NewOrder(
		clientOrderID,
		e.cfg.TraderID,
		externalStrategyID,
		report.InstrumentID,
		side,
		orderType,
		report.Quantity,
		report.TsInit,
	)
	order.Price = report.Price
	order.TriggerPrice = report.TriggerPrice
	order.AccountID = report.AccountID
	if err := e.cache.AddOrder(order, ""); err != nil {
		log.Error().Err(err).Str("order", string(clientOrderID)).Msg("cannot cache external order")
		return nil
	}
	if e.metrics != nil {
		e.metrics.ReconciledExternal.Inc()
	}
	log.Warn().
		Str("order", string(clientOrderID)).
		Str("venue_order_id", string(report.VenueOrderID)).
		Str("status", string(report.Status)).
		Msg("synthesized external order from venue report")
	return order
}

// externalStrategyID owns orders that did not originate from this trader.
const externalStrategyID = model.StrategyID("EXTERNAL")

// reconcileFills replays venue fills through the fill pipeline, then infers
// a residual fill if the reported filled quantity still exceeds the local
// view (fills lost at the venue boundary).
func (e *Engine) reconcileFills(order *model.Order, report model.OrderStatusReport, fills []model.FillReport) {
	sort.Slice(fills, func(i, j int) bool { return fills[i].TsEvent < fills[j].TsEvent })
	for _, fr := range fills {
		if order.HasTradeID(fr.TradeID) {
			continue
		}
		e.handleFill(e.fillFromReport(order, fr))
	}
	if report.FilledQty.GreaterThan(order.FilledQty) {
		missing := report.FilledQty.Sub(order.FilledQty)
		px := report.Price
		if px.IsZero() {
			px = order.Price
		}
		e.reconSeq++
		log.Warn().
			Str("order", string(order.ClientOrderID)).
			Str("missing_qty", missing.String()).
			Msg("inferring residual fill from status report")
		inferred := model.OrderFilled{
			OrderEventBase: e.reportBase(order, report),
			TradeID:        model.TradeID(fmt.Sprintf("RECON-FILL-%d", e.reconSeq)),
			Side:           order.Side,
			LastQty:        missing,
			LastPx:         px,
			Commission:     model.ZeroMoney(model.USD),
			LiquiditySide:  model.LiquidityNone,
		}
		e.handleFill(inferred)
	}
}

func (e *Engine) fillFromReport(order *model.Order, fr model.FillReport) model.OrderFilled {
	return model.OrderFilled{
		OrderEventBase: model.OrderEventBase{
			ClientOrderID: order.ClientOrderID,
			VenueOrderID:  fr.VenueOrderID,
			InstrumentID:  order.InstrumentID,
			StrategyID:    order.StrategyID,
			AccountID:     firstAccountID(fr.AccountID, order.AccountID),
			TsEvent:       fr.TsEvent,
		},
		TradeID:       fr.TradeID,
		PositionID:    fr.VenuePosID,
		Side:          fr.Side,
		LastQty:       fr.LastQty,
		LastPx:        fr.LastPx,
		Commission:    fr.Commission,
		LiquiditySide: fr.LiquiditySide,
	}
}

// reconcilePositionReport compares the venue's net position against the
// cache. A disagreement is a protocol mismatch surfaced to observability;
// recovery is not attempted mid-session.
func (e *Engine) reconcilePositionReport(report model.PositionStatusReport) {
	venueNet := markQty(report.Side, report.Quantity)
	cached := decimal.Zero
	for _, position := range e.cache.PositionsOpen(report.InstrumentID, "") {
		cached = cached.Add(position.SignedQty)
	}
	if !cached.Equal(venueNet) {
		if e.metrics != nil {
			e.metrics.IntegrityViolations.Inc()
		}
		log.Error().
			Str("instrument", string(report.InstrumentID)).
			Str("venue_qty", venueNet.String()).
			Str("cached_qty", cached.String()).
			Msg("position mismatch against venue report")
	}
}

// reportBase builds an event base stamped with the venue id from a report.
func (e *Engine) reportBase(order *model.Order, report model.OrderStatusReport) model.OrderEventBase {
	base := e.eventBase(order)
	if report.VenueOrderID != "" {
		base.VenueOrderID = report.VenueOrderID
	}
	if base.AccountID == "" {
		base.AccountID = report.AccountID
	}
	return base
}

// reportAmends reports whether the venue's quantity/price disagree with the
// local order in a way an OrderUpdated can align.
func (e *Engine) reportAmends(order *model.Order, report model.OrderStatusReport) bool {
	if report.Quantity.IsPositive() && !report.Quantity.Equal(order.Quantity) {
		return true
	}
	if report.Price.IsPositive() && !report.Price.Equal(order.Price) {
		return true
	}
	if report.TriggerPrice.IsPositive() && !report.TriggerPrice.Equal(order.TriggerPrice) {
		return true
	}
	return false
}

func firstAccountID(ids ...model.AccountID) model.AccountID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}
