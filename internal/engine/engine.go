package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradecore/internal/account"
	"github.com/web3guy0/tradecore/internal/bus"
	"github.com/web3guy0/tradecore/internal/cache"
	"github.com/web3guy0/tradecore/internal/clock"
	"github.com/web3guy0/tradecore/internal/metrics"
	"github.com/web3guy0/tradecore/internal/model"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION ENGINE - Command dispatch, fills, reconciliation
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Strategy ──commands──▶ Engine ──▶ ExecutionClient (venue)
//                            │                │
//                            ▼                ▼
//                          Cache ◀── events ──┘
//                            │
//                            ▼
//                      Account ledger
//
// The engine is single-threaded: commands and events are handled on the run
// goroutine in arrival order. Adapters on other threads hand messages in
// through Enqueue; nothing else crosses the boundary.
//
// ═══════════════════════════════════════════════════════════════════════════════

// State is the engine lifecycle state. Commands are rejected outside RUNNING.
type State string

const (
	StatePreInitialized State = "PRE_INITIALIZED"
	StateReady          State = "READY"
	StateRunning        State = "RUNNING"
	StateStopped        State = "STOPPED"
	StateDisposed       State = "DISPOSED"
)

// Bus endpoints served by the engine.
const (
	EndpointExecute = "ExecEngine.execute"
	EndpointProcess = "ExecEngine.process"
)

// ErrNotRunning - a command arrived while the engine was not RUNNING.
var ErrNotRunning = errors.New("engine not running")

// Config tunes the engine.
type Config struct {
	TraderID model.TraderID
	// OmsType is the default order management scheme when a strategy has
	// no override: NETTING nets one position per (instrument, strategy),
	// HEDGING opens one position per trade.
	OmsType     model.OmsType
	StrategyOms map[model.StrategyID]model.OmsType
	// InboundBuffer sizes the adapter->engine channel.
	InboundBuffer int
}

// Engine turns strategy intents into venue commands and venue facts into
// cache, position and account state.
type Engine struct {
	cfg      Config
	bus      *bus.Bus
	cache    *cache.Cache
	clk      clock.Clock
	accounts *account.Manager
	metrics  *metrics.Metrics

	clients       map[model.ClientID]ExecutionClient
	venueClients  map[model.Venue]ExecutionClient
	defaultClient ExecutionClient

	mu      sync.RWMutex
	state   State
	inbound chan any
	stopCh  chan struct{}
	wg      sync.WaitGroup

	reconSeq int
}

// New creates an engine in PRE_INITIALIZED state.
func New(cfg Config, msgBus *bus.Bus, execCache *cache.Cache, clk clock.Clock, mx *metrics.Metrics) *Engine {
	if cfg.OmsType == "" || cfg.OmsType == model.OmsUnspecified {
		cfg.OmsType = model.OmsNetting
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = 4096
	}
	return &Engine{
		cfg:          cfg,
		bus:          msgBus,
		cache:        execCache,
		clk:          clk,
		accounts:     account.NewManager(clk),
		metrics:      mx,
		clients:      make(map[model.ClientID]ExecutionClient),
		venueClients: make(map[model.Venue]ExecutionClient),
		state:        StatePreInitialized,
		inbound:      make(chan any, cfg.InboundBuffer),
	}
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	log.Info().Str("state", string(s)).Msg("engine state")
}

// RegisterClient adds an execution client. The first registration moves the
// engine from PRE_INITIALIZED to READY.
func (e *Engine) RegisterClient(client ExecutionClient) error {
	if _, exists := e.clients[client.ID()]; exists {
		return fmt.Errorf("client already registered: %s", client.ID())
	}
	e.clients[client.ID()] = client
	e.venueClients[client.Venue()] = client
	if e.defaultClient == nil {
		e.defaultClient = client
	}
	if e.State() == StatePreInitialized {
		e.setState(StateReady)
	}
	return nil
}

// RegisterDefaultClient selects the fallback client for commands with no
// client id and no venue route.
func (e *Engine) RegisterDefaultClient(client ExecutionClient) {
	e.defaultClient = client
}

// Start transitions to RUNNING, binds bus endpoints and starts the run loop.
func (e *Engine) Start() error {
	switch e.State() {
	case StateReady, StateStopped:
	default:
		return fmt.Errorf("cannot start engine from %s", e.State())
	}
	if err := e.bus.Register(EndpointExecute, e.Enqueue); err != nil {
		var dup *bus.DuplicateEndpointError
		if !errors.As(err, &dup) {
			return err
		}
	}
	if err := e.bus.Register(EndpointProcess, e.Enqueue); err != nil {
		var dup *bus.DuplicateEndpointError
		if !errors.As(err, &dup) {
			return err
		}
	}
	e.stopCh = make(chan struct{})
	e.setState(StateRunning)
	e.wg.Add(1)
	go e.run()
	log.Info().Msg("⚡ Execution engine started")
	return nil
}

// Stop transitions to STOPPED and discards whatever is left on the inbound
// channel. In-flight venue responses arriving later are dropped with a
// warning by Enqueue.
func (e *Engine) Stop() error {
	if e.State() != StateRunning {
		return fmt.Errorf("cannot stop engine from %s", e.State())
	}
	e.setState(StateStopped)
	close(e.stopCh)
	e.wg.Wait()
	discarded := 0
	for {
		select {
		case <-e.inbound:
			discarded++
		default:
			if discarded > 0 {
				log.Warn().Int("discarded", discarded).Msg("discarded queued messages on stop")
			}
			e.cache.CheckResiduals()
			log.Info().Msg("engine stopped")
			return nil
		}
	}
}

// Dispose releases the engine; terminal.
func (e *Engine) Dispose() {
	if e.State() == StateRunning {
		_ = e.Stop()
	}
	e.setState(StateDisposed)
}

// Enqueue hands a command or event to the engine thread. The only
// thread-safe entry point.
func (e *Engine) Enqueue(msg any) {
	if e.State() != StateRunning {
		log.Warn().Type("msg", msg).Msg("engine not running, message dropped")
		return
	}
	select {
	case e.inbound <- msg:
	default:
		log.Error().Type("msg", msg).Msg("engine inbound channel full, message dropped")
	}
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case msg := <-e.inbound:
			e.Dispatch(msg)
		}
	}
}

// Dispatch routes one message. Engine thread only; exported so same-thread
// embeddings (backtests, tests) can drive the engine without the channel.
func (e *Engine) Dispatch(msg any) {
	switch m := msg.(type) {
	case model.Command:
		e.ExecuteCommand(m)
	case model.OrderFilled:
		e.handleFill(m)
	case model.OrderEvent:
		e.handleOrderEvent(m)
	case model.AccountState:
		e.handleAccountState(m)
	case *model.ExecutionMassStatus:
		e.ReconcileMassStatus(m)
	case model.OrderStatusReport:
		e.ReconcileReport(m, nil)
	default:
		log.Error().Type("msg", msg).Msg("engine cannot handle message type")
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// Commands
// ───────────────────────────────────────────────────────────────────────────────

// ExecuteCommand runs one command on the engine thread.
func (e *Engine) ExecuteCommand(cmd model.Command) {
	if e.State() != StateRunning {
		log.Error().
			Str("command", string(cmd.CommandType())).
			Str("state", string(e.State())).
			Msg("command rejected: engine not running")
		e.denyCommand(cmd, ErrNotRunning.Error())
		return
	}
	e.countCommand(cmd.CommandType())
	switch c := cmd.(type) {
	case *model.SubmitOrder:
		e.handleSubmitOrder(c)
	case *model.SubmitOrderList:
		e.handleSubmitOrderList(c)
	case *model.ModifyOrder:
		e.handleModifyOrder(c)
	case *model.CancelOrder:
		e.handleCancelOrder(c)
	case *model.CancelAllOrders:
		e.handleCancelAllOrders(c)
	case *model.BatchCancelOrders:
		e.handleBatchCancelOrders(c)
	case *model.QueryOrder:
		e.handleQueryOrder(c)
	default:
		log.Error().Str("command", string(cmd.CommandType())).Msg("unhandled command type")
	}
}

func (e *Engine) handleSubmitOrder(cmd *model.SubmitOrder) {
	order := cmd.Order
	if order == nil {
		log.Error().Msg("SubmitOrder with nil order")
		return
	}
	if cmd.ExecAlgorithm != "" {
		// Opaque pass-through: the engine never interprets the algorithm key.
		order.ExecAlgorithm = cmd.ExecAlgorithm
	}
	if e.cache.OrderExists(order.ClientOrderID) {
		e.denyOrder(order, "duplicate client order id")
		return
	}
	if err := e.cache.AddOrder(order, cmd.PositionID); err != nil {
		e.denyOrder(order, err.Error())
		return
	}

	client, ok := e.clientFor(cmd.CommandScope)
	if !ok {
		e.rejectCached(order, "no execution client for command")
		return
	}
	order.AccountID = client.AccountID()

	if err := e.lockForOrder(client, order); err != nil {
		e.rejectCached(order, err.Error())
		return
	}

	submitted := model.OrderSubmitted{OrderEventBase: e.eventBase(order)}
	e.applyAndPublish(order, submitted)

	e.bus.Publish(topicCommands(client.ID()), cmd)
	if err := client.SubmitOrder(cmd); err != nil {
		log.Error().Err(err).Str("order", string(order.ClientOrderID)).Msg("submit failed at client")
		rejected := model.OrderRejected{OrderEventBase: e.eventBase(order), Reason: err.Error()}
		e.handleOrderEvent(rejected)
	}
}

func (e *Engine) handleSubmitOrderList(cmd *model.SubmitOrderList) {
	if len(cmd.Orders) == 0 {
		log.Error().Msg("SubmitOrderList with no orders")
		return
	}
	client, ok := e.clientFor(cmd.CommandScope)
	if !ok {
		for _, order := range cmd.Orders {
			e.denyOrder(order, "no execution client for command")
		}
		return
	}
	for _, order := range cmd.Orders {
		if cmd.ExecAlgorithm != "" {
			order.ExecAlgorithm = cmd.ExecAlgorithm
		}
		if e.cache.OrderExists(order.ClientOrderID) {
			e.denyOrder(order, "duplicate client order id")
			return
		}
		if err := e.cache.AddOrder(order, cmd.PositionID); err != nil {
			e.denyOrder(order, err.Error())
			return
		}
		order.AccountID = client.AccountID()
		if err := e.lockForOrder(client, order); err != nil {
			e.rejectCached(order, err.Error())
			return
		}
		e.applyAndPublish(order, model.OrderSubmitted{OrderEventBase: e.eventBase(order)})
	}
	e.bus.Publish(topicCommands(client.ID()), cmd)
	if err := client.SubmitOrderList(cmd); err != nil {
		log.Error().Err(err).Msg("submit list failed at client")
		for _, order := range cmd.Orders {
			e.handleOrderEvent(model.OrderRejected{OrderEventBase: e.eventBase(order), Reason: err.Error()})
		}
	}
}

func (e *Engine) handleModifyOrder(cmd *model.ModifyOrder) {
	order, ok := e.cache.Order(cmd.ClientOrderID)
	if !ok {
		log.Error().Str("order", string(cmd.ClientOrderID)).Msg("ModifyOrder: unknown order")
		return
	}
	if order.IsCompleted() {
		log.Warn().Str("order", string(cmd.ClientOrderID)).Msg("ModifyOrder: order already completed")
		return
	}
	client, ok := e.clientFor(cmd.CommandScope)
	if !ok {
		log.Error().Str("order", string(cmd.ClientOrderID)).Msg("ModifyOrder: no execution client")
		return
	}
	e.bus.Publish(topicCommands(client.ID()), cmd)
	if err := client.ModifyOrder(cmd); err != nil {
		log.Error().Err(err).Str("order", string(cmd.ClientOrderID)).Msg("modify failed at client")
	}
}

func (e *Engine) handleCancelOrder(cmd *model.CancelOrder) {
	order, ok := e.cache.Order(cmd.ClientOrderID)
	if !ok {
		log.Error().Str("order", string(cmd.ClientOrderID)).Msg("CancelOrder: unknown order")
		return
	}
	if order.IsCompleted() {
		log.Warn().Str("order", string(cmd.ClientOrderID)).Msg("CancelOrder: order already completed")
		return
	}
	client, ok := e.clientFor(cmd.CommandScope)
	if !ok {
		log.Error().Str("order", string(cmd.ClientOrderID)).Msg("CancelOrder: no execution client")
		return
	}
	e.bus.Publish(topicCommands(client.ID()), cmd)
	if err := client.CancelOrder(cmd); err != nil {
		log.Error().Err(err).Str("order", string(cmd.ClientOrderID)).Msg("cancel failed at client")
	}
}

func (e *Engine) handleCancelAllOrders(cmd *model.CancelAllOrders) {
	client, ok := e.clientFor(cmd.CommandScope)
	if !ok {
		log.Error().Str("instrument", string(cmd.InstrumentID)).Msg("CancelAllOrders: no execution client")
		return
	}
	e.bus.Publish(topicCommands(client.ID()), cmd)
	if err := client.CancelAllOrders(cmd); err != nil {
		log.Error().Err(err).Str("instrument", string(cmd.InstrumentID)).Msg("cancel all failed at client")
	}
}

func (e *Engine) handleBatchCancelOrders(cmd *model.BatchCancelOrders) {
	if len(cmd.Cancels) == 0 {
		log.Error().Msg("BatchCancelOrders with no cancels")
		return
	}
	client, ok := e.clientFor(cmd.CommandScope)
	if !ok {
		log.Error().Msg("BatchCancelOrders: no execution client")
		return
	}
	e.bus.Publish(topicCommands(client.ID()), cmd)
	if err := client.BatchCancelOrders(cmd); err != nil {
		log.Error().Err(err).Msg("batch cancel failed at client")
	}
}

func (e *Engine) handleQueryOrder(cmd *model.QueryOrder) {
	client, ok := e.clientFor(cmd.CommandScope)
	if !ok {
		log.Error().Str("order", string(cmd.ClientOrderID)).Msg("QueryOrder: no execution client")
		return
	}
	e.bus.Publish(topicCommands(client.ID()), cmd)
	if err := client.QueryOrder(cmd); err != nil {
		log.Error().Err(err).Str("order", string(cmd.ClientOrderID)).Msg("query failed at client")
	}
}

// lockForOrder reserves balance or margin for a new order and publishes the
// resulting account state.
func (e *Engine) lockForOrder(client ExecutionClient, order *model.Order) error {
	acct, ok := e.cache.AccountForID(client.AccountID())
	if !ok {
		// No ledger wired for this venue; nothing to lock.
		return nil
	}
	instrument, ok := e.cache.Instrument(order.InstrumentID)
	if !ok {
		return fmt.Errorf("unknown instrument %s", order.InstrumentID)
	}
	state, err := e.accounts.LockBalance(acct, instrument, order)
	if err != nil {
		e.countAccountError()
		return err
	}
	e.persistAndPublishAccount(acct, state)
	return nil
}

// ───────────────────────────────────────────────────────────────────────────────
// Events
// ───────────────────────────────────────────────────────────────────────────────

// handleOrderEvent applies a non-fill order event, refreshes the cache and
// forwards the event to the strategy channel.
func (e *Engine) handleOrderEvent(ev model.OrderEvent) {
	e.countEvent(string(ev.EventType()))
	order, ok := e.cache.Order(ev.OrderID())
	if !ok {
		log.Warn().
			Str("order", string(ev.OrderID())).
			Str("event", string(ev.EventType())).
			Msg("event for unknown order dropped")
		return
	}
	wasTerminal := order.IsCompleted()
	if err := order.Apply(ev); err != nil {
		log.Warn().Err(err).
			Str("order", string(order.ClientOrderID)).
			Str("event", string(ev.EventType())).
			Msg("order event not applied")
		return
	}
	if err := e.cache.UpdateOrder(order); err != nil {
		log.Error().Err(err).Str("order", string(order.ClientOrderID)).Msg("cache update failed")
	}
	if !wasTerminal && order.IsCompleted() && order.Status != model.OrderStatusFilled {
		e.unlockForOrder(order)
	}
	e.publishOrderEvent(ev)
}

// handleAccountState applies a venue-reported account snapshot.
func (e *Engine) handleAccountState(state model.AccountState) {
	e.countEvent("AccountState")
	acct, ok := e.cache.AccountForID(state.AccountID)
	if !ok {
		created, err := account.New(state)
		if err != nil {
			log.Error().Err(err).Str("account", string(state.AccountID)).Msg("cannot build account from state")
			return
		}
		if err := e.cache.AddAccount(created); err != nil {
			log.Error().Err(err).Str("account", string(state.AccountID)).Msg("cannot cache account")
			return
		}
		e.bus.Publish(topicAccount(state.AccountID), state)
		return
	}
	if err := acct.ApplyState(state); err != nil {
		e.countAccountError()
		log.Error().Err(err).Str("account", string(state.AccountID)).Msg("account state rejected")
		return
	}
	if err := e.cache.UpdateAccount(acct); err != nil {
		log.Error().Err(err).Str("account", string(state.AccountID)).Msg("account persist failed")
	}
	e.bus.Publish(topicAccount(state.AccountID), state)
}

// unlockForOrder releases the reservation for a terminal unfilled order.
func (e *Engine) unlockForOrder(order *model.Order) {
	if order.AccountID == "" {
		return
	}
	acct, ok := e.cache.AccountForID(order.AccountID)
	if !ok {
		return
	}
	if e.cache.OrdersWorkingCount(order.InstrumentID, "") > 0 {
		// Other working orders still hold the instrument's reservation.
		return
	}
	state, err := e.accounts.UnlockBalance(acct, order.InstrumentID)
	if err != nil {
		e.countAccountError()
		log.Error().Err(err).Str("order", string(order.ClientOrderID)).Msg("unlock failed")
		return
	}
	e.persistAndPublishAccount(acct, state)
}

// ───────────────────────────────────────────────────────────────────────────────
// Plumbing
// ───────────────────────────────────────────────────────────────────────────────

func (e *Engine) clientFor(scope model.CommandScope) (ExecutionClient, bool) {
	if scope.ClientID != "" {
		client, ok := e.clients[scope.ClientID]
		return client, ok
	}
	if client, ok := e.venueClients[scope.InstrumentID.Venue()]; ok {
		return client, true
	}
	if e.defaultClient != nil {
		return e.defaultClient, true
	}
	return nil, false
}

// omsFor resolves the order management scheme for a strategy.
func (e *Engine) omsFor(strategyID model.StrategyID) model.OmsType {
	if oms, ok := e.cfg.StrategyOms[strategyID]; ok && oms != model.OmsUnspecified {
		return oms
	}
	return e.cfg.OmsType
}

func (e *Engine) eventBase(order *model.Order) model.OrderEventBase {
	return model.OrderEventBase{
		ClientOrderID: order.ClientOrderID,
		VenueOrderID:  order.VenueOrderID,
		InstrumentID:  order.InstrumentID,
		StrategyID:    order.StrategyID,
		AccountID:     order.AccountID,
		TsEvent:       e.clk.NowNS(),
	}
}

// applyAndPublish applies an event to a cached order and forwards it.
func (e *Engine) applyAndPublish(order *model.Order, ev model.OrderEvent) {
	if err := order.Apply(ev); err != nil {
		log.Warn().Err(err).Str("order", string(order.ClientOrderID)).Msg("event not applied")
		return
	}
	if err := e.cache.UpdateOrder(order); err != nil {
		log.Error().Err(err).Str("order", string(order.ClientOrderID)).Msg("cache update failed")
	}
	e.publishOrderEvent(ev)
}

func (e *Engine) publishOrderEvent(ev model.OrderEvent) {
	e.bus.Publish(topicOrders(ev.Strategy()), ev)
}

func (e *Engine) publishPositionEvent(ev model.PositionEvent) {
	e.bus.Publish(topicPositions(ev.StrategyID), ev)
}

func (e *Engine) persistAndPublishAccount(acct account.Account, state model.AccountState) {
	if err := e.cache.UpdateAccount(acct); err != nil {
		log.Error().Err(err).Str("account", string(acct.ID())).Msg("account persist failed")
	}
	e.bus.Publish(topicAccount(acct.ID()), state)
}

// denyOrder publishes a rejection for an order that never reached the cache
// or the venue.
func (e *Engine) denyOrder(order *model.Order, reason string) {
	e.countDenied()
	log.Error().
		Str("order", string(order.ClientOrderID)).
		Str("reason", reason).
		Msg("order denied")
	e.bus.Publish(topicOrders(order.StrategyID), model.OrderRejected{
		OrderEventBase: e.eventBase(order),
		Reason:         reason,
	})
}

// rejectCached rejects an order already in the cache.
func (e *Engine) rejectCached(order *model.Order, reason string) {
	e.countDenied()
	rejected := model.OrderRejected{OrderEventBase: e.eventBase(order), Reason: reason}
	e.applyAndPublish(order, rejected)
}

// denyCommand surfaces a command-validation failure to the strategy channel.
func (e *Engine) denyCommand(cmd model.Command, reason string) {
	switch c := cmd.(type) {
	case *model.SubmitOrder:
		if c.Order != nil {
			e.denyOrder(c.Order, reason)
		}
	case *model.SubmitOrderList:
		for _, order := range c.Orders {
			e.denyOrder(order, reason)
		}
	}
}

func (e *Engine) newPositionID() model.PositionID {
	return model.PositionID("P-" + uuid.NewString())
}

func (e *Engine) countCommand(t model.CommandType) {
	if e.metrics != nil {
		e.metrics.CommandsProcessed.WithLabelValues(string(t)).Inc()
	}
}

func (e *Engine) countEvent(t string) {
	if e.metrics != nil {
		e.metrics.EventsProcessed.WithLabelValues(t).Inc()
	}
}

func (e *Engine) countDenied() {
	if e.metrics != nil {
		e.metrics.OrdersDenied.Inc()
	}
}

func (e *Engine) countAccountError() {
	if e.metrics != nil {
		e.metrics.AccountErrors.Inc()
	}
}

func topicOrders(strategyID model.StrategyID) string {
	return "events.order." + string(strategyID)
}

func topicPositions(strategyID model.StrategyID) string {
	return "events.position." + string(strategyID)
}

func topicAccount(accountID model.AccountID) string {
	return "events.account." + string(accountID)
}

func topicCommands(clientID model.ClientID) string {
	return "commands." + string(clientID)
}
