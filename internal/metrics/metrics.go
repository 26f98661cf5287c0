package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the engine's observability channel. Internal errors increment
// counters here and go to the log; they never propagate up the bus.
type Metrics struct {
	CommandsProcessed   *prometheus.CounterVec
	EventsProcessed     *prometheus.CounterVec
	OrdersDenied        prometheus.Counter
	FillsApplied        prometheus.Counter
	FillsDuplicate      prometheus.Counter
	PositionsOpened     prometheus.Counter
	PositionsClosed     prometheus.Counter
	ReconciledExternal  prometheus.Counter
	IntegrityViolations prometheus.Counter
	AccountErrors       prometheus.Counter
}

// New registers the engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "commands_processed_total",
			Help:      "Execution commands processed, by command type.",
		}, []string{"type"}),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "events_processed_total",
			Help:      "Order and account events processed, by event type.",
		}, []string{"type"}),
		OrdersDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "orders_denied_total",
			Help:      "Orders denied by engine validation before reaching a venue.",
		}),
		FillsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "fills_applied_total",
			Help:      "Fills applied through the position pipeline.",
		}),
		FillsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "fills_duplicate_total",
			Help:      "Fills dropped as duplicates by execution id.",
		}),
		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "positions_opened_total",
			Help:      "Positions opened.",
		}),
		PositionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "positions_closed_total",
			Help:      "Positions closed.",
		}),
		ReconciledExternal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "reconciled_external_orders_total",
			Help:      "External orders synthesized during reconciliation.",
		}),
		IntegrityViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "cache_integrity_violations_total",
			Help:      "Cache integrity check failures.",
		}),
		AccountErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore",
			Name:      "account_errors_total",
			Help:      "Account balance updates rejected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.CommandsProcessed, m.EventsProcessed, m.OrdersDenied,
			m.FillsApplied, m.FillsDuplicate,
			m.PositionsOpened, m.PositionsClosed,
			m.ReconciledExternal, m.IntegrityViolations, m.AccountErrors,
		)
	}
	return m
}
