package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersCreated counts accepted orders by symbol and side
var OrdersCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pincex_orders_created_total",
		Help: "Total number of orders accepted into the book",
	},
	[]string{"symbol", "side"},
)

// OrdersCancelled counts cancelled orders by symbol and side
var OrdersCancelled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pincex_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	},
	[]string{"symbol", "side"},
)

// OrdersRejected counts orders refused at creation, by reason
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pincex_orders_rejected_total",
		Help: "Total number of orders rejected at creation",
	},
	[]string{"reason"},
)

// Trade execution metrics
var (
	TradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pincex_trades_executed_total",
			Help: "Total number of executed trades",
		},
		[]string{"symbol"},
	)

	CommissionCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pincex_commission_collected_total",
			Help: "Commission collected in quote currency",
		},
		[]string{"symbol"},
	)
)

// Matching loop metrics
var (
	MatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pincex_match_loop_latency_seconds",
			Help:    "Latency in seconds of one matching loop for an incoming order",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)

	MatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pincex_match_errors_total",
			Help: "Matching loops aborted by an error",
		},
		[]string{"symbol"},
	)

	TriggerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pincex_match_queue_depth",
			Help: "Pending match jobs per symbol",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(OrdersCreated, OrdersCancelled, OrdersRejected)
	prometheus.MustRegister(TradesExecuted, CommissionCollected)
	prometheus.MustRegister(MatchLatency, MatchErrors, TriggerQueueDepth)
}
