package guards

import "github.com/prometheus/client_golang/prometheus"

var (
	metricOrdersAttempted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "tradegate_orders_attempted_total", Help: "Orders submitted to the gateway"})
	metricOrdersPlaced     = prometheus.NewCounter(prometheus.CounterOpts{Name: "tradegate_orders_placed_total", Help: "Orders accepted by the exchange"})
	metricOrdersFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "tradegate_orders_failed_total", Help: "Orders the exchange rejected or errored on"})
	metricOrdersBlocked    = prometheus.NewCounter(prometheus.CounterOpts{Name: "tradegate_orders_blocked_total", Help: "Orders blocked by a safety check error"})
	metricOrdersSuppressed = prometheus.NewCounter(prometheus.CounterOpts{Name: "tradegate_orders_suppressed_total", Help: "Orders refused by rate limit or circuit breaker"})
	metricOrdersUnrecorded = prometheus.NewCounter(prometheus.CounterOpts{Name: "tradegate_orders_unrecorded_total", Help: "Accepted orders whose daily state could not be persisted"})
	metricSafetyWarnings   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tradegate_safety_warnings_total", Help: "Safety warnings raised, by operation"}, []string{"op"})
	metricBreakerState     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tradegate_breaker_state", Help: "0=closed, 1=half_open, 2=open"})
	metricRateWindow       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tradegate_orders_in_last_minute", Help: "Orders counted in the current minute window"})
	metricDailyPnL         = prometheus.NewGauge(prometheus.GaugeOpts{Name: "tradegate_daily_realized_pnl", Help: "Realized P&L for the current trading day"})
)

func init() {
	prometheus.MustRegister(
		metricOrdersAttempted, metricOrdersPlaced, metricOrdersFailed, metricOrdersBlocked,
		metricOrdersSuppressed, metricOrdersUnrecorded, metricSafetyWarnings,
		metricBreakerState, metricRateWindow, metricDailyPnL,
	)
	metricBreakerState.Set(0)
}
