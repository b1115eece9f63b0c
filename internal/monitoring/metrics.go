package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments
type Metrics struct {
	DecisionsTotal    *prometheus.CounterVec // verdict
	ViolationsTotal   *prometheus.CounterVec // check
	SizingOutcomes    *prometheus.CounterVec // outcome
	StakeUSD          prometheus.Histogram
	OrderResults      *prometheus.CounterVec // strategy, status
	CycleDuration     prometheus.Histogram
	HeatLevel         prometheus.Gauge // 0=cool 1=warm 2=hot 3=critical
	DrawdownPct       prometheus.Gauge
	EquityUSD         prometheus.Gauge
	AvailableUSD      prometheus.Gauge
	OpenPositions     prometheus.Gauge
	KillSwitchEngaged prometheus.Gauge
}

// NewMetrics registers the engine metrics with the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pmgate_risk_decisions_total",
			Help: "Risk gate decisions, by verdict",
		}, []string{"verdict"}),
		ViolationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pmgate_risk_violations_total",
			Help: "Failed risk checks, by check name",
		}, []string{"check"}),
		SizingOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pmgate_sizing_outcomes_total",
			Help: "Sizing outcomes, by outcome",
		}, []string{"outcome"}),
		StakeUSD: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "pmgate_stake_usd",
			Help:    "Sized stakes in USD",
			Buckets: prometheus.ExponentialBuckets(1, 2.5, 10),
		}),
		OrderResults: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pmgate_order_results_total",
			Help: "Terminal order results, by strategy and status",
		}, []string{"strategy", "status"}),
		CycleDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "pmgate_cycle_duration_seconds",
			Help:    "Decision cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		HeatLevel: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pmgate_heat_level",
			Help: "Drawdown heat level (0=cool 1=warm 2=hot 3=critical)",
		}),
		DrawdownPct: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pmgate_drawdown_pct",
			Help: "Current drawdown from peak equity",
		}),
		EquityUSD: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pmgate_equity_usd",
			Help: "Current equity in USD",
		}),
		AvailableUSD: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pmgate_available_capital_usd",
			Help: "Available capital in USD",
		}),
		OpenPositions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pmgate_open_positions",
			Help: "Number of open positions",
		}),
		KillSwitchEngaged: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pmgate_kill_switch_engaged",
			Help: "Whether the manual kill switch is engaged",
		}),
	}
}

// heatValue maps heat level names to the gauge encoding
var heatValue = map[string]float64{
	"cool":     0,
	"warm":     1,
	"hot":      2,
	"critical": 3,
}

// SetHeatLevel updates the heat-level gauge
func (m *Metrics) SetHeatLevel(level string) {
	m.HeatLevel.Set(heatValue[level])
}
