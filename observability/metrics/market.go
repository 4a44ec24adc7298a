package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks trade flow and reserve movements.
type MarketMetrics struct {
	trades           *prometheus.CounterVec
	tradeFailures    *prometheus.CounterVec
	tokensRegistered prometheus.Counter
	reserveInvested  prometheus.Gauge
	donatedTotal     prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			trades: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ideamarket_trades_total",
				Help: "Count of settled trades by side.",
			}, []string{"side"}),
			tradeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ideamarket_trade_failures_total",
				Help: "Count of rejected trades by side.",
			}, []string{"side"}),
			tokensRegistered: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ideamarket_tokens_registered_total",
				Help: "Count of idea tokens registered across all markets.",
			}),
			reserveInvested: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ideamarket_reserve_invested",
				Help: "Collateral value currently held by the reserve pool position.",
			}),
			donatedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ideamarket_donated_total",
				Help: "Outstanding donated collateral claims.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.trades,
			marketRegistry.tradeFailures,
			marketRegistry.tokensRegistered,
			marketRegistry.reserveInvested,
			marketRegistry.donatedTotal,
		)
	})
	return marketRegistry
}

// RecordTrade counts a settled trade on the given side ("buy" or "sell").
func (m *MarketMetrics) RecordTrade(side string) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(side).Inc()
}

// RecordTradeFailure counts a rejected trade on the given side.
func (m *MarketMetrics) RecordTradeFailure(side string) {
	if m == nil {
		return
	}
	m.tradeFailures.WithLabelValues(side).Inc()
}

// RecordTokenRegistered counts a newly listed idea token.
func (m *MarketMetrics) RecordTokenRegistered() {
	if m == nil {
		return
	}
	m.tokensRegistered.Inc()
}

// SetReserveInvested records the reserve's current pool value.
func (m *MarketMetrics) SetReserveInvested(value float64) {
	if m == nil {
		return
	}
	m.reserveInvested.Set(value)
}

// SetDonatedTotal records the outstanding donated claims.
func (m *MarketMetrics) SetDonatedTotal(value float64) {
	if m == nil {
		return
	}
	m.donatedTotal.Set(value)
}
