package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	DepositsTotal     *prometheus.CounterVec
	WithdrawalsTotal  *prometheus.CounterVec
	OrdersCreated     *prometheus.CounterVec
	OrdersCancelled   *prometheus.CounterVec
	TradesTotal       *prometheus.CounterVec
	FeeCollected      *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		DepositsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_deposits_total",
				Help: "Total deposit operations.",
			},
			[]string{"asset", "status"},
		),
		WithdrawalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_withdrawals_total",
				Help: "Total withdrawal operations.",
			},
			[]string{"asset", "status"},
		),
		OrdersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_orders_created_total",
				Help: "Total orders created.",
			},
			[]string{"status"},
		),
		OrdersCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_orders_cancelled_total",
				Help: "Total orders cancelled.",
			},
			[]string{"status"},
		),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_trades_total",
				Help: "Total fill attempts.",
			},
			[]string{"status"},
		),
		FeeCollected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_fee_collected_total",
				Help: "Fee units collected per asset.",
			},
			[]string{"asset"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_operation_duration_seconds",
				Help:    "Engine operation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.DepositsTotal,
		m.WithdrawalsTotal,
		m.OrdersCreated,
		m.OrdersCancelled,
		m.TradesTotal,
		m.FeeCollected,
		m.OperationDuration,
	)
	return m
}

func (m *Metrics) observeOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) incDeposit(asset, status string) {
	if m == nil {
		return
	}
	m.DepositsTotal.WithLabelValues(asset, status).Inc()
}

func (m *Metrics) incWithdrawal(asset, status string) {
	if m == nil {
		return
	}
	m.WithdrawalsTotal.WithLabelValues(asset, status).Inc()
}

func (m *Metrics) incOrderCreated(status string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) incOrderCancelled(status string) {
	if m == nil {
		return
	}
	m.OrdersCancelled.WithLabelValues(status).Inc()
}

func (m *Metrics) incTrade(status string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) addFee(asset string, amount uint64) {
	if m == nil {
		return
	}
	m.FeeCollected.WithLabelValues(asset).Add(float64(amount))
}
