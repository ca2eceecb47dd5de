package casper

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/toruslabs/casper-provider-go/pkg/jsonrpc"
)

// Metrics contains all Prometheus metrics for the provider.
type Metrics struct {
	// RPC traffic metrics
	RPCRequests   *prometheus.CounterVec
	Notifications *prometheus.CounterVec

	// Lifecycle metrics
	EventsEmitted *prometheus.CounterVec
	Connected     prometheus.Gauge
	Initialized   prometheus.Gauge

	// Account metrics
	AccountsExposed prometheus.Gauge
}

// NewMetrics initializes and registers Prometheus metrics
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers Prometheus metrics with a custom registry
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	metrics := &Metrics{
		RPCRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casper_provider_rpc_requests_total",
				Help: "The total number of RPC requests by method and outcome",
			},
			[]string{"method", "status"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casper_provider_notifications_total",
				Help: "The total number of wallet notifications received by method",
			},
			[]string{"method"},
		),
		EventsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casper_provider_events_total",
				Help: "The total number of lifecycle events emitted by event name",
			},
			[]string{"event"},
		),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casper_provider_connected",
			Help: "Whether the provider currently holds a settled chain identity",
		}),
		Initialized: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casper_provider_initialized",
			Help: "Whether the provider finished its initial state fetch",
		}),
		AccountsExposed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casper_provider_accounts_exposed",
			Help: "The number of accounts currently exposed by the wallet",
		}),
	}

	return metrics
}

// RecordMetricsPeriodically refreshes the state gauges from the provider
// until ctx is canceled. Counters are updated inline by the middleware and
// event hooks; only gauge state needs polling.
func (m *Metrics) RecordMetricsPeriodically(ctx context.Context, provider *Provider) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	m.UpdateStateMetrics(provider)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateStateMetrics(provider)
		}
	}
}

// UpdateStateMetrics sets the state gauges from one provider snapshot.
func (m *Metrics) UpdateStateMetrics(provider *Provider) {
	state := provider.State()

	m.Connected.Set(boolToGauge(state.IsConnected))
	m.Initialized.Set(boolToGauge(state.Initialized))
	m.AccountsExposed.Set(float64(len(state.Accounts)))
}

func boolToGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// metricsMiddleware counts every engine call by method and outcome:
// "success" for a result, "error" for a wire error, "failure" when the call
// never settled.
func metricsMiddleware(m *Metrics) jsonrpc.Handler {
	return func(c *jsonrpc.Context) {
		c.Next()

		status := "success"
		switch {
		case c.Err != nil:
			status = "failure"
		case c.Response != nil && c.Response.Error != nil:
			status = "error"
		}
		m.RPCRequests.WithLabelValues(c.Request.Method, status).Inc()
	}
}

// watchEventsForMetrics counts lifecycle events as they fire.
func watchEventsForMetrics(emitter *EventEmitter, m *Metrics) {
	for _, event := range []Event{
		EventConnect,
		EventDisconnect,
		EventAccountsChanged,
		EventChainChanged,
		EventInitialized,
	} {
		name := string(event)
		emitter.On(event, func(any) {
			m.EventsEmitted.WithLabelValues(name).Inc()
		})
	}
}
