// Package prom exposes engine activity as Prometheus metrics.
package prom

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petal-labs/behaveflow/runtime"
)

// EngineSource is the live engine state sampled at scrape time.
// runtime.Engine satisfies it.
type EngineSource interface {
	QueuedFibers() int
	PendingAsync() []string
	ExecutionSteps() int
}

// Collector records engine events into Prometheus metrics on its own
// registry.
type Collector struct {
	registry *prometheus.Registry

	nodeTriggers *prometheus.CounterVec
	nodeFailures *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	fibers       *prometheus.CounterVec

	mu     sync.RWMutex
	source EngineSource
}

// NewCollector creates a collector with metrics under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		nodeTriggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_triggers_total",
				Help:      "Total number of completed node triggers",
			},
			[]string{"type"},
		),
		nodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_failures_total",
				Help:      "Total number of node errors",
			},
			[]string{"type"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_duration_seconds",
				Help:      "Time from node trigger to completion",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 10, 6),
			},
			[]string{"node_type"},
		),
		fibers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fibers_total",
				Help:      "Total number of fibers that ran to an end",
			},
			[]string{"outcome"},
		),
	}

	c.registry.MustRegister(
		c.nodeTriggers,
		c.nodeFailures,
		c.nodeDuration,
		c.fibers,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_fibers",
			Help:      "Fibers waiting to run",
		}, func() float64 {
			return c.sample(func(s EngineSource) float64 { return float64(s.QueuedFibers()) })
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_async_nodes",
			Help:      "Async nodes waiting to finish",
		}, func() float64 {
			return c.sample(func(s EngineSource) float64 { return float64(len(s.PendingAsync())) })
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_steps_total",
			Help:      "Execution steps taken by the engine",
		}, func() float64 {
			return c.sample(func(s EngineSource) float64 { return float64(s.ExecutionSteps()) })
		}),
	)
	return c
}

// Observe sets the engine sampled by the gauges.
func (c *Collector) Observe(src EngineSource) {
	c.mu.Lock()
	c.source = src
	c.mu.Unlock()
}

func (c *Collector) sample(fn func(EngineSource) float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.source == nil {
		return 0
	}
	return fn(c.source)
}

// Handle records an engine event. It has the runtime.EventHandler shape.
func (c *Collector) Handle(e runtime.Event) {
	switch e.Kind {
	case runtime.EventNodeFinished:
		c.nodeTriggers.WithLabelValues(e.TypeName).Inc()
		c.nodeDuration.WithLabelValues(string(e.NodeType)).Observe(e.Elapsed.Seconds())
	case runtime.EventNodeFailed:
		c.nodeFailures.WithLabelValues(e.TypeName).Inc()
	case runtime.EventFiberCompleted:
		c.fibers.WithLabelValues("completed").Inc()
	case runtime.EventFiberFailed:
		c.fibers.WithLabelValues("failed").Inc()
	}
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Summary returns the total of every counter, keyed by metric name.
func (c *Collector) Summary() (map[string]float64, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()+"_count"] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
