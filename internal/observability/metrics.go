// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for the layout service.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LayoutCollector bundles Prometheus metrics for the layout engine and its
// HTTP surface.
type LayoutCollector struct {
	gatherer prometheus.Gatherer

	// Engine-side instrumentation, driven by the session run loop.
	IterationsTotal  prometheus.Counter
	SnapshotsTotal   prometheus.Counter
	CommandsTotal    *prometheus.CounterVec
	Alpha            prometheus.Gauge
	GraphNodes       prometheus.Gauge
	GraphLinks       prometheus.Gauge
	SettleIterations prometheus.Histogram

	// HTTP surface instrumentation.
	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewLayoutCollector registers layout metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registration is idempotent: already-registered collectors of the same
// shape are reused rather than duplicated.
func NewLayoutCollector(reg prometheus.Registerer) (*LayoutCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	iterations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "layout_iterations_total",
		Help: "Total simulation iterations executed across all inits.",
	}), "layout_iterations_total")
	if err != nil {
		return nil, err
	}
	snapshots, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "layout_snapshots_total",
		Help: "Total position snapshots emitted, including terminal snapshots.",
	}), "layout_snapshots_total")
	if err != nil {
		return nil, err
	}
	commands, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "layout_commands_total",
		Help: "Total control commands applied, labeled by command type.",
	}, []string{"type"}), "layout_commands_total")
	if err != nil {
		return nil, err
	}
	alpha, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "layout_alpha",
		Help: "Current simulation temperature.",
	}), "layout_alpha")
	if err != nil {
		return nil, err
	}
	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "layout_graph_nodes",
		Help: "Node count of the currently loaded graph.",
	}), "layout_graph_nodes")
	if err != nil {
		return nil, err
	}
	links, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "layout_graph_links",
		Help: "Link count of the currently loaded graph.",
	}), "layout_graph_links")
	if err != nil {
		return nil, err
	}
	settle, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "layout_settle_iterations",
		Help:    "Iterations needed to settle, per completed layout run.",
		Buckets: []float64{50, 100, 200, 300, 500, 750, 1000, 1500, 2500},
	}), "layout_settle_iterations")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "layout_http_requests_total",
		Help: "Total handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "layout_http_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "layout_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"}), "layout_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &LayoutCollector{
		gatherer:         gatherer,
		IterationsTotal:  iterations,
		SnapshotsTotal:   snapshots,
		CommandsTotal:    commands,
		Alpha:            alpha,
		GraphNodes:       nodes,
		GraphLinks:       links,
		SettleIterations: settle,
		HTTPRequests:     requests,
		HTTPDurations:    durations,
	}, nil
}

// ObserveIteration records one completed iteration and the alpha it ended at.
func (c *LayoutCollector) ObserveIteration(alpha float64) {
	if c == nil {
		return
	}
	c.IterationsTotal.Inc()
	c.Alpha.Set(alpha)
}

// ObserveSnapshot records one emitted position snapshot.
func (c *LayoutCollector) ObserveSnapshot() {
	if c == nil {
		return
	}
	c.SnapshotsTotal.Inc()
}

// ObserveCommand records one applied control command.
func (c *LayoutCollector) ObserveCommand(commandType string) {
	if c == nil {
		return
	}
	c.CommandsTotal.WithLabelValues(commandType).Inc()
}

// ObserveGraph records the size of a freshly initialized graph.
func (c *LayoutCollector) ObserveGraph(nodes, links int) {
	if c == nil {
		return
	}
	c.GraphNodes.Set(float64(nodes))
	c.GraphLinks.Set(float64(links))
}

// ObserveSettled records the iteration count at which a run settled.
func (c *LayoutCollector) ObserveSettled(iterations int) {
	if c == nil {
		return
	}
	c.SettleIterations.Observe(float64(iterations))
}

// Middleware records request counts and latencies for an HTTP route. The
// route label is the pattern the handler was mounted at, not the raw URL,
// to keep label cardinality bounded.
func (c *LayoutCollector) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
			c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *LayoutCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE streaming keeps working
// behind the metrics middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
