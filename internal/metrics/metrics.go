// Package metrics exposes chartd's Prometheus metrics and the /healthz
// status served next to them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signalchart/internal/chart"
)

// Metrics holds all Prometheus metrics for the chart gateway. It
// implements chart.Observer and gateway.PumpMetrics.
type Metrics struct {
	// Ingest
	FramesIngested  *prometheus.CounterVec // labels: source
	FramesDropped   prometheus.Counter
	CoalescedFrames prometheus.Counter

	// Render
	ChartUpdates   prometheus.Counter
	EmptyUpdates   prometheus.Counter
	CandlesDrawn   prometheus.Counter
	MarkersDrawn   prometheus.Counter
	RowsSkipped    prometheus.Counter
	RenderLatency  prometheus.Histogram // frame publish to commands emitted
	ActiveCharts   prometheus.Gauge
	WSClients      prometheus.Gauge
	WSDropsTotal   prometheus.Counter
	PersistErrors  *prometheus.CounterVec // labels: store
	BreakerState   prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	BreakerTrips   prometheus.Counter
	BufferedWrites prometheus.Counter
	AlertsSent     *prometheus.CounterVec // labels: result
	ChartsPruned   prometheus.Counter
}

// New creates the metrics and registers them on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FramesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_frames_ingested_total",
			Help: "Frames accepted into the render ring (by source)",
		}, []string{"source"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_frames_dropped_total",
			Help: "Frames rejected because the render ring was full",
		}),
		CoalescedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_frames_coalesced_total",
			Help: "Frames superseded by a newer frame for the same chart before rendering",
		}),
		ChartUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_chart_updates_total",
			Help: "Chart render passes",
		}),
		EmptyUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_chart_empty_updates_total",
			Help: "Updates ignored because the quote was empty",
		}),
		CandlesDrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_candles_drawn_total",
			Help: "Candles sent to charts",
		}),
		MarkersDrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_markers_drawn_total",
			Help: "Signal markers sent to charts",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_rows_skipped_total",
			Help: "Rows dropped for unparseable dates",
		}),
		RenderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_render_latency_seconds",
			Help:    "Latency from frame publish to chart commands emitted",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		ActiveCharts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_charts_active",
			Help: "Live chart instances",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ws_drops_total",
			Help: "Messages dropped for slow WebSocket clients",
		}),
		PersistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_persist_errors_total",
			Help: "Frame persistence failures (by store)",
		}, []string{"store"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		BufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_redis_buffered_writes_total",
			Help: "Frame writes held locally while the Redis breaker was open",
		}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_alerts_sent_total",
			Help: "Signal alert deliveries (by result)",
		}, []string{"result"}),
		ChartsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_charts_pruned_total",
			Help: "Idle charts destroyed by the retention job",
		}),
	}

	reg.MustRegister(
		m.FramesIngested,
		m.FramesDropped,
		m.CoalescedFrames,
		m.ChartUpdates,
		m.EmptyUpdates,
		m.CandlesDrawn,
		m.MarkersDrawn,
		m.RowsSkipped,
		m.RenderLatency,
		m.ActiveCharts,
		m.WSClients,
		m.WSDropsTotal,
		m.PersistErrors,
		m.BreakerState,
		m.BreakerTrips,
		m.BufferedWrites,
		m.AlertsSent,
		m.ChartsPruned,
	)
	return m
}

// Rendered implements chart.Observer.
func (m *Metrics) Rendered(_ string, s chart.Stats) {
	m.ChartUpdates.Inc()
	m.CandlesDrawn.Add(float64(s.Candles))
	m.MarkersDrawn.Add(float64(s.Markers))
	m.RowsSkipped.Add(float64(s.SkippedRows))
}

// Skipped implements chart.Observer.
func (m *Metrics) Skipped(string) { m.EmptyUpdates.Inc() }

func (m *Metrics) FrameIngested(source string) { m.FramesIngested.WithLabelValues(source).Inc() }
func (m *Metrics) FrameDropped()               { m.FramesDropped.Inc() }
func (m *Metrics) FramesCoalesced(n int)       { m.CoalescedFrames.Add(float64(n)) }
func (m *Metrics) ChartsActive(n int)          { m.ActiveCharts.Set(float64(n)) }
func (m *Metrics) PersistError(store string)   { m.PersistErrors.WithLabelValues(store).Inc() }

// ObserveRenderLatency records one frame's publish-to-render latency.
func (m *Metrics) ObserveRenderLatency(d time.Duration) {
	m.RenderLatency.Observe(d.Seconds())
}

// SetBreakerState records a circuit breaker transition; state uses the
// 0/1/2 encoding of the redis store.
func (m *Metrics) SetBreakerState(state int) {
	m.BreakerState.Set(float64(state))
	if state == 1 {
		m.BreakerTrips.Inc()
	}
}

// AlertSent counts one alert delivery attempt.
func (m *Metrics) AlertSent(err error) {
	if err != nil {
		m.AlertsSent.WithLabelValues("error").Inc()
		return
	}
	m.AlertsSent.WithLabelValues("ok").Inc()
}
