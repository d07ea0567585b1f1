package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"signalchart/internal/chart"
	"signalchart/internal/logger"
	"signalchart/internal/model"
	"signalchart/internal/ringbuf"
)

// ErrRingFull is returned by Submit when the pump cannot keep up.
var ErrRingFull = errors.New("gateway: frame ring full")

// PumpMetrics receives ingest-side counters. metrics.Metrics implements it.
type PumpMetrics interface {
	FrameIngested(source string)
	FrameDropped()
	FramesCoalesced(n int)
	ChartsActive(n int)
	PersistError(store string)
	ObserveRenderLatency(d time.Duration)
}

// SignalWatcher is told about every rendered signals-mode frame.
// notification.Watcher implements it.
type SignalWatcher interface {
	Observe(f model.Frame) int
	Forget(chart string)
}

// PumpConfig wires a FramePump.
type PumpConfig struct {
	RingSize int
	Options  chart.Options
	// Modes maps chart id to overlay mode for charts known at startup.
	Modes    map[string]string
	Writers  map[string]model.FrameWriter // store name → writer
	Observer chart.Observer
	Metrics  PumpMetrics
	Watcher  SignalWatcher // optional
}

// FramePump moves frames from producers to chart instances. Producers call
// Submit; a single Run goroutine drains the ring, keeps the newest frame per
// chart and renders it.
type FramePump struct {
	hub      *Hub
	ring     *ringbuf.Ring
	pushMu   sync.Mutex
	wake     chan struct{}
	opts     chart.Options
	observer chart.Observer
	writers  map[string]model.FrameWriter
	metrics  PumpMetrics
	watcher  SignalWatcher

	mu        sync.Mutex
	modes     map[string]string
	instances map[string]*chart.Instance
}

// NewFramePump creates a pump rendering into hub's Library and registers the
// containers named in cfg.Modes.
func NewFramePump(hub *Hub, cfg PumpConfig) *FramePump {
	if cfg.RingSize <= 0 {
		cfg.RingSize = 1024
	}
	p := &FramePump{
		hub:       hub,
		ring:      ringbuf.New(cfg.RingSize),
		wake:      make(chan struct{}, 1),
		opts:      cfg.Options,
		observer:  cfg.Observer,
		writers:   cfg.Writers,
		metrics:   cfg.Metrics,
		watcher:   cfg.Watcher,
		modes:     make(map[string]string),
		instances: make(map[string]*chart.Instance),
	}
	for id, mode := range cfg.Modes {
		p.modes[id] = mode
		hub.Library.Register(id, 0)
	}
	return p
}

// Submit queues a frame. Safe for concurrent producers.
func (p *FramePump) Submit(f model.Frame, source string) error {
	if f.Chart == "" {
		return fmt.Errorf("submit frame: chart id is required")
	}
	p.pushMu.Lock()
	ok := p.ring.Push(f)
	p.pushMu.Unlock()
	if !ok {
		if p.metrics != nil {
			p.metrics.FrameDropped()
		}
		return ErrRingFull
	}
	if p.metrics != nil {
		p.metrics.FrameIngested(source)
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drains the ring until ctx is cancelled.
func (p *FramePump) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
		frames, superseded := p.ring.DrainLatest()
		if superseded > 0 && p.metrics != nil {
			p.metrics.FramesCoalesced(superseded)
		}
		for _, f := range frames {
			if err := p.Apply(ctx, f); err != nil {
				slog.Error("[gateway] apply frame failed", slog.String("chart", f.Chart), slog.Any("err", err))
			}
		}
	}
}

// Apply renders f, creating the chart on its first frame, then persists it.
// Persistence errors are logged and never fail the render.
func (p *FramePump) Apply(ctx context.Context, f model.Frame) error {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(f.Chart, time.Now()))

	inst, created, err := p.instance(f)
	if err != nil {
		return err
	}
	if !created {
		if err := inst.Update(f.Quote, f.Buy, f.Sell); err != nil {
			return fmt.Errorf("update chart %s: %w", f.Chart, err)
		}
	}
	if f.TS > 0 {
		lag := time.Since(time.UnixMilli(f.TS))
		if p.hub.Latency != nil {
			p.hub.Latency.Record(float64(lag.Microseconds()) / 1000.0)
		}
		if p.metrics != nil && lag >= 0 {
			p.metrics.ObserveRenderLatency(lag)
		}
	}
	if f.Quote.Empty() {
		return nil
	}
	if p.watcher != nil && p.overlay(f.Chart).Name == chart.SignalOverlays().Name {
		p.watcher.Observe(f)
	}

	for name, w := range p.writers {
		if err := w.SaveFrame(ctx, f); err != nil {
			if p.metrics != nil {
				p.metrics.PersistError(name)
			}
			slog.Warn("[gateway] persist frame failed",
				append(logger.LogWithTrace(ctx), slog.String("store", name), slog.Any("err", err))...)
		}
	}
	return nil
}

// instance returns the live instance of f.Chart, creating it (and its
// container) with f's data when missing. created reports that the returned
// instance already rendered f.
func (p *FramePump) instance(f model.Frame) (*chart.Instance, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if inst, ok := p.instances[f.Chart]; ok {
		return inst, false, nil
	}

	mode, known := p.modes[f.Chart]
	if !known {
		mode = f.Mode
		p.modes[f.Chart] = mode
		p.hub.Library.Register(f.Chart, 0)
	}
	adapter := chart.NewAdapter(p.hub.Library, p.hub.Library,
		chart.WithOptions(p.opts),
		chart.WithOverlay(chart.OverlayByName(mode)),
		chart.WithObserver(p.observer),
	)
	inst, err := adapter.Create(f.Chart, f.Quote, f.Buy, f.Sell)
	if err != nil {
		return nil, false, fmt.Errorf("create chart %s: %w", f.Chart, err)
	}
	p.instances[f.Chart] = inst
	if p.metrics != nil {
		p.metrics.ChartsActive(len(p.instances))
	}
	slog.Info("[gateway] chart created", slog.String("chart", f.Chart), slog.String("mode", mode))
	return inst, true, nil
}

func (p *FramePump) overlay(id string) chart.Overlay {
	p.mu.Lock()
	defer p.mu.Unlock()
	return chart.OverlayByName(p.modes[id])
}

// Destroy removes a chart and forgets its persisted frame. It reports
// whether the chart existed.
func (p *FramePump) Destroy(ctx context.Context, id string) bool {
	p.mu.Lock()
	inst, ok := p.instances[id]
	delete(p.instances, id)
	n := len(p.instances)
	p.mu.Unlock()
	if !ok {
		return false
	}

	inst.Destroy()
	if p.watcher != nil {
		p.watcher.Forget(id)
	}
	if p.metrics != nil {
		p.metrics.ChartsActive(n)
	}
	for name, w := range p.writers {
		if err := w.DeleteFrame(ctx, id); err != nil {
			if p.metrics != nil {
				p.metrics.PersistError(name)
			}
			slog.Warn("[gateway] delete frame failed", slog.String("store", name), slog.String("chart", id), slog.Any("err", err))
		}
	}
	slog.Info("[gateway] chart destroyed", slog.String("chart", id))
	return true
}

// Prune destroys every chart whose last render is older than before and
// returns their ids. Charts that never rendered a bar are kept.
func (p *FramePump) Prune(ctx context.Context, before time.Time) []string {
	var stale []string
	for _, info := range p.Charts() {
		if !info.UpdatedAt.IsZero() && info.UpdatedAt.Before(before) {
			stale = append(stale, info.ID)
		}
	}
	pruned := stale[:0]
	for _, id := range stale {
		if p.Destroy(ctx, id) {
			pruned = append(pruned, id)
		}
	}
	return pruned
}

// Charts summarizes the live charts, sorted by id.
func (p *FramePump) Charts() []model.ChartInfo {
	p.mu.Lock()
	out := make([]model.ChartInfo, 0, len(p.instances))
	for _, inst := range p.instances {
		out = append(out, inst.Info())
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore renders every frame held by r without persisting them again.
func (p *FramePump) Restore(ctx context.Context, r model.FrameReader) (int, error) {
	frames, err := r.LoadFrames(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore frames: %w", err)
	}
	n := 0
	for _, f := range frames {
		_, created, err := p.instance(f)
		if err != nil {
			slog.Warn("[gateway] restore chart failed", slog.String("chart", f.Chart), slog.Any("err", err))
			continue
		}
		if created {
			n++
		}
	}
	return n, nil
}
