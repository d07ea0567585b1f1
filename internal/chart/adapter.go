package chart

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signalchart/internal/model"
)

// DefaultContainerID is used when Create is given an empty container id.
const DefaultContainerID = "chart"

var (
	// ErrContainerNotFound means the container element does not exist.
	// Rendering into a missing container is a caller bug, so Create fails
	// instead of creating one.
	ErrContainerNotFound = errors.New("chart: container not found")

	// ErrDestroyed is returned by Update once the instance has been destroyed.
	ErrDestroyed = errors.New("chart: instance destroyed")
)

// Stats describes one render pass.
type Stats struct {
	Candles     int
	BuyPoints   int
	SellPoints  int
	Markers     int
	SkippedRows int // rows dropped for unparseable dates
}

// Observer is notified after every Update. Implementations must not block.
type Observer interface {
	Rendered(chart string, s Stats)
	Skipped(chart string)
}

// Adapter creates chart instances on a Library.
type Adapter struct {
	lib      Library
	doc      Document
	opts     Options
	overlay  Overlay
	observer Observer
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithOptions sets the chart layout.
func WithOptions(o Options) Option {
	return func(a *Adapter) { a.opts = o }
}

// WithOverlay sets how the two signal series are drawn.
func WithOverlay(o Overlay) Option {
	return func(a *Adapter) { a.overlay = o }
}

// WithObserver registers a render observer.
func WithObserver(o Observer) Option {
	return func(a *Adapter) { a.observer = o }
}

// NewAdapter returns an Adapter with default layout and signal overlays.
func NewAdapter(lib Library, doc Document, opts ...Option) *Adapter {
	a := &Adapter{
		lib:     lib,
		doc:     doc,
		opts:    DefaultOptions(),
		overlay: SignalOverlays(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Create clears the container, builds a candlestick series plus the buy and
// sell series, and renders the given data. An empty quote leaves the new
// chart blank.
func (a *Adapter) Create(containerID string, q *model.Quote, buy, sell []model.Indicator) (*Instance, error) {
	if containerID == "" {
		containerID = DefaultContainerID
	}
	c, ok := a.doc.ElementByID(containerID)
	if !ok {
		return nil, fmt.Errorf("%w: #%s", ErrContainerNotFound, containerID)
	}
	c.Clear()

	h := a.lib.CreateChart(c, a.opts.withWidth(c))
	candleOpts := CandlestickOptions{Name: candleSeriesName}
	var precision int64
	if q != nil {
		precision = q.Precision
		candleOpts.PriceFormat = PriceFormatFor(precision)
	}

	inst := &Instance{
		id:        containerID,
		overlay:   a.overlay,
		observer:  a.observer,
		handle:    h,
		candles:   h.AddCandlestickSeries(candleOpts),
		buy:       h.AddLineSeries(a.overlay.Buy.Line),
		sell:      h.AddLineSeries(a.overlay.Sell.Line),
		precision: precision,
	}
	if err := inst.Update(q, buy, sell); err != nil {
		h.Remove()
		return nil, fmt.Errorf("render #%s: %w", containerID, err)
	}
	return inst, nil
}

const candleSeriesName = "candles"

// Instance is one rendered chart. It is owned by the caller of Create and
// must be destroyed before its container is discarded. Safe for concurrent
// use; concurrent updates serialize and the last one wins.
type Instance struct {
	id       string
	overlay  Overlay
	observer Observer

	mu        sync.Mutex
	handle    Handle
	candles   CandlestickSeries
	buy       LineSeries
	sell      LineSeries
	destroyed bool
	precision int64 // price format currently applied to candles
	symbol    string
	bars      int
	updatedAt time.Time
}

// ID returns the container id the chart lives in.
func (i *Instance) ID() string { return i.id }

// Update replaces all series data and re-applies the candle price format
// when the quote precision changed. A nil or empty quote is a no-op.
func (i *Instance) Update(q *model.Quote, buy, sell []model.Indicator) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.destroyed {
		return ErrDestroyed
	}
	if q.Empty() {
		if i.observer != nil {
			i.observer.Skipped(i.id)
		}
		return nil
	}

	if q.Precision != i.precision {
		pf := PriceFormatFor(q.Precision)
		if pf == nil {
			pf = &defaultPriceFormat
		}
		i.candles.ApplyOptions(CandlestickOptions{Name: candleSeriesName, PriceFormat: pf})
		i.precision = q.Precision
	}

	candles, skipped := BuildCandles(q)
	buyLine, buyMarkers, buySkipped := BuildSignals(buy, i.overlay.Buy.Marker)
	sellLine, sellMarkers, sellSkipped := BuildSignals(sell, i.overlay.Sell.Marker)

	i.candles.SetData(candles)
	i.buy.SetData(buyLine)
	i.sell.SetData(sellLine)
	i.buy.SetMarkers(buyMarkers)
	i.sell.SetMarkers(sellMarkers)

	i.symbol = q.Symbol
	i.bars = len(candles)
	i.updatedAt = time.Now().UTC()

	st := Stats{
		Candles:     len(candles),
		BuyPoints:   len(buyLine),
		SellPoints:  len(sellLine),
		Markers:     len(buyMarkers) + len(sellMarkers),
		SkippedRows: skipped + buySkipped + sellSkipped,
	}
	if st.SkippedRows > 0 {
		slog.Warn("[chart] dropped rows with unparseable dates",
			slog.String("chart", i.id), slog.Int("rows", st.SkippedRows))
	}
	if i.observer != nil {
		i.observer.Rendered(i.id, st)
	}
	return nil
}

// Destroy releases the chart. Calling it again is a no-op.
func (i *Instance) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return
	}
	i.handle.Remove()
	i.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (i *Instance) Destroyed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.destroyed
}

// Info summarizes the last render.
func (i *Instance) Info() model.ChartInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	return model.ChartInfo{ID: i.id, Symbol: i.symbol, Bars: i.bars, UpdatedAt: i.updatedAt}
}
