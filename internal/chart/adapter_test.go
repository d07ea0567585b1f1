package chart

import (
	"errors"
	"sync"
	"testing"

	"signalchart/internal/model"
)

// ── in-memory chart library ──

type fakeContainer struct {
	id      string
	width   int
	cleared int
}

func (c *fakeContainer) ID() string { return c.id }
func (c *fakeContainer) Width() int { return c.width }
func (c *fakeContainer) Clear()     { c.cleared++ }

type fakeDoc map[string]*fakeContainer

func (d fakeDoc) ElementByID(id string) (Container, bool) {
	c, ok := d[id]
	if !ok {
		return nil, false
	}
	return c, true
}

type fakeCandles struct {
	name    string
	data    []model.CandlestickData
	calls   int
	applied []CandlestickOptions
}

func (s *fakeCandles) SetData(d []model.CandlestickData) { s.data = d; s.calls++ }
func (s *fakeCandles) ApplyOptions(o CandlestickOptions) { s.applied = append(s.applied, o) }

type fakeLine struct {
	opts    LineOptions
	data    []model.LineData
	markers []model.SeriesMarker
}

func (s *fakeLine) SetData(d []model.LineData)        { s.data = d }
func (s *fakeLine) SetMarkers(m []model.SeriesMarker) { s.markers = m }

type fakeHandle struct {
	opts    Options
	candles *fakeCandles
	lines   []*fakeLine
	removed int
}

func (h *fakeHandle) AddCandlestickSeries(o CandlestickOptions) CandlestickSeries {
	h.candles = &fakeCandles{name: o.Name}
	return h.candles
}

func (h *fakeHandle) AddLineSeries(o LineOptions) LineSeries {
	l := &fakeLine{opts: o}
	h.lines = append(h.lines, l)
	return l
}

func (h *fakeHandle) Remove() { h.removed++ }

type fakeLib struct {
	handles []*fakeHandle
}

func (l *fakeLib) CreateChart(c Container, opts Options) Handle {
	h := &fakeHandle{opts: opts}
	l.handles = append(l.handles, h)
	return h
}

type countingObserver struct {
	mu       sync.Mutex
	rendered []Stats
	skipped  int
}

func (o *countingObserver) Rendered(_ string, s Stats) {
	o.mu.Lock()
	o.rendered = append(o.rendered, s)
	o.mu.Unlock()
}

func (o *countingObserver) Skipped(string) {
	o.mu.Lock()
	o.skipped++
	o.mu.Unlock()
}

func newTestAdapter(opts ...Option) (*Adapter, *fakeLib, fakeDoc) {
	lib := &fakeLib{}
	doc := fakeDoc{"chart": {id: "chart", width: 700}, "other": {id: "other"}}
	return NewAdapter(lib, doc, opts...), lib, doc
}

func sampleQuote() *model.Quote {
	return &model.Quote{
		Symbol:    "BTC-USD",
		Precision: 2,
		Date:      []string{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z"},
		Open:      []float64{1, 2, 3},
		High:      []float64{2, 3, 4},
		Low:       []float64{0.5, 1.5, 2.5},
		Close:     []float64{1.5, 2.5, 3.5},
		Volume:    []float64{10, 20, 30},
	}
}

// ── tests ──

func TestCreate_DefaultContainer(t *testing.T) {
	a, lib, doc := newTestAdapter()

	inst, err := a.Create("", sampleQuote(), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inst.ID() != "chart" {
		t.Errorf("ID = %q, want chart", inst.ID())
	}
	if doc["chart"].cleared != 1 {
		t.Errorf("container cleared %d times, want 1", doc["chart"].cleared)
	}
	if len(lib.handles) != 1 {
		t.Fatalf("expected 1 chart, got %d", len(lib.handles))
	}
	h := lib.handles[0]
	if h.opts.Width != 700 {
		t.Errorf("width = %d, want container width 700", h.opts.Width)
	}
	if h.opts.Height != 500 {
		t.Errorf("height = %d, want 500", h.opts.Height)
	}
	if len(h.lines) != 2 {
		t.Fatalf("expected 2 line series, got %d", len(h.lines))
	}
	if len(h.candles.data) != 3 {
		t.Errorf("candles = %d, want 3", len(h.candles.data))
	}
}

func TestCreate_MissingContainer(t *testing.T) {
	a, lib, _ := newTestAdapter()

	_, err := a.Create("nope", sampleQuote(), nil, nil)
	if !errors.Is(err, ErrContainerNotFound) {
		t.Fatalf("expected ErrContainerNotFound, got %v", err)
	}
	if len(lib.handles) != 0 {
		t.Error("no chart should be created for a missing container")
	}
}

func TestCreate_SingleBarExample(t *testing.T) {
	a, lib, _ := newTestAdapter()
	q := &model.Quote{
		Date:  []string{"2024-01-01T00:00:00Z"},
		Open:  []float64{1},
		High:  []float64{2},
		Low:   []float64{0.5},
		Close: []float64{1.5},
	}
	if _, err := a.Create("chart", q, nil, nil); err != nil {
		t.Fatal(err)
	}
	got := lib.handles[0].candles.data
	want := model.CandlestickData{Time: 1704067200, Open: 1, High: 2, Low: 0.5, Close: 1.5}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("candles = %+v, want [%+v]", got, want)
	}
}

func TestUpdate_SignalsAndMarkers(t *testing.T) {
	a, lib, _ := newTestAdapter()
	buy := []model.Indicator{
		{Date: "2024-01-01T00:00:00Z", Value: 0},
		{Date: "2024-01-02T00:00:00Z", Value: 1.5},
	}
	sell := []model.Indicator{
		{Date: "2024-01-03T00:00:00Z", Value: 3.9},
		{Date: "2024-01-02T00:00:00Z", Value: 0},
	}

	if _, err := a.Create("chart", sampleQuote(), buy, sell); err != nil {
		t.Fatal(err)
	}
	h := lib.handles[0]
	buyLine, sellLine := h.lines[0], h.lines[1]

	if len(buyLine.data) != 1 || buyLine.data[0].Value != 1.5 || buyLine.data[0].Time != 1704153600 {
		t.Errorf("buy line = %+v", buyLine.data)
	}
	if len(buyLine.markers) != 1 {
		t.Fatalf("buy markers = %d, want 1", len(buyLine.markers))
	}
	bm := buyLine.markers[0]
	if bm.Position != model.PositionBelowBar || bm.Color != "#008000" || bm.Shape != model.ShapeArrowUp {
		t.Errorf("buy marker = %+v", bm)
	}

	if len(sellLine.data) != 1 || sellLine.data[0].Value != 3.9 {
		t.Errorf("sell line = %+v", sellLine.data)
	}
	if len(sellLine.markers) != 1 {
		t.Fatalf("sell markers = %d, want 1", len(sellLine.markers))
	}
	sm := sellLine.markers[0]
	if sm.Position != model.PositionAboveBar || sm.Color != "#FF0000" || sm.Shape != model.ShapeArrowDown {
		t.Errorf("sell marker = %+v", sm)
	}

	if buyLine.opts.Color != transparent || buyLine.opts.LastValueVisible || buyLine.opts.PriceLineVisible {
		t.Errorf("signal line should be hidden: %+v", buyLine.opts)
	}
}

func TestUpdate_EmptyQuoteIsNoop(t *testing.T) {
	obs := &countingObserver{}
	a, lib, _ := newTestAdapter(WithObserver(obs))

	inst, err := a.Create("chart", sampleQuote(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := lib.handles[0]
	before := h.candles.calls

	for _, q := range []*model.Quote{nil, {}, {Symbol: "X", Open: []float64{1}}} {
		if err := inst.Update(q, []model.Indicator{{Date: "2024-01-01", Value: 1}}, nil); err != nil {
			t.Errorf("Update(empty) returned %v", err)
		}
	}

	if h.candles.calls != before {
		t.Errorf("empty update touched candles: %d calls, want %d", h.candles.calls, before)
	}
	if len(h.candles.data) != 3 {
		t.Errorf("previous candles lost: %d", len(h.candles.data))
	}
	if len(h.lines[0].data) != 0 {
		t.Errorf("empty update rendered signals: %+v", h.lines[0].data)
	}
	if obs.skipped != 3 {
		t.Errorf("skipped = %d, want 3", obs.skipped)
	}
	if len(obs.rendered) != 1 {
		t.Errorf("rendered = %d, want 1 (initial)", len(obs.rendered))
	}
}

func TestUpdate_ReplacesWholesale(t *testing.T) {
	a, lib, _ := newTestAdapter()
	inst, _ := a.Create("chart", sampleQuote(), []model.Indicator{{Date: "2024-01-01T00:00:00Z", Value: 1}}, nil)

	q := &model.Quote{
		Date:  []string{"2024-02-01T00:00:00Z"},
		Open:  []float64{5},
		High:  []float64{6},
		Low:   []float64{4},
		Close: []float64{5.5},
	}
	if err := inst.Update(q, nil, nil); err != nil {
		t.Fatal(err)
	}
	h := lib.handles[0]
	if len(h.candles.data) != 1 || h.candles.data[0].Open != 5 {
		t.Errorf("candles not replaced: %+v", h.candles.data)
	}
	if len(h.lines[0].data) != 0 || len(h.lines[0].markers) != 0 {
		t.Errorf("stale buy signals remain: %+v %+v", h.lines[0].data, h.lines[0].markers)
	}
	if info := inst.Info(); info.Bars != 1 {
		t.Errorf("Info().Bars = %d, want 1", info.Bars)
	}
}

func TestDestroy_ThenUpdate(t *testing.T) {
	a, lib, _ := newTestAdapter()
	inst, _ := a.Create("chart", sampleQuote(), nil, nil)

	inst.Destroy()
	inst.Destroy()

	h := lib.handles[0]
	if h.removed != 1 {
		t.Errorf("Remove called %d times, want 1", h.removed)
	}
	if !inst.Destroyed() {
		t.Error("expected Destroyed() = true")
	}
	calls := h.candles.calls
	if err := inst.Update(sampleQuote(), nil, nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Update after Destroy = %v, want ErrDestroyed", err)
	}
	if h.candles.calls != calls {
		t.Error("Update after Destroy rendered data")
	}
}

func TestUpdate_Concurrent(t *testing.T) {
	a, _, _ := newTestAdapter()
	inst, _ := a.Create("chart", sampleQuote(), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst.Update(sampleQuote(), nil, nil)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		inst.Destroy()
	}()
	wg.Wait()

	if !inst.Destroyed() {
		t.Error("expected instance destroyed")
	}
}

func TestOverlays(t *testing.T) {
	tests := []struct {
		name        string
		overlay     Overlay
		wantMarkers int
	}{
		{"signals", SignalOverlays(), 1},
		{"band", BandOverlays(), 0},
		{"line", LineOverlay(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, lib, _ := newTestAdapter(WithOverlay(tt.overlay))
			buy := []model.Indicator{{Date: "2024-01-02T00:00:00Z", Value: 2}}
			if _, err := a.Create("other", sampleQuote(), buy, nil); err != nil {
				t.Fatal(err)
			}
			line := lib.handles[0].lines[0]
			if len(line.data) != 1 {
				t.Errorf("line points = %d, want 1", len(line.data))
			}
			if len(line.markers) != tt.wantMarkers {
				t.Errorf("markers = %d, want %d", len(line.markers), tt.wantMarkers)
			}
			if line.markers == nil {
				t.Error("markers must be non-nil so the series is cleared")
			}
		})
	}
}

func TestOverlayByName(t *testing.T) {
	cases := map[string]string{
		"sniper":   "signals",
		"rsi":      "signals",
		"extremum": "band",
		"sma":      "line",
		"":         "signals",
	}
	for in, want := range cases {
		if got := OverlayByName(in).Name; got != want {
			t.Errorf("OverlayByName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUpdate_PrecisionChangeReappliesPriceFormat(t *testing.T) {
	a, lib, _ := newTestAdapter()
	q := sampleQuote() // precision 2
	inst, err := a.Create("", q, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	candles := lib.handles[0].candles
	if len(candles.applied) != 0 {
		t.Fatalf("applied %d option sets on create, want 0", len(candles.applied))
	}

	q.Precision = 4
	inst.Update(q, nil, nil)
	inst.Update(q, nil, nil)
	if len(candles.applied) != 1 {
		t.Fatalf("applied %d option sets, want 1", len(candles.applied))
	}
	pf := candles.applied[0].PriceFormat
	if pf == nil || pf.Precision != 4 || pf.MinMove != 0.0001 {
		t.Errorf("price format = %+v, want precision 4 minMove 0.0001", pf)
	}

	q.Precision = 0
	inst.Update(q, nil, nil)
	if len(candles.applied) != 2 || *candles.applied[1].PriceFormat != defaultPriceFormat {
		t.Errorf("precision 0 did not restore the default format: %+v", candles.applied)
	}
}

func TestCreate_EmptyThenPrecision(t *testing.T) {
	a, lib, _ := newTestAdapter()
	inst, err := a.Create("", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	q := sampleQuote()
	q.Precision = 3
	if err := inst.Update(q, nil, nil); err != nil {
		t.Fatal(err)
	}
	applied := lib.handles[0].candles.applied
	if len(applied) != 1 || applied[0].PriceFormat == nil || applied[0].PriceFormat.Precision != 3 {
		t.Errorf("applied = %+v, want precision 3", applied)
	}
}
