package gateway

import (
	"encoding/json"
	"sync"
	"testing"

	"signalchart/internal/chart"
	"signalchart/internal/model"
)

func testOptions() chart.Options { return chart.DefaultOptions() }

func lineOpts(name string) chart.LineOptions {
	return chart.LineOptions{Name: name, Color: "rgba(255, 255, 255, 0)"}
}

// recorder collects emitted commands in order.
type recorder struct {
	mu   sync.Mutex
	cmds []ChartCommand
}

func (r *recorder) emit(channel string, data []byte) {
	var cmd ChartCommand
	json.Unmarshal(data, &cmd)
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
}

func (r *recorder) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cmds))
	for i, c := range r.cmds {
		out[i] = c.Op
	}
	return out
}

func equalOps(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestLibrary_ElementByID(t *testing.T) {
	lib := NewLibrary(nil)
	if _, ok := lib.ElementByID("chart"); ok {
		t.Fatal("unregistered container should not resolve")
	}
	lib.Register("chart", 800)
	c, ok := lib.ElementByID("chart")
	if !ok || c.ID() != "chart" || c.Width() != 800 {
		t.Fatalf("ElementByID = %v %v", c, ok)
	}
	lib.Register("chart", 640)
	if c.Width() != 640 {
		t.Errorf("re-register width = %d, want 640", c.Width())
	}
	lib.Unregister("chart")
	if _, ok := lib.ElementByID("chart"); ok {
		t.Error("unregistered container still resolves")
	}
}

func TestLibrary_AdapterEmitsCommands(t *testing.T) {
	rec := &recorder{}
	lib := NewLibrary(rec.emit)
	lib.Register("chart", 0)

	a := chart.NewAdapter(lib, lib)
	q := &model.Quote{
		Symbol: "BTC-USD",
		Date:   []string{"2024-01-01T00:00:00Z"},
		Open:   []float64{10}, High: []float64{12}, Low: []float64{9}, Close: []float64{11},
	}
	inst, err := a.Create("", q, []model.Indicator{{Date: "2024-01-01T00:00:00Z", Value: 9}}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := []string{
		OpClear, OpCreate,
		OpAddSeries, OpAddSeries, OpAddSeries,
		OpSetData, OpSetData, OpSetData, OpSetMarkers, OpSetMarkers,
	}
	if got := rec.ops(); !equalOps(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}

	setCandles := rec.cmds[5]
	if setCandles.Series != "candles" || setCandles.Chart != "chart" || setCandles.Type != "CHART" {
		t.Errorf("candles command = %+v", setCandles)
	}
	var candles []model.CandlestickData
	if err := json.Unmarshal(setCandles.Data, &candles); err != nil || len(candles) != 1 || candles[0].Time != 1704067200 {
		t.Errorf("candles = %s (%v)", setCandles.Data, err)
	}

	var markers []model.SeriesMarker
	json.Unmarshal(rec.cmds[8].Data, &markers)
	if len(markers) != 1 || markers[0].Shape != model.ShapeArrowUp || markers[0].Position != model.PositionBelowBar {
		t.Errorf("buy markers = %s", rec.cmds[8].Data)
	}

	inst.Destroy()
	if last := rec.ops()[len(rec.ops())-1]; last != OpRemove {
		t.Errorf("last op after destroy = %s, want remove", last)
	}
	if lib.Replay("chart") != nil {
		t.Error("destroyed chart should have no replay")
	}
}

func TestLibrary_ReplayKeepsLatest(t *testing.T) {
	lib := NewLibrary(nil)
	lib.Register("c", 0)
	el, _ := lib.ElementByID("c")
	h := lib.CreateChart(el, testOptions())
	s := h.AddLineSeries(lineOpts("buy"))
	s.SetData([]model.LineData{{Time: 1, Value: 1}})
	s.SetData([]model.LineData{{Time: 2, Value: 2}})
	s.SetMarkers([]model.SeriesMarker{})

	cmds := lib.Replay("c")
	var ops []string
	for _, c := range cmds {
		ops = append(ops, c.Op)
	}
	if want := []string{OpCreate, OpAddSeries, OpSetData, OpSetMarkers}; !equalOps(ops, want) {
		t.Fatalf("replay ops = %v, want %v", ops, want)
	}
	var data []model.LineData
	json.Unmarshal(cmds[2].Data, &data)
	if len(data) != 1 || data[0].Time != 2 {
		t.Errorf("replayed data = %s, want latest", cmds[2].Data)
	}
	if got := lib.Charts(); len(got) != 1 || got[0] != "c" {
		t.Errorf("Charts() = %v", got)
	}
}

func TestLibrary_RemovedChartIgnoresWrites(t *testing.T) {
	rec := &recorder{}
	lib := NewLibrary(rec.emit)
	lib.Register("c", 0)
	el, _ := lib.ElementByID("c")
	h := lib.CreateChart(el, testOptions())
	s := h.AddCandlestickSeries(chart.CandlestickOptions{Name: "candles"})

	h.Remove()
	h.Remove()
	s.SetData([]model.CandlestickData{{Time: 1}})

	if got, want := rec.ops(), []string{OpCreate, OpAddSeries, OpRemove}; !equalOps(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestLibrary_ApplyOptionsReplays(t *testing.T) {
	rec := &recorder{}
	lib := NewLibrary(rec.emit)
	lib.Register("c", 0)
	el, _ := lib.ElementByID("c")
	h := lib.CreateChart(el, testOptions())
	s := h.AddCandlestickSeries(chart.CandlestickOptions{Name: "candles"})

	s.ApplyOptions(chart.CandlestickOptions{Name: "candles", PriceFormat: chart.PriceFormatFor(4)})

	if got, want := rec.ops(), []string{OpCreate, OpAddSeries, OpApplyOpts}; !equalOps(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	var opts chart.CandlestickOptions
	for _, cmd := range lib.Replay("c") {
		if cmd.Op == OpAddSeries && cmd.Series == "candles" {
			json.Unmarshal(cmd.Options, &opts)
		}
	}
	if opts.PriceFormat == nil || opts.PriceFormat.Precision != 4 {
		t.Errorf("replayed candle options = %+v, want precision 4", opts)
	}
}

func TestLibrary_ClearDropsState(t *testing.T) {
	lib := NewLibrary(nil)
	lib.Register("c", 0)
	el, _ := lib.ElementByID("c")
	lib.CreateChart(el, testOptions())

	el.Clear()
	if lib.Replay("c") != nil {
		t.Error("cleared container should have no chart state")
	}
}
