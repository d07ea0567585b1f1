package gateway

import (
	"encoding/json"
	"sort"
	"sync"

	"signalchart/internal/chart"
	"signalchart/internal/model"
)

// Chart command ops understood by the page script.
const (
	OpCreate     = "create"
	OpClear      = "clear"
	OpAddSeries  = "addSeries"
	OpSetData    = "setData"
	OpSetMarkers = "setMarkers"
	OpApplyOpts  = "applyOptions"
	OpRemove     = "remove"
)

// ChartCommand is one chart-library call, streamed to browser pages.
type ChartCommand struct {
	Type    string          `json:"type"` // "CHART"
	Chart   string          `json:"chart"`
	Op      string          `json:"op"`
	Series  string          `json:"series,omitempty"`
	Kind    string          `json:"kind,omitempty"` // "candlestick" | "line"
	Options json.RawMessage `json:"options,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ChartChannel returns the broadcast channel of a chart: "chart:{id}".
func ChartChannel(id string) string {
	return "chart:" + id
}

// Library is a chart.Library and chart.Document whose charts live in
// browser pages. Every call is encoded as a ChartCommand and handed to
// emit. The current state of each chart is kept so a late-joining page
// can be brought up to date with Replay.
type Library struct {
	emit func(channel string, data []byte)

	mu         sync.RWMutex
	containers map[string]*container
	charts     map[string]*remoteChart
}

// NewLibrary creates a Library that publishes commands through emit.
func NewLibrary(emit func(channel string, data []byte)) *Library {
	return &Library{
		emit:       emit,
		containers: make(map[string]*container),
		charts:     make(map[string]*remoteChart),
	}
}

// Register makes a container id resolvable. width 0 lets the page size it.
func (l *Library) Register(id string, width int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.containers[id]; ok {
		c.width = width
		return
	}
	l.containers[id] = &container{lib: l, id: id, width: width}
}

// Unregister removes a container id. A chart still living in it is left
// to its owner to destroy.
func (l *Library) Unregister(id string) {
	l.mu.Lock()
	delete(l.containers, id)
	l.mu.Unlock()
}

// ElementByID implements chart.Document.
func (l *Library) ElementByID(id string) (chart.Container, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.containers[id]
	if !ok {
		return nil, false
	}
	return c, true
}

// Containers returns the registered container ids, sorted.
func (l *Library) Containers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.containers))
	for id := range l.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreateChart implements chart.Library.
func (l *Library) CreateChart(c chart.Container, opts chart.Options) chart.Handle {
	rc := &remoteChart{lib: l, id: c.ID(), options: mustJSON(opts)}

	l.mu.Lock()
	l.charts[rc.id] = rc
	l.mu.Unlock()

	l.send(ChartCommand{Chart: rc.id, Op: OpCreate, Options: rc.options})
	return rc
}

// Replay returns the commands that rebuild the current state of a chart,
// in application order. Nil if the chart does not exist.
func (l *Library) Replay(id string) []ChartCommand {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rc, ok := l.charts[id]
	if !ok {
		return nil
	}
	cmds := []ChartCommand{{Type: "CHART", Chart: id, Op: OpCreate, Options: rc.options}}
	for _, s := range rc.series {
		cmds = append(cmds, ChartCommand{Type: "CHART", Chart: id, Op: OpAddSeries, Series: s.name, Kind: s.kind, Options: s.options})
	}
	for _, s := range rc.series {
		if s.data != nil {
			cmds = append(cmds, ChartCommand{Type: "CHART", Chart: id, Op: OpSetData, Series: s.name, Data: s.data})
		}
		if s.markers != nil {
			cmds = append(cmds, ChartCommand{Type: "CHART", Chart: id, Op: OpSetMarkers, Series: s.name, Data: s.markers})
		}
	}
	return cmds
}

// Charts returns the ids of live charts, sorted.
func (l *Library) Charts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.charts))
	for id := range l.charts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Library) send(cmd ChartCommand) {
	cmd.Type = "CHART"
	if l.emit != nil {
		l.emit(ChartChannel(cmd.Chart), mustJSON(cmd))
	}
}

// ── container ──

type container struct {
	lib   *Library
	id    string
	width int
}

func (c *container) ID() string { return c.id }

func (c *container) Width() int {
	c.lib.mu.RLock()
	defer c.lib.mu.RUnlock()
	return c.width
}

// Clear empties the element on the page and forgets any chart state kept
// for it.
func (c *container) Clear() {
	c.lib.mu.Lock()
	delete(c.lib.charts, c.id)
	c.lib.mu.Unlock()
	c.lib.send(ChartCommand{Chart: c.id, Op: OpClear})
}

// ── chart handle and series ──

type remoteChart struct {
	lib     *Library
	id      string
	options json.RawMessage
	series  []*remoteSeries
	removed bool
}

func (rc *remoteChart) addSeries(kind, name string, opts any) *remoteSeries {
	s := &remoteSeries{chart: rc, kind: kind, name: name, options: mustJSON(opts)}
	rc.lib.mu.Lock()
	rc.series = append(rc.series, s)
	rc.lib.mu.Unlock()
	rc.lib.send(ChartCommand{Chart: rc.id, Op: OpAddSeries, Series: name, Kind: kind, Options: s.options})
	return s
}

func (rc *remoteChart) AddCandlestickSeries(opts chart.CandlestickOptions) chart.CandlestickSeries {
	return candleSeries{rc.addSeries("candlestick", opts.Name, opts)}
}

func (rc *remoteChart) AddLineSeries(opts chart.LineOptions) chart.LineSeries {
	return lineSeries{rc.addSeries("line", opts.Name, opts)}
}

func (rc *remoteChart) Remove() {
	l := rc.lib
	l.mu.Lock()
	if rc.removed {
		l.mu.Unlock()
		return
	}
	rc.removed = true
	if l.charts[rc.id] == rc {
		delete(l.charts, rc.id)
	}
	l.mu.Unlock()
	l.send(ChartCommand{Chart: rc.id, Op: OpRemove})
}

type remoteSeries struct {
	chart   *remoteChart
	kind    string
	name    string
	options json.RawMessage
	data    json.RawMessage
	markers json.RawMessage
}

func (s *remoteSeries) set(op string, payload any) {
	raw := mustJSON(payload)
	l := s.chart.lib
	l.mu.Lock()
	if s.chart.removed {
		l.mu.Unlock()
		return
	}
	if op == OpSetMarkers {
		s.markers = raw
	} else {
		s.data = raw
	}
	l.mu.Unlock()
	l.send(ChartCommand{Chart: s.chart.id, Op: op, Series: s.name, Data: raw})
}

// candleSeries gives candlestick series their SetData and ApplyOptions.
type candleSeries struct{ *remoteSeries }

func (s candleSeries) SetData(data []model.CandlestickData) {
	s.set(OpSetData, data)
}

// ApplyOptions replaces the series options. Replay carries them in the
// series' addSeries command.
func (s candleSeries) ApplyOptions(opts chart.CandlestickOptions) {
	raw := mustJSON(opts)
	l := s.chart.lib
	l.mu.Lock()
	if s.chart.removed {
		l.mu.Unlock()
		return
	}
	s.options = raw
	l.mu.Unlock()
	l.send(ChartCommand{Chart: s.chart.id, Op: OpApplyOpts, Series: s.name, Options: raw})
}

// lineSeries wraps remoteSeries to give line series their own SetData signature.
type lineSeries struct{ *remoteSeries }

func (s lineSeries) SetData(data []model.LineData) {
	s.set(OpSetData, data)
}

func (s lineSeries) SetMarkers(markers []model.SeriesMarker) {
	s.set(OpSetMarkers, markers)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
