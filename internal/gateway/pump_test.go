package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signalchart/internal/chart"
	"signalchart/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	frames  map[string]model.Frame
	saveErr error
}

func newMemStore() *memStore { return &memStore{frames: make(map[string]model.Frame)} }

func (m *memStore) SaveFrame(_ context.Context, f model.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.frames[f.Chart] = f
	return nil
}

func (m *memStore) DeleteFrame(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.frames, id)
	m.mu.Unlock()
	return nil
}

func (m *memStore) LoadFrames(context.Context) ([]model.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Frame, 0, len(m.frames))
	for _, f := range m.frames {
		out = append(out, f)
	}
	return out, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

type countingMetrics struct {
	mu        sync.Mutex
	ingested  int
	dropped   int
	coalesced int
	persistE  int
	active    int
}

func (c *countingMetrics) FrameIngested(string)               { c.mu.Lock(); c.ingested++; c.mu.Unlock() }
func (c *countingMetrics) FrameDropped()                      { c.mu.Lock(); c.dropped++; c.mu.Unlock() }
func (c *countingMetrics) FramesCoalesced(n int)              { c.mu.Lock(); c.coalesced += n; c.mu.Unlock() }
func (c *countingMetrics) ChartsActive(n int)                 { c.mu.Lock(); c.active = n; c.mu.Unlock() }
func (c *countingMetrics) PersistError(string)                { c.mu.Lock(); c.persistE++; c.mu.Unlock() }
func (c *countingMetrics) ObserveRenderLatency(time.Duration) {}

func testFrame(id string, closes ...float64) model.Frame {
	q := &model.Quote{Symbol: id}
	for i, c := range closes {
		q.Date = append(q.Date, time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(time.RFC3339))
		q.Open = append(q.Open, c)
		q.High = append(q.High, c+1)
		q.Low = append(q.Low, c-1)
		q.Close = append(q.Close, c)
	}
	return model.Frame{Chart: id, Quote: q}
}

func TestFramePump_ApplyCreatesThenUpdates(t *testing.T) {
	hub := NewHub()
	store := newMemStore()
	m := &countingMetrics{}
	p := NewFramePump(hub, PumpConfig{
		Options: chart.DefaultOptions(),
		Writers: map[string]model.FrameWriter{"mem": store},
		Metrics: m,
	})
	ctx := context.Background()

	if err := p.Apply(ctx, testFrame("btc", 1, 2)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := p.Apply(ctx, testFrame("btc", 1, 2, 3)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	charts := p.Charts()
	if len(charts) != 1 || charts[0].ID != "btc" || charts[0].Bars != 3 {
		t.Fatalf("Charts() = %+v", charts)
	}
	if _, ok := hub.Library.ElementByID("btc"); !ok {
		t.Error("container not registered on first frame")
	}
	if store.len() != 1 || m.active != 1 {
		t.Errorf("stored=%d active=%d, want 1/1", store.len(), m.active)
	}
}

func TestFramePump_EmptyQuoteNotPersisted(t *testing.T) {
	hub := NewHub()
	store := newMemStore()
	p := NewFramePump(hub, PumpConfig{Writers: map[string]model.FrameWriter{"mem": store}})

	if err := p.Apply(context.Background(), model.Frame{Chart: "blank"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if store.len() != 0 {
		t.Error("empty frame should not be persisted")
	}
	if len(p.Charts()) != 1 {
		t.Error("chart should still be created")
	}
}

func TestFramePump_PersistErrorDoesNotFailRender(t *testing.T) {
	hub := NewHub()
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	m := &countingMetrics{}
	p := NewFramePump(hub, PumpConfig{Writers: map[string]model.FrameWriter{"mem": store}, Metrics: m})

	if err := p.Apply(context.Background(), testFrame("btc", 1)); err != nil {
		t.Fatalf("Apply returned %v, want nil", err)
	}
	if m.persistE != 1 {
		t.Errorf("persist errors = %d, want 1", m.persistE)
	}
}

func TestFramePump_ModeFromConfig(t *testing.T) {
	hub := NewHub()
	p := NewFramePump(hub, PumpConfig{Modes: map[string]string{"sma": "line"}})

	if _, ok := hub.Library.ElementByID("sma"); !ok {
		t.Fatal("configured container not registered")
	}
	p.Apply(context.Background(), testFrame("sma", 1))

	var names []string
	for _, cmd := range hub.Library.Replay("sma") {
		if cmd.Op == OpAddSeries {
			names = append(names, cmd.Series)
		}
	}
	if len(names) != 3 || names[1] != "line" {
		t.Errorf("series = %v, want candles/line/...", names)
	}
}

type fakeWatcher struct {
	observed []string
	forgot   []string
}

func (w *fakeWatcher) Observe(f model.Frame) int { w.observed = append(w.observed, f.Chart); return 0 }
func (w *fakeWatcher) Forget(id string)          { w.forgot = append(w.forgot, id) }

func TestFramePump_WatcherSeesSignalCharts(t *testing.T) {
	hub := NewHub()
	w := &fakeWatcher{}
	p := NewFramePump(hub, PumpConfig{Modes: map[string]string{"avg": "line"}, Watcher: w})
	ctx := context.Background()

	p.Apply(ctx, testFrame("avg", 1, 2))
	p.Apply(ctx, testFrame("btc", 1, 2))
	p.Apply(ctx, model.Frame{Chart: "blank"})
	p.Destroy(ctx, "btc")

	if len(w.observed) != 1 || w.observed[0] != "btc" {
		t.Errorf("observed = %v, want [btc]", w.observed)
	}
	if len(w.forgot) != 1 || w.forgot[0] != "btc" {
		t.Errorf("forgot = %v, want [btc]", w.forgot)
	}
}

func TestFramePump_Prune(t *testing.T) {
	hub := NewHub()
	store := newMemStore()
	p := NewFramePump(hub, PumpConfig{Writers: map[string]model.FrameWriter{"mem": store}})
	ctx := context.Background()

	p.Apply(ctx, testFrame("old", 1))
	p.Apply(ctx, model.Frame{Chart: "blank"})
	cutoff := time.Now().Add(time.Second)

	pruned := p.Prune(ctx, cutoff)
	if len(pruned) != 1 || pruned[0] != "old" {
		t.Fatalf("pruned = %v, want [old]", pruned)
	}
	if store.len() != 0 {
		t.Error("pruned chart still persisted")
	}
	if charts := p.Charts(); len(charts) != 1 || charts[0].ID != "blank" {
		t.Errorf("remaining = %+v, want [blank]", charts)
	}
	if got := p.Prune(ctx, time.Now().Add(-time.Hour)); len(got) != 0 {
		t.Errorf("second prune removed %v", got)
	}
}

func TestFramePump_RunCoalesces(t *testing.T) {
	hub := NewHub()
	m := &countingMetrics{}
	p := NewFramePump(hub, PumpConfig{RingSize: 16, Metrics: m})

	for i := 1; i <= 5; i++ {
		closes := make([]float64, i)
		if err := p.Submit(testFrame("btc", closes...), "test"); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c := p.Charts(); len(c) == 1 && c[0].Bars == 5 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if c := p.Charts(); len(c) != 1 || c[0].Bars != 5 {
		t.Fatalf("Charts() = %+v, want btc with 5 bars", c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ingested != 5 || m.coalesced != 4 {
		t.Errorf("ingested=%d coalesced=%d, want 5/4", m.ingested, m.coalesced)
	}
}

func TestFramePump_SubmitRejects(t *testing.T) {
	p := NewFramePump(NewHub(), PumpConfig{RingSize: 2})
	if err := p.Submit(model.Frame{}, "test"); err == nil {
		t.Error("expected error for frame without chart id")
	}
	p.Submit(testFrame("a"), "test")
	p.Submit(testFrame("b"), "test")
	if err := p.Submit(testFrame("c"), "test"); !errors.Is(err, ErrRingFull) {
		t.Errorf("err = %v, want ErrRingFull", err)
	}
}

func TestFramePump_DestroyAndRestore(t *testing.T) {
	store := newMemStore()
	store.SaveFrame(context.Background(), testFrame("btc", 1, 2))
	store.SaveFrame(context.Background(), testFrame("eth", 3))

	hub := NewHub()
	p := NewFramePump(hub, PumpConfig{Writers: map[string]model.FrameWriter{"mem": store}})
	n, err := p.Restore(context.Background(), store)
	if err != nil || n != 2 {
		t.Fatalf("Restore = %d, %v; want 2, nil", n, err)
	}

	if !p.Destroy(context.Background(), "btc") {
		t.Fatal("Destroy(btc) = false")
	}
	if p.Destroy(context.Background(), "btc") {
		t.Error("second Destroy should report false")
	}
	if store.len() != 1 {
		t.Errorf("stored frames = %d, want 1", store.len())
	}
	if len(p.Charts()) != 1 || hub.Library.Replay("btc") != nil {
		t.Error("destroyed chart still live")
	}

	// a new frame for a destroyed chart starts a fresh instance
	if err := p.Apply(context.Background(), testFrame("btc", 1)); err != nil {
		t.Fatalf("Apply after destroy: %v", err)
	}
	if len(p.Charts()) != 2 {
		t.Errorf("Charts() = %d, want 2", len(p.Charts()))
	}
}
