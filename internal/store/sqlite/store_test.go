package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"signalchart/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "charts.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testFrame(id string, closes ...float64) model.Frame {
	q := &model.Quote{Symbol: id + "-USD"}
	for _, c := range closes {
		q.Date = append(q.Date, "2024-01-01T00:00:00Z")
		q.Open = append(q.Open, c)
		q.High = append(q.High, c)
		q.Low = append(q.Low, c)
		q.Close = append(q.Close, c)
	}
	return model.Frame{Chart: id, Quote: q, Buy: []model.Indicator{{Date: "2024-01-01T00:00:00Z", Value: 1}}}
}

func TestStore_SaveLoadUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, f := range []model.Frame{testFrame("eth", 1), testFrame("btc", 1), testFrame("btc", 1, 2, 3)} {
		if err := s.SaveFrame(ctx, f); err != nil {
			t.Fatalf("SaveFrame: %v", err)
		}
	}

	frames, err := s.LoadFrames(ctx)
	if err != nil {
		t.Fatalf("LoadFrames: %v", err)
	}
	if len(frames) != 2 || frames[0].Chart != "btc" || frames[1].Chart != "eth" {
		t.Fatalf("frames = %+v", frames)
	}
	if frames[0].Quote.Len() != 3 || len(frames[0].Buy) != 1 {
		t.Errorf("btc not upserted: %+v", frames[0])
	}

	infos, err := s.ListCharts(ctx)
	if err != nil {
		t.Fatalf("ListCharts: %v", err)
	}
	if len(infos) != 2 || infos[0].Symbol != "btc-USD" || infos[0].Bars != 3 || infos[0].UpdatedAt.IsZero() {
		t.Errorf("infos = %+v", infos)
	}
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SaveFrame(ctx, testFrame("btc", 1))

	if err := s.DeleteFrame(ctx, "btc"); err != nil {
		t.Fatalf("DeleteFrame: %v", err)
	}
	if err := s.DeleteFrame(ctx, "missing"); err != nil {
		t.Errorf("deleting a missing chart should not fail: %v", err)
	}
	frames, _ := s.LoadFrames(ctx)
	if len(frames) != 0 {
		t.Errorf("frames = %+v, want none", frames)
	}
}

func TestStore_SkipsCorruptRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SaveFrame(ctx, testFrame("btc", 1))
	if _, err := s.DB().Exec(`INSERT INTO chart_frames (chart, data, updated_at) VALUES ('bad', '{', 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	frames, err := s.LoadFrames(ctx)
	if err != nil || len(frames) != 1 {
		t.Errorf("LoadFrames = %d frames, %v; want 1, nil", len(frames), err)
	}
}

func TestStore_ImplementsFrameStore(t *testing.T) {
	var _ model.FrameStore = openTestStore(t)
}
