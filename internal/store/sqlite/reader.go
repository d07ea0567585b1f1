package sqlite

import (
	"context"
	"fmt"
	"log"
	"time"

	"signalchart/internal/model"
)

// LoadFrames implements model.FrameReader, ordered by chart id. Rows that
// no longer decode are logged and skipped.
func (s *Store) LoadFrames(ctx context.Context) ([]model.Frame, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chart, data FROM chart_frames ORDER BY chart`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load frames: %w", err)
	}
	defer rows.Close()

	var frames []model.Frame
	for rows.Next() {
		var chart, data string
		if err := rows.Scan(&chart, &data); err != nil {
			return nil, fmt.Errorf("sqlite scan frame: %w", err)
		}
		f, err := model.DecodeFrame([]byte(data))
		if err != nil {
			log.Printf("[sqlite] skipping frame %s: %v", chart, err)
			continue
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// ListCharts returns a summary row per stored chart, ordered by chart id.
func (s *Store) ListCharts(ctx context.Context) ([]model.ChartInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chart, symbol, bars, updated_at FROM chart_frames ORDER BY chart`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list charts: %w", err)
	}
	defer rows.Close()

	var out []model.ChartInfo
	for rows.Next() {
		var info model.ChartInfo
		var updated int64
		if err := rows.Scan(&info.ID, &info.Symbol, &info.Bars, &updated); err != nil {
			return nil, fmt.Errorf("sqlite scan chart: %w", err)
		}
		info.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}
