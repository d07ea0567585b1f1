package chart

import (
	"github.com/shopspring/decimal"

	"signalchart/internal/model"
)

// BuildCandles maps quote rows to candlestick bars, one per complete row.
// Rows whose date cannot be parsed are dropped and counted in skipped.
func BuildCandles(q *model.Quote) (candles []model.CandlestickData, skipped int) {
	n := q.Len()
	candles = make([]model.CandlestickData, 0, n)
	for i := 0; i < n; i++ {
		ts, err := UnixSeconds(q.Date[i])
		if err != nil {
			skipped++
			continue
		}
		candles = append(candles, model.CandlestickData{
			Time:  ts,
			Open:  q.Open[i],
			High:  q.High[i],
			Low:   q.Low[i],
			Close: q.Close[i],
		})
	}
	return candles, skipped
}

// BuildSignals turns indicator points into line points and, when marker is
// non-nil, one marker per point. Zero values carry no signal and produce
// neither. Both returned slices are non-nil.
func BuildSignals(points []model.Indicator, marker *MarkerStyle) (line []model.LineData, markers []model.SeriesMarker, skipped int) {
	line = make([]model.LineData, 0, len(points))
	markers = []model.SeriesMarker{}
	if marker != nil {
		markers = make([]model.SeriesMarker, 0, len(points))
	}
	for _, p := range points {
		if !p.HasSignal() {
			continue
		}
		ts, err := UnixSeconds(p.Date)
		if err != nil {
			skipped++
			continue
		}
		line = append(line, model.LineData{Time: ts, Value: p.Value})
		if marker != nil {
			markers = append(markers, model.SeriesMarker{
				Time:     ts,
				Position: marker.Position,
				Color:    marker.Color,
				Shape:    marker.Shape,
			})
		}
	}
	return line, markers, skipped
}

// defaultPriceFormat is the library's own default, re-applied when a quote
// drops its precision.
var defaultPriceFormat = PriceFormat{Type: "price", Precision: 2, MinMove: 0.01}

// PriceFormatFor returns a price format with precision digits and a
// minimum move of exactly 10^-precision. Non-positive precision yields nil
// (library default).
func PriceFormatFor(precision int64) *PriceFormat {
	if precision <= 0 {
		return nil
	}
	return &PriceFormat{
		Type:      "price",
		Precision: precision,
		MinMove:   decimal.New(1, -int32(precision)).InexactFloat64(),
	}
}
