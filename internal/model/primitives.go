package model

// Chart primitives in the shape the browser chart library consumes.
// Time is unix seconds (UTC).

// CandlestickData is one OHLC bar.
type CandlestickData struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// LineData is one point of a line series.
type LineData struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// MarkerPosition places a marker relative to its bar.
type MarkerPosition string

const (
	PositionAboveBar MarkerPosition = "aboveBar"
	PositionBelowBar MarkerPosition = "belowBar"
	PositionInBar    MarkerPosition = "inBar"
)

// MarkerShape is the glyph drawn for a marker.
type MarkerShape string

const (
	ShapeArrowUp   MarkerShape = "arrowUp"
	ShapeArrowDown MarkerShape = "arrowDown"
	ShapeCircle    MarkerShape = "circle"
	ShapeSquare    MarkerShape = "square"
)

// SeriesMarker is a visual annotation at a specific time.
type SeriesMarker struct {
	Time     int64          `json:"time"`
	Position MarkerPosition `json:"position"`
	Color    string         `json:"color"`
	Shape    MarkerShape    `json:"shape"`
}
