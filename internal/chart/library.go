// Package chart maps quote series and indicator signals onto a chart
// library's series API and keeps a rendered chart in sync with new data.
//
// The chart library itself sits behind the small port interfaces in this
// file. Production uses the remote implementation in internal/gateway,
// which streams every call to browser pages running lightweight-charts.
package chart

import "signalchart/internal/model"

// Container is a chart host element.
type Container interface {
	ID() string
	// Width is the current client width in pixels, 0 if unknown.
	Width() int
	// Clear removes everything previously drawn into the container.
	Clear()
}

// Document resolves container elements by id.
type Document interface {
	ElementByID(id string) (Container, bool)
}

// Library creates charts inside containers.
type Library interface {
	CreateChart(c Container, opts Options) Handle
}

// Handle is one live chart created by a Library.
type Handle interface {
	AddCandlestickSeries(opts CandlestickOptions) CandlestickSeries
	AddLineSeries(opts LineOptions) LineSeries
	// Remove releases the chart and all its series.
	Remove()
}

// CandlestickSeries is an OHLC series. SetData replaces all bars;
// ApplyOptions replaces the series options.
type CandlestickSeries interface {
	SetData(data []model.CandlestickData)
	ApplyOptions(opts CandlestickOptions)
}

// LineSeries is a line series that can carry markers.
// SetData and SetMarkers replace the previous content.
type LineSeries interface {
	SetData(data []model.LineData)
	SetMarkers(markers []model.SeriesMarker)
}

// PriceFormat controls how the price scale formats values.
type PriceFormat struct {
	Type      string  `json:"type"`
	Precision int64   `json:"precision"`
	MinMove   float64 `json:"minMove"`
}

// CandlestickOptions configures a candlestick series.
type CandlestickOptions struct {
	Name        string       `json:"name"`
	PriceFormat *PriceFormat `json:"priceFormat,omitempty"`
}

// LineOptions configures a line series.
type LineOptions struct {
	Name             string `json:"name"`
	Color            string `json:"color"`
	LineWidth        int    `json:"lineWidth,omitempty"`
	LastValueVisible bool   `json:"lastValueVisible"`
	PriceLineVisible bool   `json:"priceLineVisible"`
}
