package model

import (
	"encoding/json"
	"fmt"
)

// Quote is an OHLCV series for one symbol stored as parallel slices,
// one entry per bar, ascending by time. Dates are calendar timestamps
// as strings (RFC 3339 on the wire).
type Quote struct {
	Symbol    string    `json:"symbol"`
	Precision int64     `json:"precision"`
	Date      []string  `json:"date"`
	Open      []float64 `json:"open"`
	High      []float64 `json:"high"`
	Low       []float64 `json:"low"`
	Close     []float64 `json:"close"`
	Volume    []float64 `json:"volume"`
}

// Len returns the number of complete bars: the shortest of the date and
// OHLC slices. Volume is optional and does not shorten the series.
func (q *Quote) Len() int {
	if q == nil {
		return 0
	}
	n := len(q.Date)
	for _, s := range [][]float64{q.Open, q.High, q.Low, q.Close} {
		if len(s) < n {
			n = len(s)
		}
	}
	return n
}

// Empty reports whether there is nothing to render.
func (q *Quote) Empty() bool {
	return q == nil || len(q.Date) == 0
}

// Validate checks that every parallel slice has the same length as Date.
// A nil Volume is accepted.
func (q *Quote) Validate() error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	n := len(q.Date)
	check := func(name string, s []float64) error {
		if len(s) != n {
			return fmt.Errorf("quote %s: %s has %d entries, date has %d", q.Symbol, name, len(s), n)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		s    []float64
	}{{"open", q.Open}, {"high", q.High}, {"low", q.Low}, {"close", q.Close}} {
		if err := check(c.name, c.s); err != nil {
			return err
		}
	}
	if q.Volume != nil {
		return check("volume", q.Volume)
	}
	return nil
}

// Indicator is one point of a sparse, date-aligned signal series.
// Value 0 means "no signal at this date".
type Indicator struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// HasSignal reports whether the point carries a signal.
func (i Indicator) HasSignal() bool {
	return i.Value != 0
}

// Frame is a complete render input for one chart container.
type Frame struct {
	Chart string      `json:"chart"`
	Mode  string      `json:"mode,omitempty"` // overlay preset, used when the chart is first created
	Quote *Quote      `json:"quote"`
	Buy   []Indicator `json:"buy"`
	Sell  []Indicator `json:"sell"`
	TS    int64       `json:"ts,omitempty"` // producer publish time, unix millis
}

// ChannelKey returns the Pub/Sub channel a frame for chart is published on:
// "pub:frame:{chart}".
func ChannelKey(chart string) string {
	return "pub:frame:" + chart
}

// CacheKey returns the Redis key holding the latest frame: "chart:frame:{chart}".
func CacheKey(chart string) string {
	return "chart:frame:" + chart
}

// JSON returns the JSON-encoded frame (ignoring errors for hot-path usage).
func (f *Frame) JSON() []byte {
	b, _ := json.Marshal(f)
	return b
}

// DecodeFrame parses a frame from JSON. The chart id is required.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Chart == "" {
		return Frame{}, fmt.Errorf("decode frame: chart id is required")
	}
	return f, nil
}
