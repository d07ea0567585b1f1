// Package sim generates random-walk daily bars so charts can be exercised
// without a real producer.
package sim

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	"signalchart/internal/model"
)

// stepsPerBar is the number of walk steps folded into one OHLC bar.
const stepsPerBar = 4

// Walker holds one simulated instrument and the window of bars sent with
// each frame. Each new bar carries a buy signal (at its low) or a sell
// signal (at its high) with probability SignalRate.
type Walker struct {
	Chart      string
	Symbol     string
	SignalRate float64

	rng       *rand.Rand
	price     float64
	day       time.Time
	maxBars   int
	q         model.Quote
	buy, sell []model.Indicator
}

// NewWalker starts a walk at price. Each frame carries at most maxBars bars.
func NewWalker(chart string, price float64, maxBars int, seed int64) *Walker {
	if maxBars <= 0 {
		maxBars = 200
	}
	return &Walker{
		Chart:      chart,
		Symbol:     chart,
		SignalRate: 0.1,
		rng:        rand.New(rand.NewSource(seed)),
		price:      price,
		day:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		maxBars:    maxBars,
		q:          model.Quote{Precision: 2},
	}
}

// walk applies a random step of up to ±1%.
func (w *Walker) walk() float64 {
	pct := (w.rng.Float64()*2 - 1) / 100.0
	w.price = math.Max(0.01, w.price*(1+pct))
	return round2(w.price)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Next appends one bar and returns a frame holding the current window.
func (w *Walker) Next() model.Frame {
	open := round2(w.price)
	high, low, closePrice := open, open, open
	for i := 0; i < stepsPerBar; i++ {
		closePrice = w.walk()
		high = math.Max(high, closePrice)
		low = math.Min(low, closePrice)
	}

	q := &w.q
	date := w.day.Format(time.RFC3339)
	q.Symbol = w.Symbol
	q.Date = append(q.Date, date)
	q.Open = append(q.Open, open)
	q.High = append(q.High, high)
	q.Low = append(q.Low, low)
	q.Close = append(q.Close, closePrice)
	q.Volume = append(q.Volume, float64(w.rng.Intn(1000)+1))
	w.day = w.day.AddDate(0, 0, 1)

	if r := w.rng.Float64(); r < w.SignalRate/2 {
		w.buy = append(w.buy, model.Indicator{Date: date, Value: low})
	} else if r < w.SignalRate {
		w.sell = append(w.sell, model.Indicator{Date: date, Value: high})
	}

	if n := len(q.Date); n > w.maxBars {
		drop := n - w.maxBars
		q.Date, q.Open, q.High = q.Date[drop:], q.Open[drop:], q.High[drop:]
		q.Low, q.Close, q.Volume = q.Low[drop:], q.Close[drop:], q.Volume[drop:]
		w.buy, w.sell = since(w.buy, q.Date[0]), since(w.sell, q.Date[0])
	}

	return model.Frame{
		Chart: w.Chart,
		Quote: w.snapshot(),
		Buy:   append([]model.Indicator(nil), w.buy...),
		Sell:  append([]model.Indicator(nil), w.sell...),
		TS:    time.Now().UnixMilli(),
	}
}

// since drops points dated before first. RFC 3339 UTC dates sort as strings.
func since(points []model.Indicator, first string) []model.Indicator {
	i := 0
	for i < len(points) && points[i].Date < first {
		i++
	}
	return points[i:]
}

// snapshot copies the window so frames stay immutable after Next returns.
func (w *Walker) snapshot() *model.Quote {
	cp := func(s []float64) []float64 { return append([]float64(nil), s...) }
	return &model.Quote{
		Symbol:    w.q.Symbol,
		Precision: w.q.Precision,
		Date:      append([]string(nil), w.q.Date...),
		Open:      cp(w.q.Open),
		High:      cp(w.q.High),
		Low:       cp(w.q.Low),
		Close:     cp(w.q.Close),
		Volume:    cp(w.q.Volume),
	}
}

// Run emits one frame per walker every interval until ctx is cancelled.
// Sink errors are logged and do not stop the feed.
func Run(ctx context.Context, walkers []*Walker, interval time.Duration, sink func(model.Frame) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, w := range walkers {
				if err := sink(w.Next()); err != nil {
					log.Printf("[sim] WARNING: frame for %s: %v", w.Chart, err)
				}
			}
		}
	}
}
