package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"signalchart/internal/model"
)

// Watcher raises an alert when the newest bar of a frame carries a buy or
// sell signal it has not alerted on before. Delivery runs on Run's
// goroutine; Observe never blocks the caller.
type Watcher struct {
	n     Notifier
	queue chan Alert

	mu   sync.Mutex
	last map[string]string // chart/side → date already alerted

	// OnSent is called after each delivery attempt.
	OnSent func(err error)
}

// NewWatcher creates a watcher delivering to n.
func NewWatcher(n Notifier) *Watcher {
	return &Watcher{
		n:     n,
		queue: make(chan Alert, 64),
		last:  make(map[string]string),
	}
}

// Observe queues alerts for new signals on f's last bar and returns how
// many were queued.
func (w *Watcher) Observe(f model.Frame) int {
	n := f.Quote.Len()
	if n == 0 {
		return 0
	}
	date, closePrice := f.Quote.Date[n-1], f.Quote.Close[n-1]

	queued := 0
	for _, s := range []struct {
		side   Side
		points []model.Indicator
	}{{SideBuy, f.Buy}, {SideSell, f.Sell}} {
		p, ok := signalAt(s.points, date)
		if !ok || !w.fresh(f.Chart, s.side, date) {
			continue
		}
		a := Alert{Chart: f.Chart, Symbol: f.Quote.Symbol, Side: s.side, Date: date, Value: p.Value, Close: closePrice}
		select {
		case w.queue <- a:
			queued++
		default:
			log.Printf("[notify] WARNING: alert queue full, dropping %s", a.Title())
		}
	}
	return queued
}

// Forget drops the dedupe state of a destroyed chart.
func (w *Watcher) Forget(chart string) {
	w.mu.Lock()
	delete(w.last, chart+"/"+string(SideBuy))
	delete(w.last, chart+"/"+string(SideSell))
	w.mu.Unlock()
}

// Run delivers queued alerts until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-w.queue:
			sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := w.n.Send(sendCtx, a)
			cancel()
			if err != nil {
				log.Printf("[notify] ERROR: %s: %v", a.Title(), err)
			}
			if w.OnSent != nil {
				w.OnSent(err)
			}
		}
	}
}

func (w *Watcher) fresh(chart string, side Side, date string) bool {
	key := chart + "/" + string(side)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last[key] == date {
		return false
	}
	w.last[key] = date
	return true
}

func signalAt(points []model.Indicator, date string) (model.Indicator, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Date == date {
			return points[i], points[i].HasSignal()
		}
	}
	return model.Indicator{}, false
}
