// Package notification delivers chart signal alerts to external channels
// (webhooks, Telegram) or the log.
package notification

import (
	"context"
	"errors"
	"log"
)

// Side is the signal direction an alert reports.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Alert is one new signal on the newest bar of a chart.
type Alert struct {
	Chart  string  `json:"chart"`
	Symbol string  `json:"symbol,omitempty"`
	Side   Side    `json:"side"`
	Date   string  `json:"date"`
	Value  float64 `json:"value"`
	Close  float64 `json:"close"`
}

// Title is the one-line summary used by every backend.
func (a Alert) Title() string {
	name := a.Symbol
	if name == "" {
		name = a.Chart
	}
	if a.Side == SideBuy {
		return "BUY " + name
	}
	return "SELL " + name
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts. Used when no backend is configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, a Alert) error {
	log.Printf("[notify] %s on %s at %s (close %.4f)", a.Title(), a.Chart, a.Date, a.Close)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
