package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *resty.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload := struct {
		Alert
		Title string `json:"title"`
		TS    string `json:"ts"`
	}{alert, alert.Title(), time.Now().UTC().Format(time.RFC3339Nano)}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode())
	}
	log.Printf("[webhook] sent alert: %s", alert.Title())
	return nil
}
