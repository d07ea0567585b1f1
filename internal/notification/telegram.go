package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *resty.Client
}

// NewTelegramNotifier creates a Telegram notifier for one chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   resty.New().SetBaseURL(telegramAPI).SetTimeout(10 * time.Second),
	}
}

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// botResponse is the envelope every Bot API method answers with.
type botResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts alert as a MarkdownV2 message. A reply with ok=false is an
// error carrying Telegram's description.
func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	var reply botResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.botToken).
		SetBody(sendMessage{ChatID: t.chatID, Text: telegramText(alert), ParseMode: "MarkdownV2"}).
		SetResult(&reply).
		SetError(&reply).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !reply.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode(), reply.Description)
	}
	log.Printf("[telegram] sent alert: %s", alert.Title())
	return nil
}

func telegramText(a Alert) string {
	mark := "🟢"
	if a.Side == SideSell {
		mark = "🔴"
	}
	detail := fmt.Sprintf("chart %s, bar %s, close %g", a.Chart, a.Date, a.Close)
	if a.Value != 0 && a.Value != a.Close {
		detail += fmt.Sprintf(", signal %g", a.Value)
	}
	return fmt.Sprintf("%s *%s*\n\n%s", mark, escapeMarkdown(a.Title()), escapeMarkdown(detail))
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!"
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
