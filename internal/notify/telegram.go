package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"

	"github.com/rednix/eu-grants-monitor-agent/internal/config"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// TelegramNotifier sends a plain-text digest of each cycle's alerts to a
// Telegram chat, retrying with linear backoff.
type TelegramNotifier struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewTelegramNotifier builds the notifier from configuration. The bot token
// is validated against the Telegram API at construction time.
func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, eris.Wrap(err, "notify: create telegram bot")
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "notify: parse chat id %q", cfg.ChatID)
	}

	return &TelegramNotifier{
		bot:        bot,
		chatID:     chatID,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

func (n *TelegramNotifier) Dispatch(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, formatDigest(alerts))

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		if _, lastErr = n.bot.Send(msg); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryDelay * time.Duration(i+1)):
		}
	}
	return eris.Wrapf(lastErr, "notify: telegram send failed after %d attempts", n.maxRetries)
}

// formatDigest renders the batch as plain text. No parse mode is set, so no
// escaping is needed and titles render verbatim.
func formatDigest(alerts []models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Funding alerts (%d)\n\n", len(alerts))

	for i, a := range alerts {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, a.Reason, a.Title)
		fmt.Fprintf(&b, "   source: %s  priority: %.0f\n", a.SourceSystem, a.Score.Priority)
		if a.Deadline != nil {
			fmt.Fprintf(&b, "   deadline: %s\n", a.Deadline.UTC().Format("2006-01-02"))
		}
		if a.SourceURL != "" {
			fmt.Fprintf(&b, "   %s\n", a.SourceURL)
		}
		b.WriteString("\n")
	}
	return b.String()
}
