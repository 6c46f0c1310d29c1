package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/sitekeep/internal/config"
	"github.com/semmidev/sitekeep/internal/domain"
)

type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	site   string
}

var _ domain.Notifier = (*TelegramNotifier)(nil)

func NewTelegram(cfg *config.TelegramConfig, site string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegram(bot, cfg.ChatID, site)
}

// NewTelegramWithEndpoint talks to a custom Bot API server, e.g. a local
// telegram-bot-api instance. endpoint uses the tgbotapi format with two %s
// verbs for token and method.
func NewTelegramWithEndpoint(cfg *config.TelegramConfig, site, endpoint string, client tgbotapi.HTTPClient) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegram(bot, cfg.ChatID, site)
}

func newTelegram(bot *tgbotapi.BotAPI, chat, site string) (*TelegramNotifier, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chat, err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, site: site}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, event domain.Event) error {
	msg := tgbotapi.NewMessage(t.chatID, Format(t.site, event))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func Format(site string, event domain.Event) string {
	var b strings.Builder
	switch event.Status {
	case domain.StatusDone:
		b.WriteString("✅ Backup Created\n\n")
	case domain.StatusError:
		b.WriteString("❌ Backup Failed\n\n")
	default:
		fmt.Fprintf(&b, "ℹ️ Backup %s\n\n", event.Status)
	}
	if site != "" {
		fmt.Fprintf(&b, "🌐 Site: %s\n", site)
	}
	if event.WorkDir != "" {
		fmt.Fprintf(&b, "📁 Set: %s\n", filepath.Base(event.WorkDir))
	}
	fmt.Fprintf(&b, "🆔 Job: %s", event.JobID)
	if event.Error != "" {
		fmt.Fprintf(&b, "\n⚠️ Error: %s", event.Error)
	}
	return b.String()
}
