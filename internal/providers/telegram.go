package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"health-service/internal/logging"
	"health-service/internal/models"
	"health-service/internal/utils"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram delivers alerts to a single chat through the bot API.
type Telegram struct {
	sender   messageSender
	chatID   int64
	limiter  *rate.Limiter
	logger   *logging.Logger
	attempts int
	delay    time.Duration
}

// NewTelegram connects the bot and limits sends to ratePerSecond.
func NewTelegram(token string, chatID int64, ratePerSecond int, logger *logging.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("missing telegram chat_id")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegram(b, chatID, ratePerSecond, logger), nil
}

func newTelegram(sender messageSender, chatID int64, ratePerSecond int, logger *logging.Logger) *Telegram {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Telegram{
		sender:   sender,
		chatID:   chatID,
		limiter:  rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:   logger,
		attempts: 3,
		delay:    time.Second,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, a models.Alert) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	params := &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      formatAlert(a),
		ParseMode: tgmodels.ParseModeMarkdown,
	}
	return utils.Retry(ctx, t.logger, t.attempts, t.delay, func() error {
		if _, err := t.sender.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}

// formatAlert renders a MarkdownV2 message; every interpolated field is escaped.
func formatAlert(a models.Alert) string {
	return fmt.Sprintf(
		"*%s %s alert*\n%s\n\n"+
			"*Device:* %s\n"+
			"*Value:* %s \\(threshold %s\\)\n"+
			"*Alert ID:* %d\n"+
			"*At:* %s",
		severityIcon(a.Severity), escape(string(a.Category)),
		escape(a.Message),
		escape(a.MachineID),
		escape(strconv.FormatFloat(a.Value, 'f', -1, 64)), escape(strconv.FormatFloat(a.Threshold, 'f', -1, 64)),
		a.ID,
		escape(a.Timestamp.UTC().Format(time.RFC3339)),
	)
}

func escape(s string) string {
	return bot.EscapeMarkdown(strings.ReplaceAll(s, `\`, `\\`))
}

func severityIcon(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "🔴"
	case models.SeverityHigh:
		return "🟠"
	case models.SeverityWarning:
		return "🟡"
	default:
		return "🔵"
	}
}
