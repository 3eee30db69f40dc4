// Package telegram provides a client for sending signal reports via the
// Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/qvintus/ethsignal/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a run-failure notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(runErr error) error {
	text := fmt.Sprintf("⚠️ *Signal run failed*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Signal runs recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send sends the run's signal report.
func (c *Client) Send(sig *models.Signal) error {
	return c.sendMarkdownV2(FormatSignal(sig))
}

// FormatSignal renders a signal record as a Telegram MarkdownV2 report.
// Unavailable statistics render as "n/a" so a HOLD from missing data reads
// differently from a computed HOLD.
func FormatSignal(sig *models.Signal) string {
	var b strings.Builder

	emoji := "⏸️"
	switch sig.Action {
	case models.ActionLong:
		emoji = "🟢"
	case models.ActionFlat:
		emoji = "🔴"
	}

	fmt.Fprintf(&b, "%s *ETH Smart Money Signal — %s*\n",
		emoji, escapeMarkdownV2(sig.Date.Format("2006-01-02")))
	fmt.Fprintf(&b, "Signal: *%s*\n", escapeMarkdownV2(string(sig.Action)))
	fmt.Fprintf(&b, "Price: %s\n", formatMetric(sig.PriceUSD, "$%,.2f"))
	fmt.Fprintf(&b, "SM 7d z\\-score: %s\n", formatMetric(sig.SMZScore7d, "%.2f"))
	fmt.Fprintf(&b, "SM 30d z\\-score: %s\n", formatMetric(sig.SMZScore30d, "%.2f"))
	fmt.Fprintf(&b, "7d px return: %s\n", formatMetric(sig.PriceReturn7d, "%.2f%%"))
	fmt.Fprintf(&b, "Net flow to exchanges: %s\n", formatMetric(sig.NetExchangeFlowUSD, "$%,.0f"))
	fmt.Fprintf(&b, "Divergence 7d: %s\n", formatMetric(sig.Divergence7d, "%.2f"))

	if len(sig.Missing) > 0 {
		fmt.Fprintf(&b, "Unavailable: %s\n", escapeMarkdownV2(strings.Join(sig.Missing, ", ")))
	}

	return b.String()
}

// formatMetric renders an optional statistic, falling back to "n/a".
func formatMetric(m models.Metric, layout string) string {
	v, ok := m.Float()
	if !ok {
		return "n/a"
	}
	var s string
	switch layout {
	case "$%,.2f":
		s = "$" + groupThousands(fmt.Sprintf("%.2f", v))
	case "$%,.0f":
		s = "$" + groupThousands(fmt.Sprintf("%.0f", v))
	case "%.2f%%":
		s = fmt.Sprintf("%.2f%%", v*100)
	default:
		s = fmt.Sprintf(layout, v)
	}
	return escapeMarkdownV2(s)
}

// groupThousands inserts comma separators into the integer part of a
// formatted number.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
