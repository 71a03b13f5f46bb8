// Package telegram sends job failure notifications via the Telegram Bot API
// and answers a few operator commands.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/scheduler"
)

// Controller exposes the scheduler to bot commands.
type Controller interface {
	Status() []scheduler.JobStatus
	RunNow(name string) error
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
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

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands
// from the configured chat. It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, ctrl Controller) {
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
				if update.Message != nil && update.Message.IsCommand() && update.Message.Chat.ID == c.chatID {
					c.handleCommand(update.Message, ctrl)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, ctrl Controller) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		text = formatStatus(ctrl.Status(), time.Now())
	case "run":
		name := strings.TrimSpace(msg.CommandArguments())
		if err := ctrl.RunNow(name); err != nil {
			text = escapeMarkdownV2(err.Error())
		} else {
			text = fmt.Sprintf("Started *%s*", escapeMarkdownV2(name))
		}
	default:
		return
	}
	if err := c.sendMarkdownV2(text); err != nil {
		logger.Error("Failed to answer /%s: %v", msg.Command(), err)
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

// SendError sends a job failure notification.
// The scheduler calls this only on the first failure of a consecutive sequence.
func (c *Client) SendError(job string, jobErr error) error {
	return c.sendMarkdownV2(formatError(job, jobErr))
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(job string, failures int) error {
	return c.sendMarkdownV2(formatRecovery(job, failures))
}

func formatError(job string, jobErr error) string {
	return fmt.Sprintf("⚠️ *Job %s failed*\n`%s`", escapeMarkdownV2(job), escapeMarkdownV2(jobErr.Error()))
}

func formatRecovery(job string, failures int) string {
	return fmt.Sprintf("✅ *Job %s recovered* after %d consecutive failure\\(s\\)", escapeMarkdownV2(job), failures)
}

// formatStatus renders one line per job.
func formatStatus(jobs []scheduler.JobStatus, now time.Time) string {
	if len(jobs) == 0 {
		return "No jobs registered"
	}
	var b strings.Builder
	b.WriteString("📋 *Jobs*\n\n")
	for _, j := range jobs {
		icon := "🟢"
		switch {
		case j.Running:
			icon = "🔄"
		case j.ConsecutiveFailures > 0:
			icon = "🔴"
		}
		line := fmt.Sprintf("%s *%s*", icon, escapeMarkdownV2(j.Name))
		if !j.LastStart.IsZero() {
			ago := now.Sub(j.LastStart).Round(time.Second)
			line += escapeMarkdownV2(fmt.Sprintf(" last run %s ago (%s)", ago, j.LastDuration))
		} else {
			line += " never run"
		}
		if j.ConsecutiveFailures > 0 {
			line += escapeMarkdownV2(fmt.Sprintf(", %d failures: %s", j.ConsecutiveFailures, j.LastError))
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
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
