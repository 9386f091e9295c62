package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/ratelimit"
)

const sendMessageTimeout = 10 * time.Second

// MessageSender is the part of *bot.Bot used to send messages.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Replier sends plain text messages, paced so that the bot stays under the
// Bot API flood limits.
type Replier struct {
	sender  MessageSender
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

// NewReplier returns a Replier allowing at most perSecond messages per second.
// A non-positive rate disables pacing.
func NewReplier(sender MessageSender, perSecond int, logger *slog.Logger) *Replier {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := ratelimit.NewUnlimited()
	if perSecond > 0 {
		limiter = ratelimit.New(perSecond)
	}
	return &Replier{
		sender:  sender,
		limiter: limiter,
		logger:  logger.With("component", "replier"),
	}
}

// SendText sends text to chatID without link previews.
func (r *Replier) SendText(ctx context.Context, chatID int64, text string) error {
	r.limiter.Take()
	if err := ctx.Err(); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	_, err := r.sender.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
		return fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	return nil
}
