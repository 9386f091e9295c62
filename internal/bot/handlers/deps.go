package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/sponsorbot/internal/config"
	"github.com/edgard/sponsorbot/internal/conversation"
)

// Conversation receives the events extracted from Telegram updates.
type Conversation interface {
	HandleCommand(ctx context.Context, chatID int64, cmd conversation.Command)
	HandleText(ctx context.Context, chatID int64, text conversation.Text)
	HandlePhoto(ctx context.Context, chatID int64, photo conversation.Photo)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Conversation Conversation
	Replier      conversation.Replier
}
