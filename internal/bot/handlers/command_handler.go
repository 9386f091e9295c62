package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/sponsorbot/internal/conversation"
)

// NewCommandHandler returns a handler that forwards the command name and its
// arguments to the conversation.
func NewCommandHandler(deps HandlerDeps, name string) bot.HandlerFunc {
	return commandHandler{deps: deps, name: name}.Handle
}

type commandHandler struct {
	deps HandlerDeps
	name string
}

func (h commandHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	if update.Message == nil {
		log.WarnContext(ctx, "Command handler received update without message", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling command", "chat_id", chatID)

	h.deps.Conversation.HandleCommand(ctx, chatID, conversation.Command{
		Name: h.name,
		Args: commandArgs(update.Message.Text),
	})
}

// commandArgs returns what follows the command word, e.g. "12" for
// "/editpost@sponsor_bot 12". Only the separating whitespace is removed.
func commandArgs(text string) string {
	text = strings.TrimLeft(text, " ")
	i := strings.IndexAny(text, " \n\t")
	if i < 0 {
		return ""
	}
	return text[i+1:]
}
