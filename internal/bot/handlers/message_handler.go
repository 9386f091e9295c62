package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/sponsorbot/internal/conversation"
	"github.com/edgard/sponsorbot/internal/richtext"
)

type messageHandler struct {
	deps HandlerDeps
}

// NewMessageHandler creates a handler for plain messages: texts answer the
// current prompt and photos feed the image steps. Unknown slash commands and
// updates without a message are ignored.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

func (h messageHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg := update.Message
	if msg == nil {
		log.DebugContext(ctx, "Ignoring update without message", "update_id", update.ID)
		return
	}
	chatID := msg.Chat.ID

	if photo, ok := largestPhoto(msg.Photo); ok {
		log.DebugContext(ctx, "Handling photo", "chat_id", chatID, "message_id", msg.ID)
		h.deps.Conversation.HandlePhoto(ctx, chatID, conversation.Photo{
			FileID:          photo.FileID,
			Caption:         msg.Caption,
			CaptionEntities: convertEntities(msg.CaptionEntities),
		})
		return
	}

	if msg.Text == "" || strings.HasPrefix(msg.Text, "/") {
		log.DebugContext(ctx, "Ignoring message without text", "chat_id", chatID, "message_id", msg.ID)
		return
	}

	h.deps.Conversation.HandleText(ctx, chatID, conversation.Text{
		Body:     msg.Text,
		Entities: convertEntities(msg.Entities),
	})
}

// largestPhoto picks the size with the most pixels.
func largestPhoto(sizes []models.PhotoSize) (models.PhotoSize, bool) {
	if len(sizes) == 0 {
		return models.PhotoSize{}, false
	}
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best, best.FileID != ""
}

func convertEntities(entities []models.MessageEntity) []richtext.Entity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]richtext.Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, richtext.Entity{
			Type:     string(e.Type),
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		})
	}
	return out
}
