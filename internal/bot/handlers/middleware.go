// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/getsentry/sentry-go"
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AdminOnly creates a middleware that lets through only messages from chats in
// the admin allow-list. When notify is set, other chats are told they are not
// authorized; otherwise they are ignored.
func AdminOnly(deps HandlerDeps, notify bool) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil {
				return
			}

			chatID := update.Message.Chat.ID
			if deps.Config.IsAdmin(chatID) {
				next(ctx, bot, update)
				return
			}

			log := deps.Logger.With("middleware", "AdminOnly")
			var userID int64
			if update.Message.From != nil {
				userID = update.Message.From.ID
			}
			log.WarnContext(ctx, "Unauthorized access attempt", "user_id", userID, "chat_id", chatID)

			if !notify {
				return
			}
			if err := deps.Replier.SendText(ctx, chatID, deps.Config.Messages.Unauthorized); err != nil {
				log.ErrorContext(ctx, "Failed to send unauthorized message", "error", err, "chat_id", chatID)
			}
		}
	}
}

// Recover stops a panicking handler from taking the process down and reports
// the panic to Sentry.
func Recover(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				deps.Logger.ErrorContext(ctx, "Recovered from panic in update handler",
					"update_id", update.ID, "panic", fmt.Sprint(r))

				hub := sentry.CurrentHub().Clone()
				hub.ConfigureScope(func(scope *sentry.Scope) {
					scope.SetTag("update_id", strconv.FormatInt(update.ID, 10))
				})
				hub.RecoverWithContext(ctx, r)
			}()
			next(ctx, bot, update)
		}
	}
}
