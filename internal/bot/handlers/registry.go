package handlers

import (
	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/sponsorbot/internal/conversation"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Description string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

var commandDescriptions = []struct {
	name        string
	description string
}{
	{conversation.CommandStart, "Show the available commands"},
	{conversation.CommandNewPost, "Create a new post"},
	{conversation.CommandListPosts, "List all posts"},
	{conversation.CommandEditPost, "Edit a post: /editpost <id>"},
	{conversation.CommandDeletePost, "Delete a post: /deletepost <id>"},
	{conversation.CommandCancel, "Cancel the current operation"},
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
// /start answers strangers with the unauthorized message; every other command
// ignores them.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler, len(commandDescriptions))

	for _, cmd := range commandDescriptions {
		notify := cmd.name == conversation.CommandStart
		handlers["/"+cmd.name] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     cmd.name,
			Description: cmd.description,
			Handler:     NewCommandHandler(deps, cmd.name),
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  []tgbot.Middleware{Recover(deps), AdminOnly(deps, notify)},
		}
	}

	return handlers
}

// NewDefaultHandler returns the handler for every update no command matched,
// wrapped in the same middleware as the commands.
func NewDefaultHandler(deps HandlerDeps) tgbot.HandlerFunc {
	handler := NewMessageHandler(deps)
	mw := []tgbot.Middleware{Recover(deps), AdminOnly(deps, false)}
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}
