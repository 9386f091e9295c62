package handlers

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/sponsorbot/internal/conversation"
)

// ChatSequencer runs the updates of each chat one at a time, in the order
// they reach Middleware. Different chats are handled concurrently.
//
// Order is only preserved if the bot calls middleware synchronously, so the
// bot must be built with bot.WithNotAsyncHandlers.
type ChatSequencer struct {
	logger    *slog.Logger
	interrupt func(chatID int64)

	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
}

// NewChatSequencer creates a ChatSequencer. interrupt, when not nil, is
// called as soon as a /cancel update arrives, before earlier updates of the
// chat have finished.
func NewChatSequencer(logger *slog.Logger, interrupt func(chatID int64)) *ChatSequencer {
	return &ChatSequencer{
		logger:    logger.With("component", "sequencer"),
		interrupt: interrupt,
		queues:    make(map[int64][]func()),
	}
}

// Middleware queues the update on its chat and returns without waiting.
// Updates without a chat run on their own goroutine.
func (s *ChatSequencer) Middleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		run := func() { next(ctx, b, update) }

		if update.Message == nil {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				run()
			}()
			return
		}

		chatID := update.Message.Chat.ID
		if s.interrupt != nil && isCancel(update.Message.Text) {
			s.logger.DebugContext(ctx, "Interrupting pending work for cancel", "chat_id", chatID)
			s.interrupt(chatID)
		}
		s.enqueue(chatID, run)
	}
}

// Wait blocks until every queued update has been handled.
func (s *ChatSequencer) Wait() {
	s.wg.Wait()
}

func (s *ChatSequencer) enqueue(chatID int64, fn func()) {
	s.mu.Lock()
	pending, running := s.queues[chatID]
	s.queues[chatID] = append(pending, fn)
	if !running {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if !running {
		go s.drain(chatID)
	}
}

// drain runs the queue of chatID until it is empty, then forgets it.
func (s *ChatSequencer) drain(chatID int64) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		queue := s.queues[chatID]
		if len(queue) == 0 {
			delete(s.queues, chatID)
			s.mu.Unlock()
			return
		}
		fn := queue[0]
		queue[0] = nil
		s.queues[chatID] = queue[1:]
		s.mu.Unlock()

		fn()
	}
}

// isCancel reports whether text is the /cancel command, with or without
// the bot username.
func isCancel(text string) bool {
	word, _, _ := strings.Cut(strings.TrimLeft(text, " "), " ")
	word, _, _ = strings.Cut(word, "\n")
	word, _, _ = strings.Cut(word, "@")
	return strings.EqualFold(word, "/"+conversation.CommandCancel)
}
