// Package bot implements lifecycle management and component orchestration
// for the sponsor bot: the Telegram listener, the job scheduler and the
// posts API server.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// Poller receives Telegram updates until ctx is cancelled.
type Poller interface {
	Start(ctx context.Context)
}

// JobScheduler runs the scheduled tasks.
type JobScheduler interface {
	Start() error
	Stop() error
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger          *slog.Logger
	poller          Poller
	scheduler       JobScheduler
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewBot creates a new instance of the bot with all required dependencies.
// server may be nil to run without the HTTP API.
func NewBot(logger *slog.Logger, poller Poller, scheduler JobScheduler, server *http.Server, shutdownTimeout time.Duration) *Bot {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Bot{
		logger:          logger.With("component", "bot_orchestrator"),
		poller:          poller,
		scheduler:       scheduler,
		server:          server,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts the bot and all its components, handling graceful shutdown on context cancellation.
// It returns an error if any component fails during startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.poller.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if b.server != nil {
		g.Go(func() error {
			b.logger.Info("Starting HTTP server...", "addr", b.server.Addr)
			if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.logger.Error("HTTP server failed", "error", err)
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
			defer cancel()
			if err := b.server.Shutdown(shutdownCtx); err != nil {
				b.logger.Error("Error stopping HTTP server", "error", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
