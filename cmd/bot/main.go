// Package main contains the entrypoint for the sponsor bot: the Telegram
// admin bot, the like boost scheduler and the posts API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/sponsorbot/internal/api"
	"github.com/edgard/sponsorbot/internal/boost"
	"github.com/edgard/sponsorbot/internal/bot"
	"github.com/edgard/sponsorbot/internal/bot/handlers"
	"github.com/edgard/sponsorbot/internal/bot/tasks"
	"github.com/edgard/sponsorbot/internal/config"
	"github.com/edgard/sponsorbot/internal/conversation"
	"github.com/edgard/sponsorbot/internal/database"
	"github.com/edgard/sponsorbot/internal/logger"
	"github.com/edgard/sponsorbot/internal/media"
	"github.com/edgard/sponsorbot/internal/session"
	"github.com/edgard/sponsorbot/internal/telegram"
)

const sentryFlushTimeout = 2 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
			Debug:            cfg.Sentry.Debug,
		})
		if err != nil {
			log.Error("Failed to initialize Sentry", "error", err)
			return 1
		}
		defer sentry.Flush(sentryFlushTimeout)
		log.Info("Sentry error reporting enabled", "environment", cfg.Sentry.Environment)
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	// The default handler and the cancel hook need the conversation, which
	// needs the bot to send replies, so they are bound once everything is built.
	var defaultHandler tgbot.HandlerFunc
	var engine *conversation.Engine
	sequencer := handlers.NewChatSequencer(log, func(chatID int64) {
		if engine != nil {
			engine.CancelPending(chatID)
		}
	})
	defer sequencer.Wait()

	// Updates are dispatched synchronously so the sequencer sees them in
	// arrival order; it hands each chat's turns to its own goroutine.
	botOpts := []tgbot.Option{
		tgbot.WithNotAsyncHandlers(),
		tgbot.WithMiddlewares(sequencer.Middleware, logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if defaultHandler != nil {
				defaultHandler(ctx, b, update)
			}
		}),
		tgbot.WithErrorsHandler(func(err error) {
			log.Error("Telegram polling error", "error", err)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	replier := telegram.NewReplier(tg, cfg.Telegram.SendRate, log)
	images, err := media.NewStore(telegram.NewFileResolver(tg, cfg.Telegram.Token), media.Config{
		Dir:       cfg.Uploads.Dir,
		URLPrefix: cfg.Uploads.URLPrefix,
		Timeout:   cfg.Uploads.DownloadTimeout,
		MaxBytes:  cfg.Uploads.MaxBytes,
	}, log)
	if err != nil {
		log.Error("Failed to initialize media store", "dir", cfg.Uploads.Dir, "error", err)
		return 1
	}

	engine, err = conversation.NewEngine(conversation.Deps{
		Store:    store,
		Replier:  replier,
		Images:   images,
		Sessions: session.NewStore(cfg.Session.TTL, cfg.Session.MaxSize),
		Logger:   log,
		Messages: conversationMessages(cfg.Messages),
	})
	if err != nil {
		log.Error("Failed to initialize conversation engine", "error", err)
		return 1
	}

	booster, err := boost.NewEngine(store, boost.Config{
		MinTarget: cfg.Boost.MinTarget,
		MaxTarget: cfg.Boost.MaxTarget,
		Duration:  cfg.Boost.Duration,
	}, clockwork.NewRealClock(), rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), log)
	if err != nil {
		log.Error("Failed to initialize like boost", "error", err)
		return 1
	}

	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Conversation: engine,
		Replier:      replier,
	}
	tDeps := tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Booster: booster,
		Config:  cfg,
	}

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	defaultHandler = handlers.NewDefaultHandler(hDeps)

	if err := telegram.SetCommands(ctx, tg, cmdHandlers); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	apiServer, err := api.NewServer(store, api.Options{
		CORSOrigin:    cfg.HTTP.CORSOrigin,
		UploadsDir:    cfg.Uploads.Dir,
		UploadsPrefix: cfg.Uploads.URLPrefix,
	}, log)
	if err != nil {
		log.Error("Failed to create API server", "error", err)
		return 1
	}
	httpServer := api.NewHTTPServer(cfg.HTTP.Addr, apiServer.Handler(), cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)

	app := bot.NewBot(log, tg, sched, httpServer, cfg.HTTP.ShutdownTimeout)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		sentry.CaptureException(runErr)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

// conversationMessages applies the configured texts over the defaults.
func conversationMessages(cfg config.MessagesConfig) conversation.Messages {
	msgs := conversation.DefaultMessages()
	if cfg.Welcome != "" {
		msgs.Welcome = cfg.Welcome
	}
	if cfg.GenericError != "" {
		msgs.GenericError = cfg.GenericError
	}
	if cfg.Cancelled != "" {
		msgs.Cancelled = cfg.Cancelled
	}
	return msgs
}
