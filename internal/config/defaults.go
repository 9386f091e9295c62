package config

import (
	"time"

	"github.com/spf13/viper"
)

// Task names known to the scheduler.
const (
	TaskLikeBoost      = "like_boost"
	TaskSQLMaintenance = "sql_maintenance"
)

const (
	DefaultLogLevel        = "info"
	DefaultDBPath          = "data/posts.db"
	DefaultSendRate        = 20
	DefaultHTTPAddr        = ":3001"
	DefaultUploadsDir      = "uploads"
	DefaultUploadsPrefix   = "/uploads"
	DefaultDownloadTimeout = 30 * time.Second
	DefaultMaxUploadBytes  = 10 * 1024 * 1024
	DefaultBoostMinTarget  = 500
	DefaultBoostMaxTarget  = 1100
	DefaultBoostDuration   = 7 * 24 * time.Hour
	DefaultSessionTTL      = 30 * time.Minute
	DefaultSessionMaxSize  = 1024
)

// Default user-facing texts.
const (
	DefaultWelcomeMsg = "🤖 Post Manager Bot\n\n" +
		"Commands:\n" +
		"/newpost - Create a new post\n" +
		"/listposts - List all posts\n" +
		"/editpost <id> - Edit a post\n" +
		"/deletepost <id> - Delete a post\n" +
		"/cancel - Cancel current operation"
	DefaultUnauthorizedMsg = "⛔ Access denied. You are not an admin."
	DefaultGenericErrorMsg = "❌ Something went wrong. Please try again."
	DefaultCancelledMsg    = "❌ Operation cancelled."
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_ids", []int64{})
	v.SetDefault("telegram.send_rate", DefaultSendRate)

	v.SetDefault("http.addr", DefaultHTTPAddr)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_origin", "*")

	v.SetDefault("uploads.dir", DefaultUploadsDir)
	v.SetDefault("uploads.url_prefix", DefaultUploadsPrefix)
	v.SetDefault("uploads.download_timeout", DefaultDownloadTimeout)
	v.SetDefault("uploads.max_bytes", DefaultMaxUploadBytes)

	v.SetDefault("boost.min_target", DefaultBoostMinTarget)
	v.SetDefault("boost.max_target", DefaultBoostMaxTarget)
	v.SetDefault("boost.duration", DefaultBoostDuration)

	v.SetDefault("session.ttl", DefaultSessionTTL)
	v.SetDefault("session.max_size", DefaultSessionMaxSize)

	v.SetDefault("scheduler.tasks", map[string]any{
		TaskLikeBoost: map[string]any{
			"enabled":      true,
			"interval":     "5m",
			"run_on_start": true,
		},
		TaskSQLMaintenance: map[string]any{
			"enabled":  true,
			"schedule": "0 0 3 * * *",
		},
	})

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.traces_sample_rate", 0.0)
	v.SetDefault("sentry.debug", false)

	v.SetDefault("messages.welcome", DefaultWelcomeMsg)
	v.SetDefault("messages.unauthorized", DefaultUnauthorizedMsg)
	v.SetDefault("messages.generic_error", DefaultGenericErrorMsg)
	v.SetDefault("messages.cancelled", DefaultCancelledMsg)
}
