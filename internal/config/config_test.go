package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{legacyTokenEnv, legacyAdminIDsEnv, legacyPortEnv} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaultsWithLegacyEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("ADMIN_CHAT_IDS", "111, 222,,")
	t.Setenv("PORT", "8080")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "legacy-token", cfg.Telegram.Token)
	assert.Equal(t, []int64{111, 222}, cfg.Telegram.AdminIDs)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.Equal(t, DefaultLogLevel, cfg.Logger.Level)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, DefaultUploadsPrefix, cfg.Uploads.URLPrefix)
	assert.Equal(t, DefaultBoostMinTarget, cfg.Boost.MinTarget)
	assert.Equal(t, DefaultBoostMaxTarget, cfg.Boost.MaxTarget)
	assert.Equal(t, DefaultBoostDuration, cfg.Boost.Duration)
	assert.Equal(t, DefaultUnauthorizedMsg, cfg.Messages.Unauthorized)

	boost := cfg.Scheduler.Tasks[TaskLikeBoost]
	assert.True(t, boost.Enabled)
	assert.True(t, boost.RunOnStart)
	assert.Equal(t, 5*time.Minute, boost.Interval)
	assert.Equal(t, "0 0 3 * * *", cfg.Scheduler.Tasks[TaskSQLMaintenance].Schedule)

	assert.True(t, cfg.IsAdmin(222))
	assert.False(t, cfg.IsAdmin(333))
}

func TestLoadConfigFileAndPrefixedEnv(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
telegram:
  token: file-token
  admin_ids: [42]
boost:
  min_target: 10
  max_target: 20
  duration: 1h
scheduler:
  tasks:
    like_boost:
      interval: 1m
    sql_maintenance:
      enabled: false
`)
	clearLegacyEnv(t)
	t.Setenv("SPONSORBOT_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("PORT", "8080")
	t.Setenv("SPONSORBOT_LOGGER_JSON", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Logger.JSON)
	assert.Equal(t, "file-token", cfg.Telegram.Token)
	assert.Equal(t, []int64{42}, cfg.Telegram.AdminIDs)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr, "prefixed variable wins over PORT")
	assert.Equal(t, 10, cfg.Boost.MinTarget)
	assert.Equal(t, 20, cfg.Boost.MaxTarget)
	assert.Equal(t, time.Hour, cfg.Boost.Duration)
	assert.Equal(t, time.Minute, cfg.Scheduler.Tasks[TaskLikeBoost].Interval)
	assert.True(t, cfg.Scheduler.Tasks[TaskLikeBoost].Enabled, "unset keys keep their defaults")
	assert.False(t, cfg.Scheduler.Tasks[TaskSQLMaintenance].Enabled)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{
			name:    "missing token",
			content: "telegram:\n  admin_ids: [1]\n",
		},
		{
			name:    "missing admins",
			content: "telegram:\n  token: t\n",
		},
		{
			name:    "bad log level",
			content: "logger:\n  level: loud\ntelegram:\n  token: t\n  admin_ids: [1]\n",
		},
		{
			name:    "inverted boost range",
			content: "telegram:\n  token: t\n  admin_ids: [1]\nboost:\n  min_target: 10\n  max_target: 5\n",
		},
		{
			name:    "task without schedule",
			content: "telegram:\n  token: t\n  admin_ids: [1]\nscheduler:\n  tasks:\n    custom:\n      enabled: true\n",
		},
		{
			name:    "invalid legacy admin list",
			content: "telegram:\n  token: t\n",
			env:     map[string]string{"ADMIN_CHAT_IDS": "1,abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLegacyEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestParseChatIDs(t *testing.T) {
	ids, err := ParseChatIDs(" 1,-100200, 3 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -100200, 3}, ids)

	ids, err = ParseChatIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseChatIDs("x")
	assert.Error(t, err)
}
