package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/sponsorbot/internal/bot/handlers"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSender struct {
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &models.Message{ID: len(f.sent)}, nil
}

func TestReplierSendsPlainText(t *testing.T) {
	sender := &fakeSender{}
	r := NewReplier(sender, 0, discard)

	require.NoError(t, r.SendText(context.Background(), 42, "hello"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, "hello", sender.sent[0].Text)
	assert.Empty(t, sender.sent[0].ParseMode)
	require.NotNil(t, sender.sent[0].LinkPreviewOptions)
	assert.True(t, *sender.sent[0].LinkPreviewOptions.IsDisabled)
}

func TestReplierWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewReplier(&fakeSender{err: boom}, 30, discard)

	err := r.SendText(context.Background(), 1, "x")
	assert.ErrorIs(t, err, boom)
}

func TestReplierHonoursCancelledContext(t *testing.T) {
	sender := &fakeSender{}
	r := NewReplier(sender, 0, discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.SendText(ctx, 1, "x"), context.Canceled)
	assert.Empty(t, sender.sent)
}

type fakeGetter struct {
	file *models.File
	err  error
}

func (f fakeGetter) GetFile(context.Context, *bot.GetFileParams) (*models.File, error) {
	return f.file, f.err
}

func TestFileURL(t *testing.T) {
	r := NewFileResolver(fakeGetter{file: &models.File{FilePath: "photos/file_1.jpg"}}, "123:abc")

	link, err := r.FileURL(context.Background(), "file-id")
	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org/file/bot123:abc/photos/file_1.jpg", link)
}

func TestFileURLFailures(t *testing.T) {
	tests := map[string]struct {
		getter FileGetter
		fileID string
	}{
		"empty id":   {getter: fakeGetter{file: &models.File{FilePath: "x"}}, fileID: ""},
		"api error":  {getter: fakeGetter{err: errors.New("boom")}, fileID: "f"},
		"no path":    {getter: fakeGetter{file: &models.File{}}, fileID: "f"},
		"nil result": {getter: fakeGetter{}, fileID: "f"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewFileResolver(tt.getter, "t").FileURL(context.Background(), tt.fileID)
			assert.Error(t, err)
		})
	}
}

func TestApplyMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) bot.Middleware {
		return func(next bot.HandlerFunc) bot.HandlerFunc {
			return func(ctx context.Context, b *bot.Bot, u *models.Update) {
				order = append(order, name)
				next(ctx, b, u)
			}
		}
	}
	h := applyMiddleware(func(context.Context, *bot.Bot, *models.Update) {
		order = append(order, "handler")
	}, []bot.Middleware{mw("outer"), mw("inner")})

	h(context.Background(), nil, &models.Update{})
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

type registration struct {
	pattern   string
	matchType bot.MatchType
}

type fakeRegistrar struct {
	registered []registration
}

func (f *fakeRegistrar) RegisterHandler(_ bot.HandlerType, pattern string, matchType bot.MatchType, _ bot.HandlerFunc, _ ...bot.Middleware) string {
	f.registered = append(f.registered, registration{pattern: pattern, matchType: matchType})
	return pattern
}

func TestRegisterHandlersSkipsNil(t *testing.T) {
	noop := func(context.Context, *bot.Bot, *models.Update) {}
	reg := &fakeRegistrar{}

	err := RegisterHandlers(reg, discard, map[string]handlers.RegisteredHandler{
		"/a": {HandlerType: bot.HandlerTypeMessageText, Pattern: "a", Handler: noop, MatchType: bot.MatchTypeCommand},
		"/b": {HandlerType: bot.HandlerTypeMessageText, Pattern: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []registration{{pattern: "a", matchType: bot.MatchTypeCommand}}, reg.registered)

	assert.Error(t, RegisterHandlers(nil, discard, nil))
}

type fakeCommandSetter struct {
	params *bot.SetMyCommandsParams
}

func (f *fakeCommandSetter) SetMyCommands(_ context.Context, params *bot.SetMyCommandsParams) (bool, error) {
	f.params = params
	return true, nil
}

func TestSetCommandsSortedAndDescribedOnly(t *testing.T) {
	setter := &fakeCommandSetter{}
	err := SetCommands(context.Background(), setter, map[string]handlers.RegisteredHandler{
		"/newpost": {Pattern: "newpost", Description: "Create a post"},
		"/cancel":  {Pattern: "cancel", Description: "Cancel"},
		"/hidden":  {Pattern: "hidden"},
	})
	require.NoError(t, err)
	require.NotNil(t, setter.params)
	assert.Equal(t, []models.BotCommand{
		{Command: "cancel", Description: "Cancel"},
		{Command: "newpost", Description: "Create a post"},
	}, setter.params.Commands)
}
