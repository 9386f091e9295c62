package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edgard/sponsorbot/internal/database"
	"github.com/edgard/sponsorbot/internal/richtext"
	"github.com/edgard/sponsorbot/internal/session"
)

const chat int64 = 100

// --- Mocks ---

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListPosts(ctx context.Context) ([]database.Post, error) {
	args := m.Called(ctx)
	posts, _ := args.Get(0).([]database.Post)
	return posts, args.Error(1)
}

func (m *MockStore) GetPost(ctx context.Context, id int64) (*database.Post, error) {
	args := m.Called(ctx, id)
	post, _ := args.Get(0).(*database.Post)
	return post, args.Error(1)
}

func (m *MockStore) CreatePost(ctx context.Context, post *database.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockStore) UpdatePost(ctx context.Context, id int64, update database.PostUpdate) (*database.Post, error) {
	args := m.Called(ctx, id, update)
	post, _ := args.Get(0).(*database.Post)
	return post, args.Error(1)
}

func (m *MockStore) DeletePost(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type recordingReplier struct {
	mu      sync.Mutex
	replies []string
}

func (r *recordingReplier) SendText(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	return nil
}

func (r *recordingReplier) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1]
}

func (r *recordingReplier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

type fakeImages struct {
	url    string
	err    error
	calls  int
	onSave func()

	// started is closed when a download begins; block then waits for ctx.
	started chan struct{}
	block   bool
}

func (f *fakeImages) SaveImage(ctx context.Context, _ string) (string, error) {
	f.calls++
	if f.onSave != nil {
		f.onSave()
	}
	if f.started != nil {
		close(f.started)
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.url, f.err
}

type fixture struct {
	engine   *Engine
	store    *MockStore
	replier  *recordingReplier
	images   *fakeImages
	sessions *session.Store
	msg      Messages
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &MockStore{},
		replier:  &recordingReplier{},
		images:   &fakeImages{url: "/uploads/post-1.jpg"},
		sessions: session.NewStore(time.Minute, 16),
		msg:      DefaultMessages(),
	}
	engine, err := NewEngine(Deps{
		Store:    f.store,
		Replier:  f.replier,
		Images:   f.images,
		Sessions: f.sessions,
	})
	require.NoError(t, err)
	f.engine = engine
	t.Cleanup(func() { f.store.AssertExpectations(t) })
	return f
}

func (f *fixture) command(name, args string) {
	f.engine.HandleCommand(context.Background(), chat, Command{Name: name, Args: args})
}

func (f *fixture) text(body string) {
	f.engine.HandleText(context.Background(), chat, Text{Body: body})
}

func (f *fixture) step() session.Step {
	return f.sessions.Get(chat).Step
}

func strPtr(s string) *string { return &s }

// --- Tests ---

func TestCreateRoundTrip(t *testing.T) {
	f := newFixture(t)

	f.store.On("CreatePost", mock.Anything, mock.MatchedBy(func(p *database.Post) bool {
		return p.Description == "Hello" && p.ImageURL == "" && p.DetailsText == "" &&
			p.TelegramLink == "" && p.WhatsappLink == "" && p.InstagramLink == ""
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*database.Post).ID = 1
	}).Return(nil).Once()
	f.store.On("GetPost", mock.Anything, int64(1)).Return(&database.Post{ID: 1, Description: "Hello"}, nil).Once()

	f.command("newpost", "")
	assert.Equal(t, f.msg.TextPrompt, f.replier.last())

	for _, answer := range []string{"Hello", "skip", "SKIP", "skip", "Skip", "skip"} {
		f.text(answer)
	}
	assert.Equal(t, session.StepConfirmCreate, f.step())
	assert.Contains(t, f.replier.last(), "Text: Hello")

	f.text("yes")
	assert.Equal(t, "✅ Post created! ID #1", f.replier.last())
	assert.True(t, f.sessions.Get(chat).Idle())
	f.store.AssertNumberOfCalls(t, "CreatePost", 1)
}

func TestCreateKeepsFormattingAndLinks(t *testing.T) {
	f := newFixture(t)

	var created *database.Post
	f.store.On("CreatePost", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*database.Post)
		created.ID = 3
	}).Return(nil).Once()
	f.store.On("GetPost", mock.Anything, int64(3)).Return(&database.Post{ID: 3}, nil).Once()

	f.command("newpost", "")
	f.engine.HandleText(context.Background(), chat, Text{
		Body:     "Big sale",
		Entities: []richtext.Entity{{Type: richtext.KindBold, Offset: 0, Length: 3}},
	})
	f.text("skip")
	f.text("More <info>")
	f.text("https://t.me/shop")
	f.text("skip")
	f.text("https://instagram.com/shop")
	f.text("YES")

	require.NotNil(t, created)
	assert.Equal(t, "<b>Big</b> sale", created.Description)
	assert.Equal(t, "More &lt;info&gt;", created.DetailsText)
	assert.Equal(t, "https://t.me/shop", created.TelegramLink)
	assert.Empty(t, created.WhatsappLink)
	assert.Equal(t, "https://instagram.com/shop", created.InstagramLink)
}

func TestCancelFromEveryCreateStep(t *testing.T) {
	answers := []string{"Hello", "skip", "details", "tg", "wa", "ig"}

	for n := 0; n <= len(answers); n++ {
		f := newFixture(t)
		f.command("newpost", "")
		for _, a := range answers[:n] {
			f.text(a)
		}
		require.False(t, f.sessions.Get(chat).Idle())

		f.command("cancel", "")
		assert.Equal(t, f.msg.Cancelled, f.replier.last())
		assert.True(t, f.sessions.Get(chat).Idle())

		f.text("YES")
		f.store.AssertNotCalled(t, "CreatePost", mock.Anything, mock.Anything)
	}
}

func TestCancelFromEditAndDeleteSteps(t *testing.T) {
	post := &database.Post{ID: 7, Description: "Sponsor"}
	tests := []struct {
		name    string
		command string
		answers []string
	}{
		{name: "edit field", command: "editpost"},
		{name: "edit value", command: "editpost", answers: []string{"telegram"}},
		{name: "delete confirm", command: "deletepost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.On("GetPost", mock.Anything, int64(7)).Return(post, nil).Once()

			f.command(tt.command, "7")
			for _, a := range tt.answers {
				f.text(a)
			}
			require.False(t, f.sessions.Get(chat).Idle())

			f.command("cancel", "")
			assert.True(t, f.sessions.Get(chat).Idle())
			f.text("YES")
			f.store.AssertNotCalled(t, "UpdatePost", mock.Anything, mock.Anything, mock.Anything)
			f.store.AssertNotCalled(t, "DeletePost", mock.Anything, mock.Anything)
		})
	}
}

func TestConfirmOtherThanYesDiscards(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")
	for _, a := range []string{"Hello", "skip", "skip", "skip", "skip", "skip"} {
		f.text(a)
	}
	f.text("nope")

	assert.Equal(t, f.msg.CreationCancelled, f.replier.last())
	assert.True(t, f.sessions.Get(chat).Idle())
	f.store.AssertNotCalled(t, "CreatePost", mock.Anything, mock.Anything)
}

func TestTextStepIsRequired(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")

	f.text("skip")
	assert.Equal(t, f.msg.TextRequired, f.replier.last())
	f.text("   ")
	assert.Equal(t, f.msg.TextRequired, f.replier.last())
	assert.Equal(t, session.StepAwaitingText, f.step())
}

func TestImageStepRejectsText(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")
	f.text("Hello")

	f.text("https://example.com/pic.jpg")
	assert.Equal(t, f.msg.PhotoExpected, f.replier.last())
	assert.Equal(t, session.StepAwaitingImage, f.step())
}

func TestPhotoWithCaptionSkipsImageStep(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")

	f.engine.HandlePhoto(context.Background(), chat, Photo{
		FileID:          "file-1",
		Caption:         "Hi there",
		CaptionEntities: []richtext.Entity{{Type: richtext.KindItalic, Offset: 0, Length: 2}},
	})

	sess := f.sessions.Get(chat)
	assert.Equal(t, session.StepAwaitingDetails, sess.Step)
	assert.Equal(t, "<i>Hi</i> there", sess.Draft.Text)
	assert.Equal(t, "/uploads/post-1.jpg", sess.Draft.ImageURL)
	assert.True(t, strings.HasPrefix(f.replier.last(), f.msg.ImageSaved))
}

func TestPhotoWithoutCaptionInTextStep(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")

	f.engine.HandlePhoto(context.Background(), chat, Photo{FileID: "file-1"})
	assert.Equal(t, f.msg.TextRequired, f.replier.last())
	assert.Equal(t, session.StepAwaitingText, f.step())
	assert.Zero(t, f.images.calls, "nothing is downloaded")
}

func TestPhotoFailureKeepsStep(t *testing.T) {
	f := newFixture(t)
	f.images.err = errors.New("timeout")
	f.command("newpost", "")
	f.text("Hello")

	f.engine.HandlePhoto(context.Background(), chat, Photo{FileID: "file-1"})
	assert.Equal(t, f.msg.PhotoFailed, f.replier.last())
	assert.Equal(t, session.StepAwaitingImage, f.step())

	f.images.err = nil
	f.engine.HandlePhoto(context.Background(), chat, Photo{FileID: "file-1"})
	sess := f.sessions.Get(chat)
	assert.Equal(t, session.StepAwaitingDetails, sess.Step)
	assert.Equal(t, "/uploads/post-1.jpg", sess.Draft.ImageURL)
}

func TestStalePhotoResultIsDropped(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")
	f.text("Hello")
	replies := f.replier.count()

	f.images.onSave = func() { f.sessions.Reset(chat) }
	f.engine.HandlePhoto(context.Background(), chat, Photo{FileID: "file-1"})

	assert.True(t, f.sessions.Get(chat).Idle())
	assert.Equal(t, replies, f.replier.count())
}

func TestCancelDuringPhotoDownload(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")
	f.text("Hello")
	f.images.started = make(chan struct{})
	f.images.block = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.engine.HandlePhoto(context.Background(), chat, Photo{FileID: "file-1"})
	}()
	<-f.images.started

	// The download holds no lock, so the command is answered right away.
	f.command("cancel", "")
	assert.Equal(t, f.msg.Cancelled, f.replier.last())

	f.engine.CancelPending(chat)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("photo turn did not stop after CancelPending")
	}

	assert.True(t, f.sessions.Get(chat).Idle())
	assert.Equal(t, f.msg.Cancelled, f.replier.last())
}

func TestInterruptedPhotoKeepsStepSilently(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")
	f.text("Hello")
	replies := f.replier.count()
	f.images.started = make(chan struct{})
	f.images.block = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.engine.HandlePhoto(context.Background(), chat, Photo{FileID: "file-1"})
	}()
	<-f.images.started
	f.engine.CancelPending(chat)
	<-done

	assert.Equal(t, session.StepAwaitingImage, f.step())
	assert.Equal(t, replies, f.replier.count())
}

func TestPhotoIgnoredOutsidePhotoSteps(t *testing.T) {
	f := newFixture(t)
	f.engine.HandlePhoto(context.Background(), chat, Photo{FileID: "file-1"})
	assert.Zero(t, f.images.calls)
	assert.Zero(t, f.replier.count())
}

func TestIdleTextIgnored(t *testing.T) {
	f := newFixture(t)
	f.text("hello bot")
	assert.Zero(t, f.replier.count())
}

func TestUnknownCommandIgnored(t *testing.T) {
	f := newFixture(t)
	f.command("newpost", "")
	f.command("frobnicate", "")
	assert.Equal(t, session.StepAwaitingText, f.step(), "unknown commands do not reset")
	assert.Equal(t, 1, f.replier.count())
}

func TestStartSendsHelp(t *testing.T) {
	f := newFixture(t)
	f.command("/start", "")
	assert.Equal(t, f.msg.Welcome, f.replier.last())
}

func TestMalformedIDsIgnored(t *testing.T) {
	f := newFixture(t)
	for _, args := range []string{"", "abc", "-3", "0", "1.5"} {
		f.command("editpost", args)
		f.command("deletepost", args)
	}
	assert.Zero(t, f.replier.count())
	f.store.AssertNotCalled(t, "GetPost", mock.Anything, mock.Anything)
}

func TestEditUnknownPost(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetPost", mock.Anything, int64(9)).Return(nil, nil).Once()

	f.command("editpost", "9")
	assert.Equal(t, "❌ Post #9 not found.", f.replier.last())
	assert.True(t, f.sessions.Get(chat).Idle())
}

func TestEditTelegramLink(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetPost", mock.Anything, int64(5)).Return(&database.Post{ID: 5, Description: "<b>Shop</b>"}, nil).Once()
	f.store.On("UpdatePost", mock.Anything, int64(5), database.PostUpdate{TelegramLink: strPtr("https://t.me/new")}).
		Return(&database.Post{ID: 5}, nil).Once()

	f.command("editpost", "5")
	assert.Contains(t, f.replier.last(), `post #5 "Shop"`)

	f.text("TG")
	assert.Equal(t, `📝 Send new value for "telegramLink":`, f.replier.last())

	f.text("https://t.me/new")
	assert.Equal(t, `✅ Post #5 updated! Field "telegramLink" changed.`, f.replier.last())
	assert.True(t, f.sessions.Get(chat).Idle())
	f.store.AssertNumberOfCalls(t, "UpdatePost", 1)
}

func TestEditSkipClearsOptionalField(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetPost", mock.Anything, int64(5)).Return(&database.Post{ID: 5}, nil).Once()
	f.store.On("UpdatePost", mock.Anything, int64(5), database.PostUpdate{DetailsText: strPtr("")}).
		Return(&database.Post{ID: 5}, nil).Once()

	f.command("editpost", "5")
	f.text("details")
	f.text("skip")
}

func TestEditDescriptionIsRequired(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetPost", mock.Anything, int64(5)).Return(&database.Post{ID: 5}, nil).Once()

	f.command("editpost", "5")
	f.text("description")
	f.text("skip")

	assert.Equal(t, session.StepAwaitingEditValue, f.step())
	f.store.AssertNotCalled(t, "UpdatePost", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditUnknownFieldResets(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetPost", mock.Anything, int64(5)).Return(&database.Post{ID: 5}, nil).Once()

	f.command("editpost", "5")
	f.text("title")

	assert.Contains(t, f.replier.last(), `Unknown field "title"`)
	assert.True(t, f.sessions.Get(chat).Idle())
	f.store.AssertNotCalled(t, "UpdatePost", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditImage(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetPost", mock.Anything, int64(5)).Return(&database.Post{ID: 5}, nil).Once()
	f.store.On("UpdatePost", mock.Anything, int64(5), database.PostUpdate{ImageURL: strPtr("/uploads/post-1.jpg")}).
		Return(&database.Post{ID: 5}, nil).Once()

	f.command("editpost", "5")
	f.text("image")
	assert.Equal(t, f.msg.EditImagePrompt, f.replier.last())

	f.text("not a photo")
	assert.Equal(t, f.msg.EditImagePrompt, f.replier.last())
	assert.Equal(t, session.StepAwaitingEditValue, f.step())

	f.engine.HandlePhoto(context.Background(), chat, Photo{FileID: "file-2"})
	assert.Equal(t, "✅ Post #5 image updated!", f.replier.last())
	assert.True(t, f.sessions.Get(chat).Idle())
}

func TestDeleteFlow(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetPost", mock.Anything, int64(7)).Return(&database.Post{ID: 7, Description: "Bye"}, nil).Twice()
	f.store.On("DeletePost", mock.Anything, int64(7)).Return(true, nil).Once()

	f.command("deletepost", "7")
	assert.Equal(t, "🗑 Delete post #7 \"Bye\"?\nSend YES to confirm:", f.replier.last())
	f.text("no")
	assert.Equal(t, f.msg.DeleteCancelled, f.replier.last())

	f.command("deletepost", "7")
	f.text("YES")
	assert.Equal(t, "✅ Post #7 deleted.", f.replier.last())
	assert.True(t, f.sessions.Get(chat).Idle())
	f.store.AssertNumberOfCalls(t, "DeletePost", 1)
}

func TestStoreFailureResets(t *testing.T) {
	f := newFixture(t)
	f.store.On("CreatePost", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	f.command("newpost", "")
	for _, a := range []string{"Hello", "skip", "skip", "skip", "skip", "skip", "YES"} {
		f.text(a)
	}
	assert.Equal(t, f.msg.GenericError, f.replier.last())
	assert.True(t, f.sessions.Get(chat).Idle())
}

func TestListPosts(t *testing.T) {
	f := newFixture(t)
	f.store.On("ListPosts", mock.Anything).Return([]database.Post{}, nil).Once()
	f.command("listposts", "")
	assert.Equal(t, f.msg.NoPosts, f.replier.last())

	f.store.On("ListPosts", mock.Anything).Return([]database.Post{
		{ID: 1, Description: "<b>First</b> post", LikeCount: 10},
		{ID: 2, Description: "Second", LikeCount: 0},
	}, nil).Once()
	f.command("listposts", "")
	assert.Equal(t, "📋 Posts:\n#1 - First post (❤️ 10)\n#2 - Second (❤️ 0)", f.replier.last())
}

func TestChunkLines(t *testing.T) {
	chunks := chunkLines("H", []string{"aaaa", "bbbb", "cccc"}, 10)
	assert.Equal(t, []string{"H\naaaa", "bbbb\ncccc"}, chunks)
}

func TestLookupField(t *testing.T) {
	for _, name := range []string{"telegramLink", "TELEGRAM", "tg"} {
		f, ok := LookupField(name)
		require.True(t, ok, name)
		assert.Equal(t, "telegramLink", f.Name)
	}
	_, ok := LookupField("title")
	assert.False(t, ok)
}
