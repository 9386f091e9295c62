// Package conversation implements the admin dialogue that creates, edits
// and deletes posts. It is independent of the Telegram transport: callers
// feed it commands, texts and photos and it answers through a Replier.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/edgard/sponsorbot/internal/database"
	"github.com/edgard/sponsorbot/internal/richtext"
	"github.com/edgard/sponsorbot/internal/session"
)

const (
	skipWord       = "skip"
	confirmWord    = "YES"
	previewRunes   = 100
	listRunes      = 50
	maxMessageSize = 4000
)

var errDownloadInterrupted = errors.New("photo download interrupted")

// Command names understood by HandleCommand.
const (
	CommandStart      = "start"
	CommandNewPost    = "newpost"
	CommandListPosts  = "listposts"
	CommandEditPost   = "editpost"
	CommandDeletePost = "deletepost"
	CommandCancel     = "cancel"
)

// PostStore is the subset of database.Store used by the conversation.
type PostStore interface {
	ListPosts(ctx context.Context) ([]database.Post, error)
	GetPost(ctx context.Context, id int64) (*database.Post, error)
	CreatePost(ctx context.Context, post *database.Post) error
	UpdatePost(ctx context.Context, id int64, update database.PostUpdate) (*database.Post, error)
	DeletePost(ctx context.Context, id int64) (bool, error)
}

// Replier sends plain text to a chat.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// ImageStore persists a Telegram photo and returns its public URL.
type ImageStore interface {
	SaveImage(ctx context.Context, fileID string) (string, error)
}

// Command is a slash command without the leading slash.
type Command struct {
	Name string
	Args string
}

// Text is a plain message with its formatting entities.
type Text struct {
	Body     string
	Entities []richtext.Entity
}

// Photo is a photo message. FileID refers to the largest available size.
type Photo struct {
	FileID          string
	Caption         string
	CaptionEntities []richtext.Entity
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store    PostStore
	Replier  Replier
	Images   ImageStore
	Sessions *session.Store
	Logger   *slog.Logger
	Messages Messages
}

// Engine drives the per-chat state machine.
type Engine struct {
	store    PostStore
	replier  Replier
	images   ImageStore
	sessions *session.Store
	logger   *slog.Logger
	msg      Messages

	downloadsMu sync.Mutex
	downloads   map[int64]map[*download]struct{}
}

// NewEngine validates deps and returns an Engine.
func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("conversation engine requires a post store")
	case deps.Replier == nil:
		return nil, errors.New("conversation engine requires a replier")
	case deps.Images == nil:
		return nil, errors.New("conversation engine requires an image store")
	case deps.Sessions == nil:
		return nil, errors.New("conversation engine requires a session store")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Messages == (Messages{}) {
		deps.Messages = DefaultMessages()
	}

	return &Engine{
		store:     deps.Store,
		replier:   deps.Replier,
		images:    deps.Images,
		sessions:  deps.Sessions,
		logger:    deps.Logger.With("component", "conversation"),
		msg:       deps.Messages,
		downloads: make(map[int64]map[*download]struct{}),
	}, nil
}

// IsCommand reports whether name is a command handled by the engine.
func IsCommand(name string) bool {
	switch strings.ToLower(name) {
	case CommandStart, CommandNewPost, CommandListPosts, CommandEditPost, CommandDeletePost, CommandCancel:
		return true
	}
	return false
}

// HandleCommand resets the chat and runs cmd. Unknown commands and
// malformed post ids are ignored.
func (e *Engine) HandleCommand(ctx context.Context, chatID int64, cmd Command) {
	name := strings.ToLower(strings.TrimPrefix(cmd.Name, "/"))
	if !IsCommand(name) {
		return
	}

	unlock := e.sessions.Lock(chatID)
	defer unlock()

	e.sessions.Reset(chatID)
	log := e.logger.With("chat_id", chatID, "command", name)
	log.DebugContext(ctx, "Handling command")

	switch name {
	case CommandStart:
		e.reply(ctx, chatID, e.msg.Welcome)

	case CommandCancel:
		e.reply(ctx, chatID, e.msg.Cancelled)

	case CommandNewPost:
		e.sessions.Save(chatID, session.Session{Step: session.StepAwaitingText})
		e.reply(ctx, chatID, e.msg.TextPrompt)

	case CommandListPosts:
		e.listPosts(ctx, chatID)

	case CommandEditPost, CommandDeletePost:
		id, ok := parseID(cmd.Args)
		if !ok {
			log.DebugContext(ctx, "Ignoring command with malformed post id", "args", cmd.Args)
			return
		}
		post, err := e.store.GetPost(ctx, id)
		if err != nil {
			e.fail(ctx, chatID, "load post", err)
			return
		}
		if post == nil {
			e.reply(ctx, chatID, fmt.Sprintf(e.msg.NotFoundFmt, id))
			return
		}

		title := preview(post.Description, listRunes)
		if name == CommandEditPost {
			e.sessions.Save(chatID, session.Session{Step: session.StepAwaitingEditField, EditPostID: id})
			e.reply(ctx, chatID, fmt.Sprintf(e.msg.EditFieldFmt, id, title, fieldNames()))
			return
		}
		e.sessions.Save(chatID, session.Session{Step: session.StepAwaitingDeleteConfirm, EditPostID: id})
		e.reply(ctx, chatID, fmt.Sprintf(e.msg.DeleteConfirmFmt, id, title))
	}
}

// HandleText answers the prompt of the current step. Text in an idle chat
// is ignored.
func (e *Engine) HandleText(ctx context.Context, chatID int64, text Text) {
	unlock := e.sessions.Lock(chatID)
	defer unlock()

	sess := e.sessions.Get(chatID)
	if sess.Idle() {
		return
	}

	value := strings.TrimSpace(text.Body)
	skip := strings.EqualFold(value, skipWord)

	switch sess.Step {
	case session.StepAwaitingText:
		if value == "" || skip {
			e.reply(ctx, chatID, e.msg.TextRequired)
			return
		}
		sess.Draft.Text = richtext.ToHTML(text.Body, text.Entities)
		e.advance(ctx, chatID, sess, session.StepAwaitingImage, e.msg.ImagePrompt)

	case session.StepAwaitingImage:
		if !skip {
			e.reply(ctx, chatID, e.msg.PhotoExpected)
			return
		}
		sess.Draft.ImageURL = ""
		e.advance(ctx, chatID, sess, session.StepAwaitingDetails, e.msg.DetailsPrompt)

	case session.StepAwaitingDetails:
		sess.Draft.DetailsText = optionalRich(text, skip)
		e.advance(ctx, chatID, sess, session.StepAwaitingTelegramLink, e.msg.TelegramPrompt)

	case session.StepAwaitingTelegramLink:
		sess.Draft.TelegramLink = optional(value, skip)
		e.advance(ctx, chatID, sess, session.StepAwaitingWhatsappLink, e.msg.WhatsappPrompt)

	case session.StepAwaitingWhatsappLink:
		sess.Draft.WhatsappLink = optional(value, skip)
		e.advance(ctx, chatID, sess, session.StepAwaitingInstagramLink, e.msg.InstagramPrompt)

	case session.StepAwaitingInstagramLink:
		sess.Draft.InstagramLink = optional(value, skip)
		e.advance(ctx, chatID, sess, session.StepConfirmCreate, e.summary(sess.Draft))

	case session.StepConfirmCreate:
		if !strings.EqualFold(value, confirmWord) {
			e.sessions.Reset(chatID)
			e.reply(ctx, chatID, e.msg.CreationCancelled)
			return
		}
		e.createPost(ctx, chatID, sess.Draft)

	case session.StepAwaitingEditField:
		field, ok := LookupField(value)
		if !ok {
			e.sessions.Reset(chatID)
			e.reply(ctx, chatID, fmt.Sprintf(e.msg.UnknownFieldFmt, value, fieldNames()))
			return
		}
		sess.EditField = field.Name
		prompt := fmt.Sprintf(e.msg.EditValueFmt, field.Name)
		if field.Image {
			prompt = e.msg.EditImagePrompt
		}
		e.advance(ctx, chatID, sess, session.StepAwaitingEditValue, prompt)

	case session.StepAwaitingEditValue:
		e.editValue(ctx, chatID, sess, text, value, skip)

	case session.StepAwaitingDeleteConfirm:
		e.sessions.Reset(chatID)
		if !strings.EqualFold(value, confirmWord) {
			e.reply(ctx, chatID, e.msg.DeleteCancelled)
			return
		}
		deleted, err := e.store.DeletePost(ctx, sess.EditPostID)
		if err != nil {
			e.fail(ctx, chatID, "delete post", err)
			return
		}
		if !deleted {
			e.reply(ctx, chatID, fmt.Sprintf(e.msg.NotFoundFmt, sess.EditPostID))
			return
		}
		e.logger.InfoContext(ctx, "Post deleted", "chat_id", chatID, "post_id", sess.EditPostID)
		e.reply(ctx, chatID, fmt.Sprintf(e.msg.DeletedFmt, sess.EditPostID))
	}
}

// HandlePhoto stores the photo when the current step expects one. The
// chat lock is released during the download so /cancel is not held up; the
// result is dropped if the session changed meanwhile.
func (e *Engine) HandlePhoto(ctx context.Context, chatID int64, photo Photo) {
	sess, ok := e.photoWanted(ctx, chatID, photo)
	if !ok {
		return
	}

	url, err := e.saveImage(ctx, chatID, photo.FileID)

	unlock := e.sessions.Lock(chatID)
	defer unlock()

	if current := e.sessions.Get(chatID); current.Version != sess.Version {
		e.logger.InfoContext(ctx, "Dropping photo for a stale session", "chat_id", chatID, "url", url, "error", err)
		return
	}
	if errors.Is(err, errDownloadInterrupted) {
		e.logger.InfoContext(ctx, "Photo download interrupted", "chat_id", chatID, "step", sess.Step)
		return
	}
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to save photo", "chat_id", chatID, "step", sess.Step, "error", err)
		e.reply(ctx, chatID, e.msg.PhotoFailed)
		return
	}

	switch sess.Step {
	case session.StepAwaitingText:
		sess.Draft.Text = richtext.ToHTML(photo.Caption, photo.CaptionEntities)
		sess.Draft.ImageURL = url
		e.advance(ctx, chatID, sess, session.StepAwaitingDetails, e.msg.ImageSaved+"\n"+e.msg.DetailsPrompt)

	case session.StepAwaitingImage:
		sess.Draft.ImageURL = url
		e.advance(ctx, chatID, sess, session.StepAwaitingDetails, e.msg.ImageSaved+"\n"+e.msg.DetailsPrompt)

	case session.StepAwaitingEditValue:
		field, _ := LookupField(sess.EditField)
		e.applyEdit(ctx, chatID, sess.EditPostID, field, url)
	}
}

// CancelPending aborts the photo downloads running for chatID. The
// interrupted turns end without a reply.
func (e *Engine) CancelPending(chatID int64) {
	e.downloadsMu.Lock()
	defer e.downloadsMu.Unlock()
	for d := range e.downloads[chatID] {
		d.cancel(errDownloadInterrupted)
	}
}

// photoWanted reports whether the current step takes a photo and returns
// the session as it was before the download.
func (e *Engine) photoWanted(ctx context.Context, chatID int64, photo Photo) (session.Session, bool) {
	unlock := e.sessions.Lock(chatID)
	defer unlock()

	sess := e.sessions.Get(chatID)
	switch {
	case sess.Step == session.StepAwaitingText:
		if strings.TrimSpace(photo.Caption) == "" {
			e.reply(ctx, chatID, e.msg.TextRequired)
			return sess, false
		}
	case sess.Step == session.StepAwaitingImage:
	case sess.Step == session.StepAwaitingEditValue && isImageField(sess.EditField):
	default:
		return sess, false
	}
	return sess, true
}

type download struct {
	cancel context.CancelCauseFunc
}

func (e *Engine) saveImage(ctx context.Context, chatID int64, fileID string) (string, error) {
	dctx, cancel := context.WithCancelCause(ctx)
	d := &download{cancel: cancel}

	e.downloadsMu.Lock()
	if e.downloads[chatID] == nil {
		e.downloads[chatID] = make(map[*download]struct{})
	}
	e.downloads[chatID][d] = struct{}{}
	e.downloadsMu.Unlock()

	defer func() {
		e.downloadsMu.Lock()
		delete(e.downloads[chatID], d)
		if len(e.downloads[chatID]) == 0 {
			delete(e.downloads, chatID)
		}
		e.downloadsMu.Unlock()
		cancel(nil)
	}()

	url, err := e.images.SaveImage(dctx, fileID)
	if err != nil && errors.Is(context.Cause(dctx), errDownloadInterrupted) {
		return "", errDownloadInterrupted
	}
	return url, err
}

func (e *Engine) editValue(ctx context.Context, chatID int64, sess session.Session, text Text, value string, skip bool) {
	field, ok := LookupField(sess.EditField)
	if !ok {
		e.sessions.Reset(chatID)
		e.reply(ctx, chatID, fmt.Sprintf(e.msg.UnknownFieldFmt, sess.EditField, fieldNames()))
		return
	}

	switch {
	case field.Image && !skip:
		e.reply(ctx, chatID, e.msg.EditImagePrompt)
		return
	case field.Required && (value == "" || skip):
		e.reply(ctx, chatID, fmt.Sprintf(e.msg.ValueRequiredFmt, field.Name))
		return
	}

	var newValue string
	switch {
	case skip:
	case field.Rich:
		newValue = richtext.ToHTML(text.Body, text.Entities)
	default:
		newValue = value
	}
	e.applyEdit(ctx, chatID, sess.EditPostID, field, newValue)
}

func (e *Engine) applyEdit(ctx context.Context, chatID, postID int64, field Field, value string) {
	e.sessions.Reset(chatID)

	post, err := e.store.UpdatePost(ctx, postID, field.Update(value))
	if err != nil {
		e.fail(ctx, chatID, "update post", err)
		return
	}
	if post == nil {
		e.reply(ctx, chatID, fmt.Sprintf(e.msg.NotFoundFmt, postID))
		return
	}

	e.logger.InfoContext(ctx, "Post field updated", "chat_id", chatID, "post_id", postID, "field", field.Name)
	if field.Image && value != "" {
		e.reply(ctx, chatID, fmt.Sprintf(e.msg.ImageUpdatedFmt, postID))
		return
	}
	e.reply(ctx, chatID, fmt.Sprintf(e.msg.UpdatedFmt, postID, field.Name))
}

func (e *Engine) createPost(ctx context.Context, chatID int64, draft session.Draft) {
	e.sessions.Reset(chatID)

	post := &database.Post{
		Description:   draft.Text,
		ImageURL:      draft.ImageURL,
		DetailsText:   draft.DetailsText,
		TelegramLink:  draft.TelegramLink,
		WhatsappLink:  draft.WhatsappLink,
		InstagramLink: draft.InstagramLink,
	}
	if err := e.store.CreatePost(ctx, post); err != nil {
		e.fail(ctx, chatID, "create post", err)
		return
	}

	created, err := e.store.GetPost(ctx, post.ID)
	if err == nil && created == nil {
		err = fmt.Errorf("post %d missing after create", post.ID)
	}
	if err != nil {
		e.fail(ctx, chatID, "reload created post", err)
		return
	}

	e.logger.InfoContext(ctx, "Post created via bot", "chat_id", chatID, "post_id", created.ID)
	e.reply(ctx, chatID, fmt.Sprintf(e.msg.CreatedFmt, created.ID))
}

func (e *Engine) listPosts(ctx context.Context, chatID int64) {
	posts, err := e.store.ListPosts(ctx)
	if err != nil {
		e.fail(ctx, chatID, "list posts", err)
		return
	}
	if len(posts) == 0 {
		e.reply(ctx, chatID, e.msg.NoPosts)
		return
	}

	lines := make([]string, 0, len(posts))
	for _, p := range posts {
		lines = append(lines, fmt.Sprintf(e.msg.PostLineFmt, p.ID, preview(p.Description, listRunes), p.LikeCount))
	}
	for _, chunk := range chunkLines(e.msg.PostsHeader, lines, maxMessageSize) {
		e.reply(ctx, chatID, chunk)
	}
}

func (e *Engine) summary(d session.Draft) string {
	return fmt.Sprintf(e.msg.SummaryFmt,
		preview(d.Text, previewRunes),
		mark(d.ImageURL != ""),
		mark(d.DetailsText != ""),
		orDash(d.TelegramLink),
		orDash(d.WhatsappLink),
		orDash(d.InstagramLink),
	)
}

func (e *Engine) advance(ctx context.Context, chatID int64, sess session.Session, next session.Step, prompt string) {
	sess.Step = next
	e.sessions.Save(chatID, sess)
	e.reply(ctx, chatID, prompt)
}

// fail logs a store error, resets the chat and sends the generic error text.
func (e *Engine) fail(ctx context.Context, chatID int64, op string, err error) {
	e.logger.ErrorContext(ctx, "Conversation step failed", "chat_id", chatID, "op", op, "error", err)
	e.sessions.Reset(chatID)
	e.reply(ctx, chatID, e.msg.GenericError)
}

func (e *Engine) reply(ctx context.Context, chatID int64, text string) {
	if err := e.replier.SendText(ctx, chatID, text); err != nil {
		e.logger.ErrorContext(ctx, "Failed to send reply", "chat_id", chatID, "error", err)
	}
}

func parseID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isImageField(name string) bool {
	f, ok := LookupField(name)
	return ok && f.Image
}

func optional(value string, skip bool) string {
	if skip {
		return ""
	}
	return value
}

func optionalRich(text Text, skip bool) string {
	if skip {
		return ""
	}
	return richtext.ToHTML(text.Body, text.Entities)
}

func preview(html string, limit int) string {
	plain := strings.Join(strings.Fields(richtext.StripTags(html)), " ")
	if utf8.RuneCountInString(plain) <= limit {
		return plain
	}
	runes := []rune(plain)
	return string(runes[:limit]) + "..."
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// chunkLines joins lines under header into messages no longer than limit bytes.
func chunkLines(header string, lines []string, limit int) []string {
	var chunks []string
	var b strings.Builder
	b.WriteString(header)

	for _, line := range lines {
		if b.Len()+1+len(line) > limit && b.Len() > 0 {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
