// Package session keeps the in-memory conversation state of each admin chat.
package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Step is the position of a chat in one of the bot flows.
type Step string

const (
	StepIdle                  Step = "idle"
	StepAwaitingText          Step = "awaiting_text"
	StepAwaitingImage         Step = "awaiting_image"
	StepAwaitingDetails       Step = "awaiting_details"
	StepAwaitingTelegramLink  Step = "awaiting_telegram_link"
	StepAwaitingWhatsappLink  Step = "awaiting_whatsapp_link"
	StepAwaitingInstagramLink Step = "awaiting_instagram_link"
	StepConfirmCreate         Step = "confirm_create"
	StepAwaitingEditField     Step = "awaiting_edit_field"
	StepAwaitingEditValue     Step = "awaiting_edit_value"
	StepAwaitingDeleteConfirm Step = "awaiting_delete_confirm"
)

const (
	DefaultTTL     = 30 * time.Minute
	DefaultMaxSize = 1024
)

// Draft holds the fields collected while creating a post.
type Draft struct {
	Text          string
	ImageURL      string
	DetailsText   string
	TelegramLink  string
	WhatsappLink  string
	InstagramLink string
}

// Session is the state of one chat. The zero value is an idle session.
type Session struct {
	Step       Step
	Draft      Draft
	EditPostID int64
	EditField  string
	// Version changes on every Save and Reset.
	Version uint64
}

// Idle reports whether the chat is outside any flow.
func (s Session) Idle() bool {
	return s.Step == "" || s.Step == StepIdle
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// Store keeps sessions with a TTL and bounded size, and serialises turns per
// chat through Lock.
type Store struct {
	sessions *expirable.LRU[int64, Session]

	mu      sync.Mutex
	locks   map[int64]*chatLock
	version uint64
}

// NewStore creates a Store. Non-positive values fall back to the defaults.
func NewStore(ttl time.Duration, maxSize int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{
		sessions: expirable.NewLRU[int64, Session](maxSize, nil, ttl),
		locks:    make(map[int64]*chatLock),
	}
}

// Get returns the session of chatID, or an idle session if there is none.
func (s *Store) Get(chatID int64) Session {
	if sess, ok := s.sessions.Get(chatID); ok {
		return sess
	}
	return Session{Step: StepIdle}
}

// Save stores sess for chatID and returns it with its new version.
func (s *Store) Save(chatID int64, sess Session) Session {
	sess.Version = s.nextVersion()
	if sess.Step == "" {
		sess.Step = StepIdle
	}
	s.sessions.Add(chatID, sess)
	return sess
}

// Reset drops any state of chatID.
func (s *Store) Reset(chatID int64) {
	s.nextVersion()
	s.sessions.Remove(chatID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}

// Lock blocks until the caller holds the turn lock of chatID.
func (s *Store) Lock(chatID int64) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &chatLock{}
		s.locks[chatID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, chatID)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) nextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	return s.version
}
