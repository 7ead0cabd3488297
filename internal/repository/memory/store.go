// Package memory keeps users, sessions, chats and help requests in process.
// It mirrors the Postgres repositories, including their transactional
// methods, and backs service and API tests.
package memory

import (
	"sync"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/model"
)

// Store is the shared state behind the repositories returned by its methods.
// One mutex guards every collection, so multi-collection operations are atomic.
type Store struct {
	mu       sync.Mutex
	users    map[string]*model.User
	sessions map[string]*model.Session
	chats    map[string]*model.Chat
	help     []*model.HelpRequest
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
		chats:    make(map[string]*model.Chat),
		now:      time.Now,
	}
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{store: s}
}

func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{store: s}
}

func (s *Store) Chats() *ChatRepository {
	return &ChatRepository{store: s}
}

func (s *Store) HelpRequests() *HelpRequestRepository {
	return &HelpRequestRepository{store: s}
}

// HelpRequestsSnapshot returns copies of the stored help requests.
func (s *Store) HelpRequestsSnapshot() []model.HelpRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.HelpRequest, 0, len(s.help))
	for _, req := range s.help {
		out = append(out, *req)
	}
	return out
}

func copyUser(u *model.User) *model.User {
	c := *u
	c.Ratings = append([]int{}, u.Ratings...)
	if u.AverageRating != nil {
		avg := *u.AverageRating
		c.AverageRating = &avg
	}
	if u.ImagePath != nil {
		p := *u.ImagePath
		c.ImagePath = &p
	}
	if u.TranscriptPath != nil {
		p := *u.TranscriptPath
		c.TranscriptPath = &p
	}
	if u.TelegramChatID != nil {
		id := *u.TelegramChatID
		c.TelegramChatID = &id
	}
	return &c
}

func copySession(s *model.Session) *model.Session {
	c := *s
	if s.StudentRating != nil {
		r := *s.StudentRating
		c.StudentRating = &r
	}
	if s.TutorRating != nil {
		r := *s.TutorRating
		c.TutorRating = &r
	}
	if s.PaymentMethod != nil {
		m := *s.PaymentMethod
		c.PaymentMethod = &m
	}
	if s.PaidAt != nil {
		t := *s.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func copyChat(ch *model.Chat, withMessages bool) *model.Chat {
	c := *ch
	c.Messages = []model.Message{}
	if withMessages {
		c.Messages = append(c.Messages, ch.Messages...)
	}
	return &c
}
