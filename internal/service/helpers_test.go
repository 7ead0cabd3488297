package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository/memory"
	"github.com/Freeeeeet/tutorlink/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentNotification struct {
	UserID string
	Text   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Text: text})
}

func (n *recordingNotifier) To(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s.Text)
		}
	}
	return out
}

type env struct {
	store    *memory.Store
	broker   *events.MemoryBroker
	blobs    *storage.MemoryStore
	notifier *recordingNotifier
	clock    *clock

	tutors   *TutorService
	sessions *SessionService
	ratings  *RatingService
	chats    *ChatService
	profiles *ProfileService
	help     *HelpService
	links    *TelegramLinkService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.NewStore()
	broker := events.NewMemoryBroker()
	blobs := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	clk := &clock{now: baseTime}
	logger := zap.NewNop()

	e := &env{
		store:    store,
		broker:   broker,
		blobs:    blobs,
		notifier: notifier,
		clock:    clk,
		tutors:   NewTutorService(store.Users(), logger),
		sessions: NewSessionService(store.Sessions(), store.Users(), broker, notifier, logger),
		ratings:  NewRatingService(store.Users(), store.Sessions(), broker, logger),
		chats:    NewChatService(store.Chats(), store.Users(), broker, notifier, logger),
		profiles: NewProfileService(store.Users(), blobs, broker, logger),
		help:     NewHelpService(store.HelpRequests(), store.Users(), logger),
		links:    NewTelegramLinkService(store.Users(), identity.NewMemoryTokenStore(), broker, logger),
	}
	e.sessions.now = clk.Now
	e.ratings.now = clk.Now
	e.chats.now = clk.Now
	e.links.now = clk.Now
	return e
}

func (e *env) addUser(t *testing.T, id string, role model.Role, degree string) identity.Principal {
	t.Helper()
	err := e.store.Users().Create(context.Background(), &model.User{
		ID:      id,
		Email:   id + "@up.ac.za",
		Role:    role,
		Name:    id,
		Surname: "Test",
		Degree:  degree,
	})
	require.NoError(t, err)
	return identity.Principal{UserID: id, Role: role}
}

func (e *env) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := e.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (e *env) request(t *testing.T, student identity.Principal, tutorID string, date time.Time) *model.Session {
	t.Helper()
	s, err := e.sessions.Create(context.Background(), student, SessionRequest{
		TutorID:           tutorID,
		Module:            "COS 301",
		SessionDate:       date,
		TimeSlot:          model.TimeSlots[1],
		AdditionalDetails: "Exam prep",
	})
	require.NoError(t, err)
	return s
}

// insertSession stores a session directly, bypassing creation checks.
func (e *env) insertSession(t *testing.T, s *model.Session) {
	t.Helper()
	require.NoError(t, e.store.Sessions().Create(context.Background(), s))
}

func identityOf(id string, role model.Role) identity.Principal {
	return identity.Principal{UserID: id, Role: role}
}
