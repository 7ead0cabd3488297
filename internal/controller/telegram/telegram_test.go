package telegram

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository/memory"
	"github.com/Freeeeeet/tutorlink/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAPI records calls made against the Bot API.
type fakeAPI struct {
	mu      sync.Mutex
	sent    []string
	methods []string
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.methods = append(f.methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
	if strings.HasSuffix(r.URL.Path, "/sendMessage") {
		f.sent = append(f.sent, string(body))
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
}

func (f *fakeAPI) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeAPI) called(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

func newTestBot(t *testing.T) (*bot.Bot, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	b, err := bot.New("123:test", bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	require.NoError(t, err)
	return b, api
}

func TestNotifier_SendsOnlyToLinkedUsers(t *testing.T) {
	ctx := context.Background()
	b, api := newTestBot(t)
	store := memory.NewStore()
	users := store.Users()

	chatID := int64(42)
	require.NoError(t, users.Create(ctx, &model.User{ID: "linked", Email: "l@x.io", Role: model.RoleTutor, TelegramChatID: &chatID}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "plain", Email: "p@x.io", Role: model.RoleStudent}))

	n := NewNotifier(b, users, zap.NewNop())
	n.Notify(ctx, "plain", "not delivered")
	n.Notify(ctx, "missing", "not delivered")
	n.Notify(ctx, "linked", "New session request")

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "New session request")
	assert.Contains(t, sent[0], "42")
}

func TestBotController_StartLinksChatWithCode(t *testing.T) {
	ctx := context.Background()
	b, api := newTestBot(t)
	store := memory.NewStore()
	users := store.Users()
	logger := zap.NewNop()

	require.NoError(t, users.Create(ctx, &model.User{ID: "tutor", Email: "t@x.io", Role: model.RoleTutor, Name: "Tumi", Surname: "Dlamini"}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "other", Email: "o@x.io", Role: model.RoleStudent, Name: "Olu"}))

	links := service.NewTelegramLinkService(users, identity.NewMemoryTokenStore(), events.NewMemoryBroker(), logger)
	c := NewBotController(b, users, nil, links, logger)
	start := func(chatID int64, text string) {
		c.HandleStart(ctx, b, &models.Update{Message: &models.Message{Chat: models.Chat{ID: chatID}, Text: text}})
	}

	start(777, "/start")
	require.Len(t, api.messages(), 1)
	assert.Contains(t, api.messages()[0], "Link Telegram")

	start(777, "/start not-a-code")
	require.Len(t, api.messages(), 2)
	assert.Contains(t, api.messages()[1], "invalid or expired")

	code, err := links.IssueCode(ctx, identity.Principal{UserID: "tutor", Role: model.RoleTutor})
	require.NoError(t, err)
	start(777, code.Command)
	require.Len(t, api.messages(), 3)
	assert.Contains(t, api.messages()[2], "Linked to Tumi Dlamini")

	linked, err := users.GetByTelegramChatID(ctx, 777)
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, "tutor", linked.ID)

	code, err = links.IssueCode(ctx, identity.Principal{UserID: "other", Role: model.RoleStudent})
	require.NoError(t, err)
	start(777, "/start@tutorlink_bot "+code.Code)
	require.Len(t, api.messages(), 4)
	assert.Contains(t, api.messages()[3], "already linked")

	linked, err = users.GetByTelegramChatID(ctx, 777)
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, "tutor", linked.ID)

	start(777, "/startle")
	assert.Len(t, api.messages(), 4, "other commands with the same prefix are ignored")

	c.HandleUnlink(ctx, b, &models.Update{Message: &models.Message{Chat: models.Chat{ID: 777}, Text: "/unlink"}})
	require.Len(t, api.messages(), 5)
	assert.Contains(t, api.messages()[4], "no longer linked")

	linked, err = users.GetByTelegramChatID(ctx, 777)
	require.NoError(t, err)
	assert.Nil(t, linked)
}

func TestStartPayload(t *testing.T) {
	tests := []struct {
		text string
		code string
		ok   bool
	}{
		{"/start", "", true},
		{"/start abc123", "abc123", true},
		{"  /start   abc123  ", "abc123", true},
		{"/start@tutorlink_bot abc123", "abc123", true},
		{"/startle", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		code, ok := startPayload(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.code, code, tt.text)
	}
}

func TestFormatSession(t *testing.T) {
	s := &model.Session{
		Module:      "COS 301",
		SessionDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		TimeSlot:    "9:00 AM - 10:00 AM",
		Status:      model.SessionStatusAccepted,
	}
	assert.Equal(t, "✅ COS 301\n📆 04 Mar 2026, 9:00 AM - 10:00 AM\n📊 accepted", FormatSession(s))
}

func TestBotController_AnswerRequestFromKeyboard(t *testing.T) {
	ctx := context.Background()
	b, api := newTestBot(t)
	store := memory.NewStore()
	users := store.Users()

	chatID := int64(42)
	require.NoError(t, users.Create(ctx, &model.User{ID: "tutor", Email: "t@x.io", Role: model.RoleTutor, Name: "Tumi", TelegramChatID: &chatID}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "student", Email: "s@x.io", Role: model.RoleStudent, Name: "Sipho"}))

	sessions := service.NewSessionService(store.Sessions(), users, events.NewMemoryBroker(), service.NopNotifier{}, zap.NewNop())
	s, err := sessions.Create(ctx, identity.Principal{UserID: "student", Role: model.RoleStudent}, service.SessionRequest{
		TutorID:           "tutor",
		Module:            "COS 301",
		SessionDate:       time.Now().Add(24 * time.Hour),
		TimeSlot:          model.TimeSlots[0],
		AdditionalDetails: "Exam prep",
	})
	require.NoError(t, err)

	c := NewBotController(b, users, sessions, nil, zap.NewNop())
	c.HandleRequests(ctx, b, &models.Update{Message: &models.Message{Chat: models.Chat{ID: chatID}}})

	sent := api.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "Pending requests: 1")
	assert.Contains(t, sent[1], "Sipho")
	assert.Contains(t, sent[1], AcceptRequest+s.ID)
	assert.Contains(t, sent[1], DeclineRequest+s.ID)

	click := &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "cb-1",
		From: models.User{ID: chatID},
		Data: AcceptRequest + s.ID,
		Message: models.MaybeInaccessibleMessage{
			Message: &models.Message{ID: 7, Chat: models.Chat{ID: chatID}},
		},
	}}
	c.HandleCallback(ctx, b, click)

	got, err := store.Sessions().GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusAccepted, got.Status)
	assert.Equal(t, 1, api.called("answerCallbackQuery"))
	assert.Equal(t, 1, api.called("editMessageText"))

	// Повторное нажатие не меняет заявку
	c.HandleCallback(ctx, b, click)
	got, err = store.Sessions().GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusAccepted, got.Status)
	assert.Equal(t, 2, api.called("answerCallbackQuery"))
}

func TestRenderWeek(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	start := WeekStart(now)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start, WeekStart(time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)), "sunday belongs to the same week")

	sessions := []*model.Session{
		{Module: "COS 301", SessionDate: now, TimeSlot: model.TimeSlots[1], Status: model.SessionStatusAccepted},
		{Module: "COS 332", SessionDate: now.AddDate(0, 0, 2), TimeSlot: model.TimeSlots[6], Status: model.SessionStatusPending},
		{Module: "Next week", SessionDate: now.AddDate(0, 0, 7), TimeSlot: model.TimeSlots[0], Status: model.SessionStatusPaid},
		{Module: "Broken slot", SessionDate: now, TimeSlot: "whenever", Status: model.SessionStatusPaid},
	}

	data, err := RenderWeek(start, sessions, now)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, imageWidth, img.Bounds().Dx())
	assert.Equal(t, imageHeight, img.Bounds().Dy())
}

func TestBotController_WeekSendsPhoto(t *testing.T) {
	ctx := context.Background()
	b, api := newTestBot(t)
	store := memory.NewStore()
	users := store.Users()

	chatID := int64(42)
	require.NoError(t, users.Create(ctx, &model.User{ID: "student", Email: "s@x.io", Role: model.RoleStudent, TelegramChatID: &chatID}))

	sessions := service.NewSessionService(store.Sessions(), users, events.NewMemoryBroker(), service.NopNotifier{}, zap.NewNop())
	c := NewBotController(b, users, sessions, nil, zap.NewNop())
	c.HandleWeek(ctx, b, &models.Update{Message: &models.Message{Chat: models.Chat{ID: chatID}}})

	assert.Equal(t, 1, api.called("sendPhoto"))
	assert.Empty(t, api.messages())
}
