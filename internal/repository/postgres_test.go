package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/app"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository"
	"github.com/Freeeeeet/tutorlink/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// openTestDB connects to TEST_DB_DSN and applies the migrations.
func openTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("db unavailable: %v", err)
	}

	migrator, err := app.NewMigrator(pool, "../../migrations", zap.NewNop())
	require.NoError(t, err)
	defer migrator.Close()
	require.NoError(t, migrator.Run(ctx))

	return pool
}

type fixture struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	chats    *repository.ChatRepository
}

func newFixture(t *testing.T) *fixture {
	pool := openTestDB(t)
	return &fixture{
		users:    repository.NewUserRepository(pool),
		sessions: repository.NewSessionRepository(pool),
		chats:    repository.NewChatRepository(pool),
	}
}

// addUser creates a user with a unique id so runs do not collide.
func (f *fixture) addUser(t *testing.T, role model.Role) *model.User {
	t.Helper()
	id := uuid.NewString()
	user := &model.User{ID: id, Email: id + "@up.ac.za", Role: role, Name: string(role)}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *fixture) addSession(t *testing.T, tutor, student *model.User, status model.SessionStatus) *model.Session {
	t.Helper()
	s := &model.Session{
		ID:                uuid.NewString(),
		TutorID:           tutor.ID,
		StudentID:         student.ID,
		Module:            "COS 301",
		SessionDate:       time.Now().Add(-24 * time.Hour).UTC(),
		TimeSlot:          model.TimeSlots[0],
		AdditionalDetails: "Exam prep",
		Status:            status,
	}
	require.NoError(t, f.sessions.Create(context.Background(), s))
	return s
}

func TestSessionRepository_AcceptWithChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tutor := f.addUser(t, model.RoleTutor)
	student := f.addUser(t, model.RoleStudent)

	first := f.addSession(t, tutor, student, model.SessionStatusPending)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		created  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, chatCreated, err := f.sessions.AcceptWithChat(ctx, first.ID, model.NewChatFromSession(first))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				accepted++
			}
			if chatCreated {
				created++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, created)

	second := f.addSession(t, tutor, student, model.SessionStatusPending)
	second.Module = "COS 332"
	ok, chatCreated, err := f.sessions.AcceptWithChat(ctx, second.ID, model.NewChatFromSession(second))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, chatCreated, "pair already has a chat")

	chat, err := f.chats.GetByKey(ctx, first.PairKey())
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Equal(t, first.ID, chat.SessionID, "existing chat keeps its seed")
	assert.Equal(t, "COS 301", chat.Module)

	got, err := f.sessions.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusAccepted, got.Status)
}

func TestSessionRepository_ApplyRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tutor := f.addUser(t, model.RoleTutor)
	student := f.addUser(t, model.RoleStudent)

	pending := f.addSession(t, tutor, student, model.SessionStatusPending)
	summary, err := f.sessions.ApplyRating(ctx, pending.ID, model.PartyStudent, 5, service.Average)
	require.NoError(t, err)
	assert.Nil(t, summary, "pending sessions cannot be rated")

	// одна сессия, много попыток: оценка ставится ровно один раз
	once := f.addSession(t, tutor, student, model.SessionStatusAccepted)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stamp int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := f.sessions.ApplyRating(ctx, once.ID, model.PartyStudent, 4, service.Average)
			assert.NoError(t, err)
			if s != nil {
				mu.Lock()
				stamp++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, stamp)

	// разные сессии одновременно: ни одна оценка не теряется
	ratings := []int{1, 2, 3, 5, 5}
	for _, r := range ratings {
		s := f.addSession(t, tutor, student, model.SessionStatusPaid)
		wg.Add(1)
		go func(id string, r int) {
			defer wg.Done()
			_, err := f.sessions.ApplyRating(ctx, id, model.PartyStudent, r, service.Average)
			assert.NoError(t, err)
		}(s.ID, r)
	}
	wg.Wait()

	stored, err := f.users.GetByID(ctx, tutor.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{4, 1, 2, 3, 5, 5}, stored.Ratings)
	require.NotNil(t, stored.AverageRating)
	assert.InDelta(t, 20.0/6.0, *stored.AverageRating, 1e-9)

	got, err := f.sessions.GetByID(ctx, once.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StudentRating)
	assert.Equal(t, 4, *got.StudentRating)
	assert.Nil(t, got.TutorRating)
}

func TestChatRepository_ListIncludesLastMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tutor := f.addUser(t, model.RoleTutor)
	student := f.addUser(t, model.RoleStudent)
	session := f.addSession(t, tutor, student, model.SessionStatusPending)

	_, _, err := f.sessions.AcceptWithChat(ctx, session.ID, model.NewChatFromSession(session))
	require.NoError(t, err)
	key := session.PairKey()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, f.chats.AppendMessage(ctx, key, model.Message{Text: "later", SenderID: tutor.ID, ReceiverID: student.ID, CreatedAt: base.Add(2 * time.Minute)}))
	require.NoError(t, f.chats.AppendMessage(ctx, key, model.Message{Text: "earlier", SenderID: student.ID, ReceiverID: tutor.ID, CreatedAt: base.Add(time.Minute)}))

	chats, err := f.chats.ListByParticipant(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Len(t, chats[0].Messages, 1)
	assert.Equal(t, "later", chats[0].Messages[0].Text)
	assert.Equal(t, tutor.ID, chats[0].Messages[0].SenderID)
}

func TestUserRepository_TelegramChatIsUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.addUser(t, model.RoleTutor)
	other := f.addUser(t, model.RoleStudent)
	chatID := time.Now().UnixNano()

	require.NoError(t, f.users.SetTelegramChatID(ctx, owner.ID, &chatID))
	require.NoError(t, f.users.SetTelegramChatID(ctx, owner.ID, &chatID), "same owner may relink")

	err := f.users.SetTelegramChatID(ctx, other.ID, &chatID)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	linked, err := f.users.GetByTelegramChatID(ctx, chatID)
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, owner.ID, linked.ID)

	require.NoError(t, f.users.SetTelegramChatID(ctx, owner.ID, nil))
	require.NoError(t, f.users.SetTelegramChatID(ctx, other.ID, &chatID))
}
