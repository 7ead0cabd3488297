package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acceptedPair creates an accepted session between tutor and student so that
// their chat exists.
func (e *env) acceptedPair(t *testing.T, tutorID, studentID string) model.PairKey {
	t.Helper()
	ctx := context.Background()
	s := e.request(t, identityOf(studentID, model.RoleStudent), tutorID, baseTime.Add(24*time.Hour))
	_, err := e.sessions.Accept(ctx, identityOf(tutorID, model.RoleTutor), s.ID)
	require.NoError(t, err)
	return s.PairKey()
}

func TestSortMessages(t *testing.T) {
	t1 := baseTime
	t2 := baseTime.Add(time.Minute)
	t3 := baseTime.Add(2 * time.Minute)

	messages := []model.Message{
		{Text: "third", CreatedAt: t3},
		{Text: "first", CreatedAt: t1},
		{Text: "second", CreatedAt: t2},
		{Text: "second, same clock", CreatedAt: t2},
	}
	SortMessages(messages)

	var got []string
	for _, m := range messages {
		got = append(got, m.Text)
	}
	assert.Equal(t, []string{"first", "second", "second, same clock", "third"}, got)
}

func TestChatService_GetOrdersByClientTime(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	student := e.addUser(t, "student", model.RoleStudent, "Law")
	tutorP := e.addUser(t, "tutor", model.RoleTutor, "Law")
	key := e.acceptedPair(t, "tutor", "student")

	// Сообщения приходят не в порядке часов отправителей
	_, err := e.chats.PostMessage(ctx, student, key, "t3", baseTime.Add(3*time.Minute))
	require.NoError(t, err)
	_, err = e.chats.PostMessage(ctx, tutorP, key, "t1", baseTime.Add(time.Minute))
	require.NoError(t, err)
	_, err = e.chats.PostMessage(ctx, student, key, "t2", baseTime.Add(2*time.Minute))
	require.NoError(t, err)

	chat, err := e.chats.Get(ctx, tutorP, key)
	require.NoError(t, err)
	require.Len(t, chat.Messages, 3)
	assert.Equal(t, "t1", chat.Messages[0].Text)
	assert.Equal(t, "t2", chat.Messages[1].Text)
	assert.Equal(t, "t3", chat.Messages[2].Text)
}

func TestChatService_PostMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	student := e.addUser(t, "student", model.RoleStudent, "Law")
	tutorP := e.addUser(t, "tutor", model.RoleTutor, "Law")
	outsider := e.addUser(t, "outsider", model.RoleStudent, "Law")
	key := e.acceptedPair(t, "tutor", "student")

	msg, err := e.chats.PostMessage(ctx, student, key, "  Can we meet at the library?  ", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "Can we meet at the library?", msg.Text)
	assert.Equal(t, "student", msg.SenderID)
	assert.Equal(t, "tutor", msg.ReceiverID)
	assert.Equal(t, baseTime, msg.CreatedAt, "missing client time falls back to server clock")

	reply, err := e.chats.PostMessage(ctx, tutorP, key, "Sure", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "student", reply.ReceiverID)

	require.NotEmpty(t, e.notifier.To("tutor"))
	last := e.notifier.To("tutor")[len(e.notifier.To("tutor"))-1]
	assert.Contains(t, last, "Can we meet at the library?")

	_, err = e.chats.PostMessage(ctx, student, key, " \n\t ", time.Time{})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = e.chats.PostMessage(ctx, outsider, key, "hi", time.Time{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.chats.Get(ctx, outsider, key)
	assert.ErrorIs(t, err, ErrForbidden)

	missing := model.PairKey{TutorID: "tutor", StudentID: "outsider"}
	_, err = e.chats.PostMessage(ctx, outsider, missing, "hi", time.Time{})
	assert.ErrorIs(t, err, ErrNotFound, "chat exists only after an accepted session")

	chat, err := e.chats.Get(ctx, student, key)
	require.NoError(t, err)
	assert.Len(t, chat.Messages, 2)
}

func TestChatService_List(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	student := e.addUser(t, "student", model.RoleStudent, "Law")
	tutorP := e.addUser(t, "tutor", model.RoleTutor, "Law")
	e.addUser(t, "tutor2", model.RoleTutor, "Law")

	key := e.acceptedPair(t, "tutor", "student")
	e.acceptedPair(t, "tutor2", "student")

	_, err := e.chats.PostMessage(ctx, tutorP, key, "later", baseTime.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = e.chats.PostMessage(ctx, student, key, "earlier", baseTime.Add(time.Minute))
	require.NoError(t, err)

	summaries, err := e.chats.List(ctx, student)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := make(map[string]*ChatSummary)
	for _, s := range summaries {
		byID[s.ID] = s
	}

	first := byID["tutor_student"]
	require.NotNil(t, first)
	assert.Equal(t, "tutor", first.CounterpartID)
	assert.Equal(t, "tutor Test", first.CounterpartName)
	require.NotNil(t, first.LastMessage)
	assert.Equal(t, "later", first.LastMessage.Text)

	second := byID["tutor2_student"]
	require.NotNil(t, second)
	assert.Nil(t, second.LastMessage)

	tutorChats, err := e.chats.List(ctx, tutorP)
	require.NoError(t, err)
	require.Len(t, tutorChats, 1)
	assert.Equal(t, "student Test", tutorChats[0].CounterpartName)
}

func TestChatService_Watch(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	student := e.addUser(t, "student", model.RoleStudent, "Law")
	e.addUser(t, "tutor", model.RoleTutor, "Law")
	key := e.acceptedPair(t, "tutor", "student")

	_, err := e.chats.Watch(ctx, identityOf("outsider", model.RoleStudent), key)
	assert.ErrorIs(t, err, ErrForbidden)

	feed, err := e.chats.Watch(ctx, student, key)
	require.NoError(t, err)
	defer feed.Close()

	assert.Empty(t, nextSnapshot(t, feed.Snapshots()).Messages)

	_, err = e.chats.PostMessage(ctx, identityOf("tutor", model.RoleTutor), key, "hello", time.Time{})
	require.NoError(t, err)

	chat := nextSnapshot(t, feed.Snapshots())
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "hello", chat.Messages[0].Text)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	long := strings.Repeat("я", 100)
	got := preview(long)
	assert.Equal(t, 81, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
