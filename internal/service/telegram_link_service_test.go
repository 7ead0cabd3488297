package service

import (
	"context"
	"testing"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramLinkService_IssueCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	student := e.addUser(t, "student", model.RoleStudent, "Law")

	code, err := e.links.IssueCode(ctx, student)
	require.NoError(t, err)
	assert.Len(t, code.Code, 32)
	assert.Regexp(t, `^[0-9a-f]+$`, code.Code)
	assert.Equal(t, "/start "+code.Code, code.Command)
	assert.Equal(t, baseTime.Add(LinkCodeTTL), code.ExpiresAt)

	other, err := e.links.IssueCode(ctx, student)
	require.NoError(t, err)
	assert.NotEqual(t, code.Code, other.Code)
}

func TestTelegramLinkService_Link(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	victim := e.addUser(t, "victim", model.RoleTutor, "Law")
	e.addUser(t, "attacker", model.RoleStudent, "Law")

	sub, err := e.broker.Subscribe(ctx, events.User("victim"))
	require.NoError(t, err)
	defer sub.Close()

	code, err := e.links.IssueCode(ctx, victim)
	require.NoError(t, err)

	user, err := e.links.Link(ctx, code.Code, 424242)
	require.NoError(t, err)
	assert.Equal(t, "victim", user.ID)
	require.NotNil(t, user.TelegramChatID)
	assert.Equal(t, int64(424242), *user.TelegramChatID)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "victim", ev.DocumentID)
	default:
		t.Fatal("link was not published")
	}

	_, err = e.links.Link(ctx, code.Code, 424242)
	assert.ErrorIs(t, err, ErrInvalidLinkCode, "codes are single use")

	for _, bad := range []string{"", "   ", "not-a-code"} {
		_, err = e.links.Link(ctx, bad, 424242)
		assert.ErrorIs(t, err, ErrInvalidLinkCode, bad)
	}
}

func TestTelegramLinkService_SecondClaimRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	victim := e.addUser(t, "victim", model.RoleTutor, "Law")
	attacker := e.addUser(t, "attacker", model.RoleStudent, "Law")
	const chatID = int64(424242)

	code, err := e.links.IssueCode(ctx, victim)
	require.NoError(t, err)
	_, err = e.links.Link(ctx, code.Code, chatID)
	require.NoError(t, err)

	code, err = e.links.IssueCode(ctx, attacker)
	require.NoError(t, err)
	_, err = e.links.Link(ctx, code.Code, chatID)
	assert.ErrorIs(t, err, ErrChatLinked)
	assert.Nil(t, e.user(t, "attacker").TelegramChatID)

	for i := 0; i < 50; i++ {
		owner, err := e.store.Users().GetByTelegramChatID(ctx, chatID)
		require.NoError(t, err)
		require.NotNil(t, owner)
		require.Equal(t, "victim", owner.ID)
	}

	code, err = e.links.IssueCode(ctx, victim)
	require.NoError(t, err)
	_, err = e.links.Link(ctx, code.Code, chatID)
	require.NoError(t, err, "relinking the same chat to its owner is allowed")

	require.NoError(t, e.links.Unlink(ctx, victim))
	assert.Nil(t, e.user(t, "victim").TelegramChatID)

	code, err = e.links.IssueCode(ctx, attacker)
	require.NoError(t, err)
	user, err := e.links.Link(ctx, code.Code, chatID)
	require.NoError(t, err, "an unlinked chat can be linked again")
	assert.Equal(t, "attacker", user.ID)
}

func TestTelegramLinkService_UnknownUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	code, err := e.links.IssueCode(ctx, identityOf("ghost", model.RoleStudent))
	require.NoError(t, err)
	_, err = e.links.Link(ctx, code.Code, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, e.links.Unlink(ctx, identityOf("ghost", model.RoleStudent)), ErrNotFound)
}
