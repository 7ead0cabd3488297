package identity

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository/memory"
	"github.com/Freeeeeet/tutorlink/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *captureMailer) SendVerification(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[to] = link
	return nil
}

func (m *captureMailer) token(t *testing.T, to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[to]
	require.True(t, ok, "no mail sent to %s", to)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type fixture struct {
	svc    *Service
	mailer *captureMailer
	broker *events.MemoryBroker
	tokens *MemoryTokenStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	mailer := &captureMailer{links: make(map[string]string)}
	broker := events.NewMemoryBroker()
	tokens := NewMemoryTokenStore()
	svc := NewService(
		store.Users(),
		tokens,
		NewTokenIssuer("test-secret", "tutorlink", time.Hour),
		mailer,
		broker,
		"https://tutorlink.test/verify",
		zap.NewNop(),
	)
	return &fixture{svc: svc, mailer: mailer, broker: broker, tokens: tokens}
}

func signUpRequest(email string) SignUpRequest {
	return SignUpRequest{
		Email:      email,
		Password:   "correct horse",
		Role:       model.RoleStudent,
		Name:       "Thandi",
		Surname:    "Mokoena",
		StudentNum: "u21000001",
		Degree:     "Computer Science",
	}
}

func TestService_SignUpVerifySignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.SignUp(ctx, signUpRequest(" Thandi@Example.com "))
	require.NoError(t, err)
	assert.Equal(t, "thandi@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.PasswordHash)
	assert.False(t, user.EmailVerified)

	_, err = f.svc.SignIn(ctx, "thandi@example.com", "correct horse")
	require.ErrorIs(t, err, ErrEmailNotVerified)

	token := f.mailer.token(t, "thandi@example.com")
	require.NotEmpty(t, token)
	require.NoError(t, f.svc.VerifyEmail(ctx, token))
	require.ErrorIs(t, f.svc.VerifyEmail(ctx, token), ErrInvalidToken, "token is single use")

	_, err = f.svc.SignIn(ctx, "thandi@example.com", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := f.svc.SignIn(ctx, "THANDI@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.Principal.UserID)
	assert.Equal(t, model.RoleStudent, session.Principal.Role)
	assert.True(t, session.User.EmailVerified)

	principal, err := f.svc.Authenticate(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.Principal, principal)
}

func TestService_SignUpRejectsDuplicatesAndBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.SignUp(ctx, signUpRequest("a@example.com"))
	require.NoError(t, err)

	_, err = f.svc.SignUp(ctx, signUpRequest("A@example.com"))
	require.ErrorIs(t, err, ErrEmailTaken)

	bad := signUpRequest("not-an-email")
	bad.Password = "short"
	bad.Role = "admin"
	_, err = f.svc.SignUp(ctx, bad)
	require.True(t, validation.Is(err))

	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	assert.ElementsMatch(t, []string{
		"email must be a valid email",
		"password must be at least 8",
		"role must be one of: student tutor",
	}, ve.Problems)
}

func TestService_SignOutRevokesToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.SignUp(ctx, signUpRequest("b@example.com"))
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, f.mailer.token(t, "b@example.com")))

	sub, err := f.broker.Subscribe(ctx, events.User(user.ID))
	require.NoError(t, err)
	defer sub.Close()

	session, err := f.svc.SignIn(ctx, "b@example.com", "correct horse")
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, events.KindSignedIn, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no sign-in event")
	}

	require.NoError(t, f.svc.SignOut(ctx, session.AccessToken))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, events.KindSignOut, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no sign-out event")
	}

	_, err = f.svc.Authenticate(ctx, session.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_SendVerificationUnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.svc.SendVerification(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("secret", "tutorlink", time.Hour)
	user := &model.User{ID: "u1", Role: model.RoleTutor}

	token, claims, err := issuer.Issue(user, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", parsed.UserID)
	assert.Equal(t, model.RoleTutor, parsed.Role)
	assert.Equal(t, claims.ID, parsed.ID)

	_, err = NewTokenIssuer("other", "tutorlink", time.Hour).Parse(token)
	assert.Error(t, err)

	_, err = NewTokenIssuer("secret", "someone-else", time.Hour).Parse(token)
	assert.Error(t, err)

	expired, _, err := issuer.Issue(user, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = issuer.Parse(expired)
	assert.Error(t, err)
}

func TestMemoryTokenStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.SaveVerification(ctx, "tok", "u1", time.Minute))
	require.NoError(t, store.Revoke(ctx, "jti", time.Minute))

	now = now.Add(2 * time.Minute)

	userID, err := store.TakeVerification(ctx, "tok")
	require.NoError(t, err)
	assert.Empty(t, userID)

	revoked, err := store.IsRevoked(ctx, "jti")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryTokenStore_LinkCodes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.SaveLinkCode(ctx, "code", "u1", time.Minute))
	require.NoError(t, store.SaveVerification(ctx, "code", "u2", time.Minute))

	userID, err := store.TakeLinkCode(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	userID, err = store.TakeLinkCode(ctx, "code")
	require.NoError(t, err)
	assert.Empty(t, userID, "link codes are single use")

	userID, err = store.TakeVerification(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "u2", userID, "link codes and verification tokens do not collide")

	require.NoError(t, store.SaveLinkCode(ctx, "stale", "u1", time.Minute))
	now = now.Add(2 * time.Minute)
	userID, err = store.TakeLinkCode(ctx, "stale")
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	ok, err := CheckPassword(hash, "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
