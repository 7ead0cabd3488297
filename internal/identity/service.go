package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository"
	"github.com/Freeeeeet/tutorlink/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerificationTTL is how long an e-mail verification link stays valid.
const VerificationTTL = 24 * time.Hour

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnknownUser        = errors.New("user not found")
)

// UserStore is the part of the profile store identity needs.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	SetEmailVerified(ctx context.Context, id string) error
}

type SignUpRequest struct {
	Email       string     `json:"email" validate:"required,email,max=254"`
	Password    string     `json:"password" validate:"required,min=8,max=72"`
	Role        model.Role `json:"role" validate:"required,oneof=student tutor"`
	Name        string     `json:"name" validate:"required,max=100"`
	Surname     string     `json:"surname" validate:"required,max=100"`
	StudentNum  string     `json:"student_num" validate:"required,max=20"`
	Degree      string     `json:"degree" validate:"required,max=200"`
	YearOfStudy string     `json:"year_of_study" validate:"max=50"`
	Bio         string     `json:"bio" validate:"max=2000"`
}

// Session is a successful sign-in.
type Session struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"user"`
	Principal   Principal   `json:"-"`
}

// Service is the identity provider: accounts, e-mail verification and
// access tokens. Sign-in and sign-out publish on the user's topic.
type Service struct {
	users     UserStore
	tokens    TokenStore
	issuer    *TokenIssuer
	mailer    Mailer
	broker    events.Broker
	verifyURL string
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(
	users UserStore,
	tokens TokenStore,
	issuer *TokenIssuer,
	mailer Mailer,
	broker events.Broker,
	verifyURL string,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		issuer:    issuer,
		mailer:    mailer,
		broker:    broker,
		verifyURL: verifyURL,
		logger:    logger,
		now:       time.Now,
	}
}

// SignUp регистрирует пользователя и отправляет письмо для подтверждения email
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*model.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	req.Surname = strings.TrimSpace(req.Surname)
	req.StudentNum = strings.TrimSpace(req.StudentNum)
	req.Degree = strings.TrimSpace(req.Degree)
	req.YearOfStudy = strings.TrimSpace(req.YearOfStudy)
	req.Bio = strings.TrimSpace(req.Bio)

	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Name:         req.Name,
		Surname:      req.Surname,
		StudentNum:   req.StudentNum,
		Degree:       req.Degree,
		YearOfStudy:  req.YearOfStudy,
		Bio:          req.Bio,
		Ratings:      []int{},
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("User signed up",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)

	// Письмо можно запросить повторно, регистрация от него не зависит
	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Error("Failed to send verification email",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	return user, nil
}

// SendVerification повторно отправляет письмо для подтверждения email
func (s *Service) SendVerification(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return ErrUnknownUser
	}
	if user.EmailVerified {
		return nil
	}
	return s.sendVerification(ctx, user)
}

func (s *Service) sendVerification(ctx context.Context, user *model.User) error {
	token := uuid.NewString()
	if err := s.tokens.SaveVerification(ctx, token, user.ID, VerificationTTL); err != nil {
		return err
	}

	link := s.verifyURL + "?token=" + url.QueryEscape(token)
	if err := s.mailer.SendVerification(ctx, user.Email, link); err != nil {
		return err
	}

	s.logger.Info("Verification email sent", zap.String("user_id", user.ID))
	return nil
}

// VerifyEmail подтверждает email по токену из письма
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.tokens.TakeVerification(ctx, token)
	if err != nil {
		return err
	}
	if userID == "" {
		return ErrInvalidToken
	}

	if err := s.users.SetEmailVerified(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownUser
		}
		return fmt.Errorf("set email verified: %w", err)
	}

	s.publish(ctx, events.KindUpdated, userID)
	s.logger.Info("Email verified", zap.String("user_id", userID))
	return nil
}

// SignIn проверяет пароль и выдаёт токен доступа
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	token, claims, err := s.issuer.Issue(user, s.now())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.publish(ctx, events.KindSignedIn, user.ID)
	s.logger.Info("User signed in", zap.String("user_id", user.ID))

	return &Session{
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user,
		Principal:   Principal{UserID: user.ID, Role: user.Role, TokenID: claims.ID},
	}, nil
}

// Authenticate возвращает пользователя по токену доступа
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, ErrInvalidToken
	}

	return Principal{UserID: claims.UserID, Role: claims.Role, TokenID: claims.ID}, nil
}

// SignOut отзывает токен до конца его срока действия
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return ErrInvalidToken
	}

	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.tokens.Revoke(ctx, claims.ID, ttl); err != nil {
		return err
	}

	s.publish(ctx, events.KindSignOut, claims.UserID)
	s.logger.Info("User signed out", zap.String("user_id", claims.UserID))
	return nil
}

// Watch открывает поток снимков профиля: вход, выход и изменения профиля
func (s *Service) Watch(ctx context.Context, userID string) (*events.Feed[*model.User], error) {
	sub, err := s.broker.Subscribe(ctx, events.User(userID))
	if err != nil {
		return nil, fmt.Errorf("subscribe user: %w", err)
	}
	return events.NewFeed(ctx, sub, func(ctx context.Context) (*model.User, error) {
		return s.users.GetByID(ctx, userID)
	}, s.logger), nil
}

func (s *Service) publish(ctx context.Context, kind events.Kind, userID string) {
	if err := s.broker.Publish(ctx, events.Notify(kind, userID, events.User(userID))...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Error(err))
	}
}
