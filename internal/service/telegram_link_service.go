package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkCodeTTL is how long a Telegram link code can be redeemed.
const LinkCodeTTL = 10 * time.Minute

var (
	ErrInvalidLinkCode = errors.New("invalid or expired link code")
	ErrChatLinked      = errors.New("telegram chat is linked to another profile")
)

// LinkCode is a one-time code the user sends to the bot as /start <code>.
type LinkCode struct {
	Code      string    `json:"code"`
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TelegramLinkService привязывает чаты Telegram к профилям. Чат
// привязывается только кодом, выданным владельцу профиля в приложении.
type TelegramLinkService struct {
	users     UserStore
	codes     LinkCodeStore
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewTelegramLinkService(users UserStore, codes LinkCodeStore, publisher events.Publisher, logger *zap.Logger) *TelegramLinkService {
	return &TelegramLinkService{
		users:     users,
		codes:     codes,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// IssueCode выдаёт новый код привязки текущему пользователю
func (s *TelegramLinkService) IssueCode(ctx context.Context, actor identity.Principal) (*LinkCode, error) {
	// start-параметр Telegram: только [A-Za-z0-9_-], не длиннее 64
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.codes.SaveLinkCode(ctx, code, actor.UserID, LinkCodeTTL); err != nil {
		return nil, fmt.Errorf("save link code: %w", err)
	}

	s.logger.Info("Telegram link code issued", zap.String("user_id", actor.UserID))

	return &LinkCode{
		Code:      code,
		Command:   "/start " + code,
		ExpiresAt: s.now().Add(LinkCodeTTL),
	}, nil
}

// Link погашает код и привязывает к его владельцу чат, из которого код пришёл
func (s *TelegramLinkService) Link(ctx context.Context, code string, chatID int64) (*model.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidLinkCode
	}

	userID, err := s.codes.TakeLinkCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("take link code: %w", err)
	}
	if userID == "" {
		return nil, ErrInvalidLinkCode
	}

	if err := s.users.SetTelegramChatID(ctx, userID, &chatID); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrChatLinked
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("link telegram chat: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	s.changed(ctx, userID)
	s.logger.Info("Telegram chat linked",
		zap.String("user_id", userID),
		zap.Int64("chat_id", chatID),
	)

	return user, nil
}

// Unlink отвязывает чат от профиля текущего пользователя
func (s *TelegramLinkService) Unlink(ctx context.Context, actor identity.Principal) error {
	if err := s.users.SetTelegramChatID(ctx, actor.UserID, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("unlink telegram chat: %w", err)
	}

	s.changed(ctx, actor.UserID)
	s.logger.Info("Telegram chat unlinked", zap.String("user_id", actor.UserID))

	return nil
}

func (s *TelegramLinkService) changed(ctx context.Context, userID string) {
	if err := s.publisher.Publish(ctx, events.Notify(events.KindUpdated, userID, events.User(userID))...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Error(err))
	}
}
