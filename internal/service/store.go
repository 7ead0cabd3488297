package service

import (
	"context"
	"io"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/model"
)

// Хранилища, с которыми работают сервисы. Реализации: repository (Postgres)
// и repository/memory (тесты).

type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.User, error)
	ListTutors(ctx context.Context) ([]*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	SetImagePath(ctx context.Context, id string, path *string) error
	SetTranscript(ctx context.Context, id string, path string, verified bool) error
	SetTelegramChatID(ctx context.Context, id string, chatID *int64) error
	AppendRating(ctx context.Context, userID string, rating int, average model.AverageFunc) (*model.RatingSummary, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	ListByTutor(ctx context.Context, tutorID string) ([]*model.Session, error)
	ListByStudent(ctx context.Context, studentID string) ([]*model.Session, error)
	ListPendingByTutor(ctx context.Context, tutorID string) ([]*model.Session, error)
	AcceptWithChat(ctx context.Context, id string, seed *model.Chat) (accepted bool, chatCreated bool, err error)
	DeletePending(ctx context.Context, id string) (bool, error)
	DeleteExpiredPending(ctx context.Context, now time.Time, tutorID string) ([]*model.Session, error)
	MarkPaid(ctx context.Context, id string, method model.PaymentMethod, paidAt time.Time) (bool, error)
	ApplyRating(ctx context.Context, sessionID string, party model.Party, rating int, average model.AverageFunc) (*model.RatingSummary, error)
}

type ChatStore interface {
	Ensure(ctx context.Context, chat *model.Chat) (bool, error)
	Exists(ctx context.Context, key model.PairKey) (bool, error)
	GetByKey(ctx context.Context, key model.PairKey) (*model.Chat, error)
	// ListByParticipant возвращает чаты пользователя, Messages содержит
	// как минимум последнее сообщение чата
	ListByParticipant(ctx context.Context, userID string) ([]*model.Chat, error)
	AppendMessage(ctx context.Context, key model.PairKey, msg model.Message) error
}

type HelpRequestStore interface {
	Create(ctx context.Context, req *model.HelpRequest) error
}

// LinkCodeStore хранит одноразовые коды привязки Telegram
type LinkCodeStore interface {
	SaveLinkCode(ctx context.Context, code, userID string, ttl time.Duration) error
	TakeLinkCode(ctx context.Context, code string) (string, error)
}

// BlobStore хранит файлы профиля (фото, транскрипты)
type BlobStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	DownloadURL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Notifier доставляет короткое уведомление пользователю. Ошибки доставки
// логируются реализацией и не влияют на операцию.
type Notifier interface {
	Notify(ctx context.Context, userID string, text string)
}

// NopNotifier ничего не отправляет
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string) {}
