package telegram

import (
	"context"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

// UserDirectory находит профиль по ID или по привязанному чату
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)
}

// Notifier отправляет уведомления в Telegram пользователям, привязавшим чат
type Notifier struct {
	bot    *bot.Bot
	users  UserDirectory
	logger *zap.Logger
}

func NewNotifier(b *bot.Bot, users UserDirectory, logger *zap.Logger) *Notifier {
	return &Notifier{bot: b, users: users, logger: logger}
}

// Notify отправляет text пользователю. Ошибки только логируются.
func (n *Notifier) Notify(ctx context.Context, userID string, text string) {
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		n.logger.Error("Failed to get user for notification", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if user == nil || user.TelegramChatID == nil {
		return
	}

	_, err = n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: *user.TelegramChatID,
		Text:   text,
	})
	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("user_id", userID),
			zap.Int64("chat_id", *user.TelegramChatID),
			zap.Error(err),
		)
		return
	}

	n.logger.Debug("Notification sent", zap.String("user_id", userID))
}
