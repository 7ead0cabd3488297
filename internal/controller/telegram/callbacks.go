package telegram

import (
	"context"
	"errors"
	"strings"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Callback data: <prefix><session id>. Telegram limits callback data to 64
// bytes, a uuid fits.
const (
	AcceptRequest  = "accept_request:"
	DeclineRequest = "decline_request:"
)

// HandleCallback распределяет нажатия inline кнопок
func (c *BotController) HandleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}
	data := callback.Data

	c.logger.Info("Routing callback",
		zap.String("data", data),
		zap.Int64("user_id", callback.From.ID),
	)

	switch {
	case strings.HasPrefix(data, AcceptRequest):
		c.handleRequestAnswer(ctx, b, callback, strings.TrimPrefix(data, AcceptRequest), true)
	case strings.HasPrefix(data, DeclineRequest):
		c.handleRequestAnswer(ctx, b, callback, strings.TrimPrefix(data, DeclineRequest), false)
	default:
		answerCallback(ctx, b, callback.ID, "", false)
	}
}

// handleRequestAnswer принимает или отклоняет заявку от имени тутора
func (c *BotController) handleRequestAnswer(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, sessionID string, accept bool) {
	if sessionID == "" {
		answerCallback(ctx, b, callback.ID, "❌ Invalid request", true)
		return
	}

	msg := callback.Message.Message
	chatID := callback.From.ID
	if msg != nil {
		chatID = msg.Chat.ID
	}

	user, err := c.users.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		c.logger.Error("Failed to get user", zap.Int64("chat_id", chatID), zap.Error(err))
		answerCallback(ctx, b, callback.ID, "❌ Something went wrong, try again.", true)
		return
	}
	if user == nil {
		answerCallback(ctx, b, callback.ID, "❌ This chat is not linked to a profile.", true)
		return
	}

	var (
		text    string
		session *model.Session
	)
	if accept {
		session, err = c.sessions.Accept(ctx, principalOf(user), sessionID)
		text = "✅ Request accepted"
	} else {
		err = c.sessions.Decline(ctx, principalOf(user), sessionID)
		text = "❌ Request declined"
	}
	if err != nil {
		answerCallback(ctx, b, callback.ID, answerError(err), true)
		if !errors.Is(err, service.ErrForbidden) {
			c.clearKeyboard(ctx, b, msg, answerError(err))
		}
		c.logger.Info("Request answer rejected",
			zap.String("session_id", sessionID),
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return
	}

	answerCallback(ctx, b, callback.ID, text, false)
	if session != nil {
		text += "\n\n" + FormatSession(session)
	}
	c.clearKeyboard(ctx, b, msg, text)
}

// clearKeyboard заменяет сообщение с кнопками итоговым текстом
func (c *BotController) clearKeyboard(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	if msg == nil {
		return
	}
	_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Text:      text,
	})
	if err != nil {
		c.logger.Warn("Failed to edit message", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func answerCallback(ctx context.Context, b *bot.Bot, callbackID, text string, alert bool) {
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
}

func answerError(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionExpired):
		return "⌛ This request has expired"
	case errors.Is(err, service.ErrNotFound):
		return "❌ Request not found"
	case errors.Is(err, service.ErrForbidden):
		return "❌ This request is not addressed to you"
	case errors.Is(err, service.ErrInvalidTransition):
		return "ℹ️ This request was already answered"
	default:
		return "❌ Something went wrong, try again."
	}
}
