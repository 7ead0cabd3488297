package telegram

import "github.com/go-telegram/bot/models"

// Builder упрощает создание inline клавиатур
type Builder struct {
	rows [][]models.InlineKeyboardButton
}

func NewBuilder() *Builder {
	return &Builder{
		rows: make([][]models.InlineKeyboardButton, 0),
	}
}

// Row добавляет новый ряд кнопок
func (b *Builder) Row(buttons ...models.InlineKeyboardButton) *Builder {
	if len(buttons) > 0 {
		b.rows = append(b.rows, buttons)
	}
	return b
}

// Button создаёт кнопку с callback data
func Button(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

func (b *Builder) Build() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: b.rows,
	}
}

// requestKeyboard кнопки ответа на заявку
func requestKeyboard(sessionID string) *models.InlineKeyboardMarkup {
	return NewBuilder().
		Row(
			Button("✅ Accept", AcceptRequest+sessionID),
			Button("❌ Decline", DeclineRequest+sessionID),
		).
		Build()
}
