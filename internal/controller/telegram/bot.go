package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type BotController struct {
	bot      *bot.Bot
	users    UserDirectory
	sessions *service.SessionService
	links    *service.TelegramLinkService
	logger   *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	users UserDirectory,
	sessions *service.SessionService,
	links *service.TelegramLinkService,
	logger *zap.Logger,
) *BotController {
	return &BotController{
		bot:      botInstance,
		users:    users,
		sessions: sessions,
		links:    links,
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	// deep link приходит как "/start <code>"
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/unlink", bot.MatchTypeExact, c.HandleUnlink)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.HandleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sessions", bot.MatchTypeExact, c.HandleSessions)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/requests", bot.MatchTypeExact, c.HandleRequests)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/week", bot.MatchTypeExact, c.HandleWeek)
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, AcceptRequest, bot.MatchTypePrefix, c.HandleCallback)
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, DeclineRequest, bot.MatchTypePrefix, c.HandleCallback)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Link this chat to TutorLink"},
		{Command: "help", Description: "❓ Commands"},
		{Command: "sessions", Description: "📅 My sessions"},
		{Command: "requests", Description: "📩 Pending requests (tutors)"},
		{Command: "week", Description: "🗓 This week as a calendar"},
		{Command: "unlink", Description: "🔌 Unlink this chat"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start запускает бота. Блокируется до отмены ctx.
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
}

// HandleStart привязывает чат по коду из приложения (/start <code>).
// Без кода показывает, к какому профилю привязан чат.
func (c *BotController) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	code, ok := startPayload(update.Message.Text)
	if !ok {
		return
	}
	if code != "" {
		c.link(ctx, b, chatID, code)
		return
	}

	user, err := c.users.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		c.logger.Error("Failed to get user", zap.Int64("chat_id", chatID), zap.Error(err))
		c.sendMessage(ctx, b, chatID, "❌ Something went wrong, try again.")
		return
	}

	if user != nil {
		c.sendMessage(ctx, b, chatID, fmt.Sprintf(
			"👋 Hi, %s! This chat is linked to your TutorLink profile.\n\n/sessions - my sessions\n/requests - pending requests",
			user.Name,
		))
		return
	}

	c.sendMessage(ctx, b, chatID,
		"👋 Welcome to TutorLink notifications!\n\n"+
			"Open your profile in the app, choose \"Link Telegram\" and send the command it shows here: /start <code>")
}

func (c *BotController) link(ctx context.Context, b *bot.Bot, chatID int64, code string) {
	user, err := c.links.Link(ctx, code, chatID)
	switch {
	case errors.Is(err, service.ErrInvalidLinkCode), errors.Is(err, service.ErrNotFound):
		c.sendMessage(ctx, b, chatID, "❌ This code is invalid or expired. Create a new one in the app.")
		return
	case errors.Is(err, service.ErrChatLinked):
		c.sendMessage(ctx, b, chatID, "❌ This chat is already linked to another profile. Send /unlink first.")
		return
	case err != nil:
		c.logger.Error("Failed to link chat", zap.Int64("chat_id", chatID), zap.Error(err))
		c.sendMessage(ctx, b, chatID, "❌ Something went wrong, try again.")
		return
	}

	c.sendMessage(ctx, b, chatID, fmt.Sprintf(
		"✅ Linked to %s's profile. Session and chat updates will arrive here.",
		user.FullName(),
	))
}

// startPayload разбирает "/start", "/start <code>" и "/start@bot <code>".
// ok=false для других команд с тем же префиксом.
func startPayload(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	command, _, _ := strings.Cut(fields[0], "@")
	if command != "/start" {
		return "", false
	}
	if len(fields) > 1 {
		return fields[1], true
	}
	return "", true
}

// HandleUnlink отвязывает чат от профиля
func (c *BotController) HandleUnlink(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := c.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	if err := c.links.Unlink(ctx, principalOf(user)); err != nil {
		c.logger.Error("Failed to unlink chat", zap.String("user_id", user.ID), zap.Error(err))
		c.sendMessage(ctx, b, chatID, "❌ Something went wrong, try again.")
		return
	}

	c.sendMessage(ctx, b, chatID, "🔌 This chat is no longer linked. You will not receive notifications here.")
}

// HandleHelp обрабатывает команду /help
func (c *BotController) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	c.sendMessage(ctx, b, update.Message.Chat.ID, "📚 Commands:\n\n"+
		"/start <code> - link this chat with the code from the app\n"+
		"/unlink - stop notifications in this chat\n"+
		"/sessions - your sessions\n"+
		"/requests - pending requests with accept and decline buttons (tutors)\n"+
		"/week - this week's sessions as a calendar")
}

// HandleSessions показывает сессии пользователя
func (c *BotController) HandleSessions(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := c.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	views, err := c.sessions.List(ctx, principalOf(user))
	if err != nil {
		c.logger.Error("Failed to list sessions", zap.String("user_id", user.ID), zap.Error(err))
		c.sendMessage(ctx, b, chatID, "❌ Something went wrong, try again.")
		return
	}

	if len(views) == 0 {
		c.sendMessage(ctx, b, chatID, "📭 You have no sessions yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📅 Your sessions:\n")
	for _, v := range views {
		sb.WriteString("\n")
		sb.WriteString(FormatSession(v.Session))
		if v.CanRate {
			sb.WriteString("\n⭐ Waiting for your rating")
		}
		sb.WriteString("\n")
	}
	c.sendMessage(ctx, b, chatID, sb.String())
}

// HandleRequests показывает тутору pending заявки
func (c *BotController) HandleRequests(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := c.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	if !user.IsTutor() {
		c.sendMessage(ctx, b, chatID, "❌ Only tutors receive session requests.")
		return
	}

	requests, err := c.sessions.ListPendingRequests(ctx, principalOf(user))
	if err != nil {
		c.logger.Error("Failed to list pending requests", zap.String("user_id", user.ID), zap.Error(err))
		c.sendMessage(ctx, b, chatID, "❌ Something went wrong, try again.")
		return
	}

	if len(requests) == 0 {
		c.sendMessage(ctx, b, chatID, "📭 No pending requests.")
		return
	}

	c.sendMessage(ctx, b, chatID, fmt.Sprintf("📩 Pending requests: %d", len(requests)))
	for _, r := range requests {
		var sb strings.Builder
		sb.WriteString(FormatSession(r.Session))
		sb.WriteString("\n👤 " + r.StudentName)
		if r.StudentAverageRating != nil {
			sb.WriteString(fmt.Sprintf(" (⭐ %.1f)", *r.StudentAverageRating))
		}
		if r.AdditionalDetails != "" {
			sb.WriteString("\n📝 " + r.AdditionalDetails)
		}

		_, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        sb.String(),
			ReplyMarkup: requestKeyboard(r.ID),
		})
		if err != nil {
			c.logger.Error("Failed to send request", zap.String("session_id", r.ID), zap.Error(err))
		}
	}
}

// HandleWeek отправляет календарь текущей недели картинкой
func (c *BotController) HandleWeek(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := c.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	views, err := c.sessions.List(ctx, principalOf(user))
	if err != nil {
		c.logger.Error("Failed to list sessions", zap.String("user_id", user.ID), zap.Error(err))
		c.sendMessage(ctx, b, chatID, "❌ Something went wrong, try again.")
		return
	}

	sessions := make([]*model.Session, 0, len(views))
	for _, v := range views {
		sessions = append(sessions, v.Session)
	}

	now := time.Now()
	img, err := RenderWeek(WeekStart(now), sessions, now)
	if err != nil {
		c.logger.Error("Failed to render week", zap.String("user_id", user.ID), zap.Error(err))
		c.sendMessage(ctx, b, chatID, "❌ Something went wrong, try again.")
		return
	}

	_, err = b.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: "week.png", Data: bytes.NewReader(img)},
		Caption: "🗓 Your week",
	})
	if err != nil {
		c.logger.Error("Failed to send week image", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// requireUser находит профиль, привязанный к чату
func (c *BotController) requireUser(ctx context.Context, b *bot.Bot, update *models.Update) (*model.User, bool) {
	if update.Message == nil {
		return nil, false
	}
	chatID := update.Message.Chat.ID

	user, err := c.users.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		c.logger.Error("Failed to get user", zap.Int64("chat_id", chatID), zap.Error(err))
		c.sendMessage(ctx, b, chatID, "❌ Something went wrong, try again.")
		return nil, false
	}

	if user == nil {
		c.sendMessage(ctx, b, chatID, "❌ This chat is not linked to a profile. Send /start for instructions.")
		return nil, false
	}

	return user, true
}

// sendMessage отправляет сообщение и логирует если не удалось
func (c *BotController) sendMessage(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		c.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func principalOf(user *model.User) identity.Principal {
	return identity.Principal{UserID: user.ID, Role: user.Role}
}

var statusEmoji = map[model.SessionStatus]string{
	model.SessionStatusPending:  "⏳",
	model.SessionStatusAccepted: "✅",
	model.SessionStatusPaid:     "💰",
}

// FormatSession форматирует сессию для сообщения
func FormatSession(s *model.Session) string {
	return fmt.Sprintf("%s %s\n📆 %s, %s\n📊 %s",
		statusEmoji[s.Status],
		s.Module,
		s.SessionDate.Format("02 Jan 2006"),
		s.TimeSlot,
		s.Status,
	)
}
