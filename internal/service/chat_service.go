package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"go.uber.org/zap"
)

// ChatSummary is a chat as listed for one participant.
type ChatSummary struct {
	ID              string         `json:"id"`
	CounterpartID   string         `json:"counterpart_id"`
	CounterpartName string         `json:"counterpart_name"`
	Module          string         `json:"module"`
	TimeSlot        string         `json:"time_slot"`
	LastMessage     *model.Message `json:"last_message,omitempty"`
}

// ChatService ведёт переписку пары тутор/студент
type ChatService struct {
	chats     ChatStore
	users     UserStore
	publisher events.Publisher
	broker    events.Broker
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewChatService(chats ChatStore, users UserStore, broker events.Broker, notifier Notifier, logger *zap.Logger) *ChatService {
	return &ChatService{
		chats:     chats,
		users:     users,
		publisher: broker,
		broker:    broker,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// SortMessages orders messages by the sender's CreatedAt, oldest first.
// Messages with equal timestamps keep their stored order.
func SortMessages(messages []model.Message) {
	slices.SortStableFunc(messages, func(a, b model.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// Get возвращает чат пары с сообщениями по возрастанию времени
func (s *ChatService) Get(ctx context.Context, actor identity.Principal, key model.PairKey) (*model.Chat, error) {
	if !key.Has(actor.UserID) {
		return nil, ErrForbidden
	}

	chat, err := s.chats.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if chat == nil {
		return nil, ErrNotFound
	}

	SortMessages(chat.Messages)
	return chat, nil
}

// List возвращает чаты пользователя
func (s *ChatService) List(ctx context.Context, actor identity.Principal) ([]*ChatSummary, error) {
	chats, err := s.chats.ListByParticipant(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	ids := make([]string, 0, len(chats))
	for _, chat := range chats {
		ids = append(ids, chat.Key.Other(actor.UserID))
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get counterparts: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName()
	}

	summaries := make([]*ChatSummary, 0, len(chats))
	for _, chat := range chats {
		other := chat.Key.Other(actor.UserID)
		summary := &ChatSummary{
			ID:              chat.ID,
			CounterpartID:   other,
			CounterpartName: names[other],
			Module:          chat.Module,
			TimeSlot:        chat.TimeSlot,
		}
		if len(chat.Messages) > 0 {
			SortMessages(chat.Messages)
			last := chat.Messages[len(chat.Messages)-1]
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// PostMessage добавляет сообщение в чат пары. Получатель всегда второй
// участник пары, время берётся с часов отправителя, если оно передано.
func (s *ChatService) PostMessage(ctx context.Context, actor identity.Principal, key model.PairKey, text string, sentAt time.Time) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !key.Has(actor.UserID) {
		return nil, ErrForbidden
	}

	exists, err := s.chats.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check chat: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	if sentAt.IsZero() {
		sentAt = s.now()
	}
	msg := model.Message{
		Text:       text,
		SenderID:   actor.UserID,
		ReceiverID: key.Other(actor.UserID),
		CreatedAt:  sentAt,
	}

	if err := s.chats.AppendMessage(ctx, key, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	pair := key.String()
	if err := s.publisher.Publish(ctx, events.Notify(events.KindUpdated, pair, events.Chat(pair))...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Error(err))
	}
	s.notifier.Notify(ctx, msg.ReceiverID, "💬 New message: "+preview(text))

	s.logger.Info("Message posted",
		zap.String("chat_id", pair),
		zap.String("sender_id", msg.SenderID),
		zap.String("receiver_id", msg.ReceiverID),
	)

	return &msg, nil
}

// Watch открывает поток снимков чата пары
func (s *ChatService) Watch(ctx context.Context, actor identity.Principal, key model.PairKey) (*events.Feed[*model.Chat], error) {
	if !key.Has(actor.UserID) {
		return nil, ErrForbidden
	}

	sub, err := s.broker.Subscribe(ctx, events.Chat(key.String()))
	if err != nil {
		return nil, fmt.Errorf("subscribe chat: %w", err)
	}

	return events.NewFeed(ctx, sub, func(ctx context.Context) (*model.Chat, error) {
		return s.Get(ctx, actor, key)
	}, s.logger), nil
}

func preview(text string) string {
	const limit = 80
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
