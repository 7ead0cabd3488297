package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const chatColumns = `id, tutor_id, student_id, session_id, module, time_slot, additional_details, created_at`

type ChatRepository struct {
	*base.Repository
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{Repository: base.NewRepository(pool)}
}

func scanChat(row pgx.Row) (*model.Chat, error) {
	var chat model.Chat
	err := row.Scan(
		&chat.ID,
		&chat.TutorID,
		&chat.StudentID,
		&chat.SessionID,
		&chat.Module,
		&chat.TimeSlot,
		&chat.AdditionalDetails,
		&chat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	chat.Key = model.PairKey{TutorID: chat.TutorID, StudentID: chat.StudentID}
	chat.Messages = []model.Message{}
	return &chat, nil
}

// ensureChat создаёт чат пары, если его ещё нет. Существующий чат не меняется.
func ensureChat(ctx context.Context, q base.Querier, chat *model.Chat) (bool, error) {
	query := `
		INSERT INTO chats (id, tutor_id, student_id, session_id, module, time_slot, additional_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := q.Exec(
		ctx, query,
		chat.Key.String(),
		chat.TutorID,
		chat.StudentID,
		chat.SessionID,
		chat.Module,
		chat.TimeSlot,
		chat.AdditionalDetails,
	)
	if err != nil {
		return false, fmt.Errorf("ensure chat: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Ensure создаёт чат пары, если его ещё нет
func (r *ChatRepository) Ensure(ctx context.Context, chat *model.Chat) (bool, error) {
	return ensureChat(ctx, r.Pool(), chat)
}

// GetByKey получает чат пары вместе с сообщениями
func (r *ChatRepository) GetByKey(ctx context.Context, key model.PairKey) (*model.Chat, error) {
	chat, err := scanChat(r.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, key.String()))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}

	rows, err := r.Query(ctx, `
		SELECT text, sender_id, receiver_id, created_at
		FROM chat_messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.Text, &msg.SenderID, &msg.ReceiverID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		chat.Messages = append(chat.Messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	return chat, nil
}

// ListByParticipant получает чаты пользователя вместе с последним сообщением
func (r *ChatRepository) ListByParticipant(ctx context.Context, userID string) ([]*model.Chat, error) {
	rows, err := r.Query(ctx, `
		SELECT c.id, c.tutor_id, c.student_id, c.session_id, c.module, c.time_slot,
		       c.additional_details, c.created_at,
		       m.text, m.sender_id, m.receiver_id, m.created_at
		FROM chats c
		LEFT JOIN LATERAL (
			SELECT text, sender_id, receiver_id, created_at
			FROM chat_messages
			WHERE chat_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) m ON true
		WHERE c.tutor_id = $1 OR c.student_id = $1
		ORDER BY c.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*model.Chat
	for rows.Next() {
		var (
			chat       model.Chat
			text       *string
			senderID   *string
			receiverID *string
			sentAt     *time.Time
		)
		err := rows.Scan(
			&chat.ID,
			&chat.TutorID,
			&chat.StudentID,
			&chat.SessionID,
			&chat.Module,
			&chat.TimeSlot,
			&chat.AdditionalDetails,
			&chat.CreatedAt,
			&text,
			&senderID,
			&receiverID,
			&sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chat.Key = model.PairKey{TutorID: chat.TutorID, StudentID: chat.StudentID}
		chat.Messages = []model.Message{}
		if text != nil {
			chat.Messages = append(chat.Messages, model.Message{
				Text:       *text,
				SenderID:   *senderID,
				ReceiverID: *receiverID,
				CreatedAt:  *sentAt,
			})
		}
		chats = append(chats, &chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	return chats, nil
}

// AppendMessage дописывает сообщение в чат пары
func (r *ChatRepository) AppendMessage(ctx context.Context, key model.PairKey, msg model.Message) error {
	_, err := r.Pool().Exec(ctx, `
		INSERT INTO chat_messages (chat_id, sender_id, receiver_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, key.String(), msg.SenderID, msg.ReceiverID, msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// Exists проверяет наличие чата пары
func (r *ChatRepository) Exists(ctx context.Context, key model.PairKey) (bool, error) {
	var exists bool
	err := r.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chats WHERE id = $1)`, key.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chat exists: %w", err)
	}
	return exists, nil
}
