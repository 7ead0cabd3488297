package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository"
)

type ChatRepository struct {
	store *Store
}

func (r *ChatRepository) Ensure(_ context.Context, chat *model.Chat) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureChat(chat), nil
}

// ensureChat must be called with s.mu held.
func (s *Store) ensureChat(seed *model.Chat) bool {
	id := seed.Key.String()
	if _, ok := s.chats[id]; ok {
		return false
	}
	chat := copyChat(seed, false)
	chat.ID = id
	chat.CreatedAt = s.now()
	s.chats[id] = chat
	return true
}

func (r *ChatRepository) Exists(_ context.Context, key model.PairKey) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.chats[key.String()]
	return ok, nil
}

// GetByKey returns messages in insertion order; ordering by time is the reader's job.
func (r *ChatRepository) GetByKey(_ context.Context, key model.PairKey) (*model.Chat, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[key.String()]
	if !ok {
		return nil, nil
	}
	return copyChat(chat, true), nil
}

func (r *ChatRepository) ListByParticipant(_ context.Context, userID string) ([]*model.Chat, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Chat
	for _, chat := range s.chats {
		if chat.Key.Has(userID) {
			out = append(out, copyChat(chat, true))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ChatRepository) AppendMessage(_ context.Context, key model.PairKey, msg model.Message) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[key.String()]
	if !ok {
		return fmt.Errorf("append chat message: %w", repository.ErrNotFound)
	}
	chat.Messages = append(chat.Messages, msg)
	return nil
}

type HelpRequestRepository struct {
	store *Store
}

func (r *HelpRequestRepository) Create(_ context.Context, req *model.HelpRequest) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	req.CreatedAt = s.now()
	c := *req
	s.help = append(s.help, &c)
	return nil
}
