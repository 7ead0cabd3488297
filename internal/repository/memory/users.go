package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository"
)

type UserRepository struct {
	store *Store
}

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("create user: %w", repository.ErrDuplicate)
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("create user: %w", repository.ErrDuplicate)
		}
	}

	if user.Ratings == nil {
		user.Ratings = []int{}
	}
	user.CreatedAt = s.now()
	s.users[user.ID] = copyUser(user)
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*model.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (r *UserRepository) GetByTelegramChatID(_ context.Context, chatID int64) (*model.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (r *UserRepository) GetByIDs(_ context.Context, ids []string) ([]*model.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.User{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

func (r *UserRepository) ListTutors(_ context.Context) ([]*model.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.User
	for _, u := range s.users {
		if u.IsTutor() {
			out = append(out, copyUser(u))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *UserRepository) UpdateProfile(_ context.Context, user *model.User) error {
	return r.update(user.ID, "update user", func(u *model.User) bool {
		u.Name = user.Name
		u.Surname = user.Surname
		u.Degree = user.Degree
		u.YearOfStudy = user.YearOfStudy
		u.Bio = user.Bio
		return true
	})
}

func (r *UserRepository) SetEmailVerified(_ context.Context, id string) error {
	return r.update(id, "set email verified", func(u *model.User) bool {
		u.EmailVerified = true
		return true
	})
}

func (r *UserRepository) SetTelegramChatID(_ context.Context, id string, chatID *int64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("set telegram chat id: %w", repository.ErrNotFound)
	}
	next := copyUser(u)
	next.TelegramChatID = nil
	if chatID != nil {
		for _, other := range s.users {
			if other.ID != id && other.TelegramChatID != nil && *other.TelegramChatID == *chatID {
				return fmt.Errorf("set telegram chat id: %w", repository.ErrDuplicate)
			}
		}
		c := *chatID
		next.TelegramChatID = &c
	}
	s.users[id] = next
	return nil
}

func (r *UserRepository) SetImagePath(_ context.Context, id string, path *string) error {
	return r.update(id, "set image path", func(u *model.User) bool {
		u.ImagePath = nil
		if path != nil {
			p := *path
			u.ImagePath = &p
		}
		return true
	})
}

func (r *UserRepository) SetTranscript(_ context.Context, id string, path string, verified bool) error {
	return r.update(id, "set transcript", func(u *model.User) bool {
		if !u.IsTutor() {
			return false
		}
		u.TranscriptPath = &path
		u.IsVerified = verified
		return true
	})
}

func (r *UserRepository) AppendRating(_ context.Context, userID string, rating int, average model.AverageFunc) (*model.RatingSummary, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendRating(userID, rating, average)
}

func (r *UserRepository) update(id, op string, apply func(u *model.User) bool) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	next := copyUser(u)
	if !apply(next) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	s.users[id] = next
	return nil
}

// appendRating must be called with s.mu held.
func (s *Store) appendRating(userID string, rating int, average model.AverageFunc) (*model.RatingSummary, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}

	ratings := append(append([]int{}, u.Ratings...), rating)
	avg, err := average(ratings)
	if err != nil {
		return nil, fmt.Errorf("recompute average: %w", err)
	}

	next := copyUser(u)
	next.Ratings = ratings
	next.AverageRating = &avg
	s.users[userID] = next

	return &model.RatingSummary{UserID: userID, Ratings: append([]int{}, ratings...), AverageRating: avg}, nil
}
