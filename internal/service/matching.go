package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"go.uber.org/zap"
)

// SuggestedTutorsLimit is how many tutors FindSuggestedTutors returns at most.
const SuggestedTutorsLimit = 3

// normalizeDegree lowercases and trims a degree string.
func normalizeDegree(degree string) string {
	return strings.ToLower(strings.TrimSpace(degree))
}

// compact lowercases s and removes all whitespace.
func compact(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

// FindSuggestedTutors returns up to SuggestedTutorsLimit tutors whose degree
// equals studentDegree or shares at least one word with it, best rated first.
// An empty result means there is nothing to suggest.
func FindSuggestedTutors(studentDegree string, tutors []*model.User) []*model.User {
	degree := normalizeDegree(studentDegree)
	words := strings.Fields(degree)
	if len(words) == 0 {
		return nil
	}

	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[w] = struct{}{}
	}

	var matches []*model.User
	for _, tutor := range tutors {
		if !tutor.IsTutor() {
			continue
		}
		tutorDegree := normalizeDegree(tutor.Degree)
		if tutorDegree == "" {
			continue
		}
		if tutorDegree == degree || sharesWord(wordSet, strings.Fields(tutorDegree)) {
			matches = append(matches, tutor)
		}
	}

	RankByRating(matches)
	if len(matches) > SuggestedTutorsLimit {
		matches = matches[:SuggestedTutorsLimit]
	}
	return matches
}

func sharesWord(set map[string]struct{}, words []string) bool {
	for _, w := range words {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

// SearchTutorsByModule returns tutors whose whitespace-free, lowercased degree
// contains the whitespace-free, lowercased module text, best rated first.
func SearchTutorsByModule(moduleText string, tutors []*model.User) []*model.User {
	needle := compact(moduleText)

	var matches []*model.User
	for _, tutor := range tutors {
		if tutor.IsTutor() && strings.Contains(compact(tutor.Degree), needle) {
			matches = append(matches, tutor)
		}
	}

	RankByRating(matches)
	return matches
}

// RankByRating sorts tutors by average rating, highest first. Tutors without
// ratings go last; ties keep their input order.
func RankByRating(tutors []*model.User) {
	slices.SortStableFunc(tutors, func(a, b *model.User) int {
		switch {
		case a.AverageRating == nil && b.AverageRating == nil:
			return 0
		case a.AverageRating == nil:
			return 1
		case b.AverageRating == nil:
			return -1
		case *a.AverageRating > *b.AverageRating:
			return -1
		case *a.AverageRating < *b.AverageRating:
			return 1
		}
		return 0
	})
}

// TutorService отвечает за подбор и поиск туторов
type TutorService struct {
	users  UserStore
	logger *zap.Logger
}

func NewTutorService(users UserStore, logger *zap.Logger) *TutorService {
	return &TutorService{users: users, logger: logger}
}

// Suggest подбирает туторов по специальности текущего пользователя
func (s *TutorService) Suggest(ctx context.Context, actor identity.Principal) ([]*model.User, error) {
	me, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if me == nil {
		return nil, ErrNotFound
	}

	tutors, err := s.users.ListTutors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}

	suggested := publicProfiles(FindSuggestedTutors(me.Degree, tutors))
	s.logger.Debug("Tutors suggested",
		zap.String("user_id", actor.UserID),
		zap.Int("count", len(suggested)),
	)
	return suggested, nil
}

// Search ищет туторов по названию модуля
func (s *TutorService) Search(ctx context.Context, moduleText string) ([]*model.User, error) {
	tutors, err := s.users.ListTutors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}
	return publicProfiles(SearchTutorsByModule(moduleText, tutors)), nil
}

func publicProfiles(users []*model.User) []*model.User {
	for i, u := range users {
		users[i] = u.Public()
	}
	return users
}
