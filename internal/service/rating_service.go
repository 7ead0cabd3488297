package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Average is the arithmetic mean of ratings.
func Average(ratings []int) (float64, error) {
	return stats.Mean(stats.LoadRawData(ratings))
}

func checkRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// RatingService ведёт списки оценок профилей и их средние значения
type RatingService struct {
	users     UserStore
	sessions  SessionStore
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewRatingService(users UserStore, sessions SessionStore, publisher events.Publisher, logger *zap.Logger) *RatingService {
	return &RatingService{
		users:     users,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyRating добавляет оценку в профиль и возвращает новое среднее
func (s *RatingService) ApplyRating(ctx context.Context, targetUserID string, rating int) (*model.RatingSummary, error) {
	if err := checkRating(rating); err != nil {
		return nil, err
	}

	summary, err := s.users.AppendRating(ctx, targetUserID, rating, Average)
	if err != nil {
		return nil, fmt.Errorf("append rating: %w", err)
	}
	if summary == nil {
		return nil, ErrNotFound
	}

	s.publish(ctx, events.Notify(events.KindUpdated, targetUserID, events.User(targetUserID)))

	s.logger.Info("Rating applied",
		zap.String("user_id", targetUserID),
		zap.Int("rating", rating),
		zap.Float64("average", summary.AverageRating),
		zap.Int("count", len(summary.Ratings)),
	)

	return summary, nil
}

// RateSession выставляет оценку второй стороне прошедшей сессии.
// Каждая сторона оценивает сессию один раз.
func (s *RatingService) RateSession(ctx context.Context, actor identity.Principal, sessionID string, rating int) (*model.RatingSummary, error) {
	if err := checkRating(rating); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}

	party, ok := session.PartyOf(actor.UserID)
	if !ok {
		return nil, ErrForbidden
	}

	if session.Status != model.SessionStatusAccepted && session.Status != model.SessionStatusPaid {
		return nil, ErrInvalidTransition
	}

	if !session.IsOver(s.now()) {
		return nil, ErrSessionNotOver
	}

	if session.RatingBy(party) != nil {
		return nil, ErrAlreadyRated
	}

	summary, err := s.sessions.ApplyRating(ctx, sessionID, party, rating, Average)
	if err != nil {
		return nil, fmt.Errorf("apply session rating: %w", err)
	}
	if summary == nil {
		// Параллельная оценка той же стороной успела раньше
		return nil, ErrAlreadyRated
	}

	s.publish(ctx, events.Notify(events.KindUpdated, sessionID,
		events.SessionsOfTutor(session.TutorID),
		events.SessionsOfStudent(session.StudentID),
	))
	s.publish(ctx, events.Notify(events.KindUpdated, summary.UserID, events.User(summary.UserID)))

	s.logger.Info("Session rated",
		zap.String("session_id", sessionID),
		zap.String("party", string(party)),
		zap.String("rated_user_id", summary.UserID),
		zap.Int("rating", rating),
		zap.Float64("average", summary.AverageRating),
	)

	return summary, nil
}

func (s *RatingService) publish(ctx context.Context, evs []events.Event) {
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Error(err))
	}
}
