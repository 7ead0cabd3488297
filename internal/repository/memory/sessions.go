package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository"
)

type SessionRepository struct {
	store *Store
}

func (r *SessionRepository) Create(_ context.Context, session *model.Session) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("create session: %w", repository.ErrDuplicate)
	}
	session.CreatedAt = s.now()
	s.sessions[session.ID] = copySession(session)
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (*model.Session, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(session), nil
}

func (r *SessionRepository) ListByTutor(_ context.Context, tutorID string) ([]*model.Session, error) {
	return r.list(func(s *model.Session) bool { return s.TutorID == tutorID }, true), nil
}

func (r *SessionRepository) ListByStudent(_ context.Context, studentID string) ([]*model.Session, error) {
	return r.list(func(s *model.Session) bool { return s.StudentID == studentID }, true), nil
}

func (r *SessionRepository) ListPendingByTutor(_ context.Context, tutorID string) ([]*model.Session, error) {
	return r.list(func(s *model.Session) bool {
		return s.TutorID == tutorID && s.Status == model.SessionStatusPending
	}, false), nil
}

func (r *SessionRepository) AcceptWithChat(_ context.Context, id string, seed *model.Chat) (bool, bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.Status != model.SessionStatusPending {
		return false, false, nil
	}
	next := copySession(session)
	next.Status = model.SessionStatusAccepted
	s.sessions[id] = next

	return true, s.ensureChat(seed), nil
}

func (r *SessionRepository) DeletePending(_ context.Context, id string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.Status != model.SessionStatusPending {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

func (r *SessionRepository) DeleteExpiredPending(_ context.Context, now time.Time, tutorID string) ([]*model.Session, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := []*model.Session{}
	for id, session := range s.sessions {
		if tutorID != "" && session.TutorID != tutorID {
			continue
		}
		if session.IsExpired(now) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	sortByDate(expired, false)
	return expired, nil
}

func (r *SessionRepository) MarkPaid(_ context.Context, id string, method model.PaymentMethod, paidAt time.Time) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.Status != model.SessionStatusAccepted {
		return false, nil
	}
	next := copySession(session)
	next.Status = model.SessionStatusPaid
	next.PaymentMethod = &method
	next.PaidAt = &paidAt
	s.sessions[id] = next
	return true, nil
}

func (r *SessionRepository) ApplyRating(_ context.Context, sessionID string, party model.Party, rating int, average model.AverageFunc) (*model.RatingSummary, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.RatingBy(party) != nil {
		return nil, nil
	}
	if session.Status != model.SessionStatusAccepted && session.Status != model.SessionStatusPaid {
		return nil, nil
	}

	target := session.Counterpart(party)
	summary, err := s.appendRating(target, rating, average)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, fmt.Errorf("rated user %s: %w", target, repository.ErrNotFound)
	}

	next := copySession(session)
	if party == model.PartyStudent {
		next.StudentRating = &rating
	} else {
		next.TutorRating = &rating
	}
	s.sessions[sessionID] = next

	return summary, nil
}

func (r *SessionRepository) list(match func(*model.Session) bool, newestFirst bool) []*model.Session {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Session{}
	for _, session := range s.sessions {
		if match(session) {
			out = append(out, copySession(session))
		}
	}
	sortByDate(out, newestFirst)
	return out
}

func sortByDate(sessions []*model.Session, newestFirst bool) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i].SessionDate, sessions[j].SessionDate
		if a.Equal(b) {
			return sessions[i].ID < sessions[j].ID
		}
		if newestFirst {
			return a.After(b)
		}
		return a.Before(b)
	})
}
