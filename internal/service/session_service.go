package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRequest is what a student fills in to ask a tutor for a session.
type SessionRequest struct {
	TutorID           string    `json:"tutor_id" validate:"required"`
	Module            string    `json:"module" validate:"required,max=200"`
	SessionDate       time.Time `json:"session_date" validate:"required"`
	TimeSlot          string    `json:"time_slot" validate:"required,timeslot"`
	AdditionalDetails string    `json:"additional_details" validate:"required,max=2000"`
}

// PendingRequest is a pending session as shown to the tutor.
type PendingRequest struct {
	*model.Session
	StudentName          string   `json:"student_name"`
	StudentAverageRating *float64 `json:"student_average_rating"`
}

// SessionView is a session as shown to one of its participants.
type SessionView struct {
	*model.Session
	Completed bool `json:"completed"` // дата прошла
	CanRate   bool `json:"can_rate"`  // участник ещё не оценил прошедшую сессию
	CanPay    bool `json:"can_pay"`   // тутор может подтвердить оплату
}

// SessionService управляет жизненным циклом заявок на занятия
type SessionService struct {
	sessions  SessionStore
	users     UserStore
	publisher events.Publisher
	broker    events.Broker
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewSessionService(
	sessions SessionStore,
	users UserStore,
	broker events.Broker,
	notifier Notifier,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		users:     users,
		publisher: broker,
		broker:    broker,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Create создаёт заявку студента к тутору
func (s *SessionService) Create(ctx context.Context, actor identity.Principal, req SessionRequest) (*model.Session, error) {
	if !actor.IsStudent() {
		return nil, ErrForbidden
	}

	req.TutorID = strings.TrimSpace(req.TutorID)
	req.Module = strings.TrimSpace(req.Module)
	req.TimeSlot = strings.TrimSpace(req.TimeSlot)
	req.AdditionalDetails = strings.TrimSpace(req.AdditionalDetails)

	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := s.now()
	if !req.SessionDate.After(now) {
		return nil, invalid("session_date must be in the future")
	}

	tutor, err := s.users.GetByID(ctx, req.TutorID)
	if err != nil {
		return nil, fmt.Errorf("get tutor: %w", err)
	}
	if tutor == nil || !tutor.IsTutor() {
		return nil, ErrNotFound
	}

	session := &model.Session{
		ID:                uuid.NewString(),
		TutorID:           tutor.ID,
		StudentID:         actor.UserID,
		Module:            req.Module,
		SessionDate:       req.SessionDate,
		TimeSlot:          req.TimeSlot,
		AdditionalDetails: req.AdditionalDetails,
		Status:            model.SessionStatusPending,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.publishSession(ctx, events.KindCreated, session)
	s.notifier.Notify(ctx, session.TutorID, fmt.Sprintf(
		"📩 New session request: %s on %s, %s",
		session.Module, session.SessionDate.Format("02 Jan 2006"), session.TimeSlot,
	))

	s.logger.Info("Session requested",
		zap.String("session_id", session.ID),
		zap.String("tutor_id", session.TutorID),
		zap.String("student_id", session.StudentID),
		zap.Time("session_date", session.SessionDate),
	)

	return session, nil
}

// Get возвращает сессию участнику
func (s *SessionService) Get(ctx context.Context, actor identity.Principal, id string) (*SessionView, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if _, ok := session.PartyOf(actor.UserID); !ok {
		return nil, ErrForbidden
	}
	return s.view(session, actor.UserID, s.now()), nil
}

// ListPendingRequests возвращает актуальные заявки тутора.
// Перед чтением просроченные заявки тутора удаляются.
func (s *SessionService) ListPendingRequests(ctx context.Context, actor identity.Principal) ([]*PendingRequest, error) {
	if !actor.IsTutor() {
		return nil, ErrForbidden
	}

	if _, err := s.expire(ctx, actor.UserID); err != nil {
		return nil, err
	}

	sessions, err := s.sessions.ListPendingByTutor(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}

	// Заявка могла истечь между удалением и чтением
	now := s.now()
	actionable := sessions[:0]
	for _, session := range sessions {
		if !session.IsExpired(now) {
			actionable = append(actionable, session)
		}
	}

	studentIDs := make([]string, 0, len(actionable))
	for _, session := range actionable {
		studentIDs = append(studentIDs, session.StudentID)
	}

	students, err := s.users.GetByIDs(ctx, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("get students: %w", err)
	}
	byID := make(map[string]*model.User, len(students))
	for _, student := range students {
		byID[student.ID] = student
	}

	requests := make([]*PendingRequest, 0, len(actionable))
	for _, session := range actionable {
		req := &PendingRequest{Session: session}
		if student, ok := byID[session.StudentID]; ok {
			req.StudentName = student.FullName()
			req.StudentAverageRating = student.AverageRating
		}
		requests = append(requests, req)
	}

	return requests, nil
}

// WatchPendingRequests открывает поток снимков заявок тутора
func (s *SessionService) WatchPendingRequests(ctx context.Context, actor identity.Principal) (*events.Feed[[]*PendingRequest], error) {
	if !actor.IsTutor() {
		return nil, ErrForbidden
	}

	sub, err := s.broker.Subscribe(ctx, events.SessionsOfTutor(actor.UserID))
	if err != nil {
		return nil, fmt.Errorf("subscribe pending requests: %w", err)
	}

	return events.NewFeed(ctx, sub, func(ctx context.Context) ([]*PendingRequest, error) {
		return s.ListPendingRequests(ctx, actor)
	}, s.logger), nil
}

// List возвращает все сессии пользователя, новые даты первыми
func (s *SessionService) List(ctx context.Context, actor identity.Principal) ([]*SessionView, error) {
	var (
		sessions []*model.Session
		err      error
	)
	if actor.IsTutor() {
		sessions, err = s.sessions.ListByTutor(ctx, actor.UserID)
	} else {
		sessions, err = s.sessions.ListByStudent(ctx, actor.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := s.now()
	views := make([]*SessionView, 0, len(sessions))
	for _, session := range sessions {
		if session.IsExpired(now) {
			continue
		}
		views = append(views, s.view(session, actor.UserID, now))
	}
	return views, nil
}

// WatchSessions открывает поток снимков всех сессий пользователя
func (s *SessionService) WatchSessions(ctx context.Context, actor identity.Principal) (*events.Feed[[]*SessionView], error) {
	topic := events.SessionsOfStudent(actor.UserID)
	if actor.IsTutor() {
		topic = events.SessionsOfTutor(actor.UserID)
	}

	sub, err := s.broker.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe sessions: %w", err)
	}

	return events.NewFeed(ctx, sub, func(ctx context.Context) ([]*SessionView, error) {
		return s.List(ctx, actor)
	}, s.logger), nil
}

// Accept принимает заявку и гарантирует наличие чата пары
func (s *SessionService) Accept(ctx context.Context, actor identity.Principal, id string) (*model.Session, error) {
	session, err := s.pendingOf(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	accepted, chatCreated, err := s.sessions.AcceptWithChat(ctx, id, model.NewChatFromSession(session))
	if err != nil {
		return nil, fmt.Errorf("accept session: %w", err)
	}
	if !accepted {
		return nil, ErrInvalidTransition
	}
	session.Status = model.SessionStatusAccepted

	s.publishSession(ctx, events.KindUpdated, session)
	if chatCreated {
		key := session.PairKey().String()
		s.publish(ctx, events.Notify(events.KindCreated, key, events.Chat(key)))
	}
	s.notifier.Notify(ctx, session.StudentID, fmt.Sprintf(
		"✅ Your %s session on %s (%s) was accepted. You can now chat with your tutor.",
		session.Module, session.SessionDate.Format("02 Jan 2006"), session.TimeSlot,
	))

	s.logger.Info("Session accepted",
		zap.String("session_id", id),
		zap.String("tutor_id", actor.UserID),
		zap.Bool("chat_created", chatCreated),
	)

	return session, nil
}

// Decline удаляет заявку. Подтверждение действия остаётся за клиентом.
func (s *SessionService) Decline(ctx context.Context, actor identity.Principal, id string) error {
	session, err := s.pendingOf(ctx, actor, id)
	if err != nil {
		return err
	}

	deleted, err := s.sessions.DeletePending(ctx, id)
	if err != nil {
		return fmt.Errorf("decline session: %w", err)
	}
	if !deleted {
		return ErrInvalidTransition
	}

	s.publishSession(ctx, events.KindDeleted, session)
	s.notifier.Notify(ctx, session.StudentID, fmt.Sprintf(
		"❌ Your %s session request on %s was declined.",
		session.Module, session.SessionDate.Format("02 Jan 2006"),
	))

	s.logger.Info("Session declined",
		zap.String("session_id", id),
		zap.String("tutor_id", actor.UserID),
	)

	return nil
}

// Pay фиксирует подтверждённую тутором оплату
func (s *SessionService) Pay(ctx context.Context, actor identity.Principal, id string, method model.PaymentMethod) (*model.Session, error) {
	if !method.Valid() {
		return nil, invalid("payment_method must be cash or zapper")
	}

	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if session.TutorID != actor.UserID {
		return nil, ErrForbidden
	}
	if session.Status != model.SessionStatusAccepted {
		return nil, ErrInvalidTransition
	}

	paidAt := s.now()
	ok, err := s.sessions.MarkPaid(ctx, id, method, paidAt)
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	session.Status = model.SessionStatusPaid
	session.PaymentMethod = &method
	session.PaidAt = &paidAt

	s.publishSession(ctx, events.KindUpdated, session)

	s.logger.Info("Session paid",
		zap.String("session_id", id),
		zap.String("method", string(method)),
	)

	return session, nil
}

// ExpirePending удаляет все просроченные заявки. Вызывается планировщиком.
func (s *SessionService) ExpirePending(ctx context.Context) (int, error) {
	expired, err := s.expire(ctx, "")
	return len(expired), err
}

func (s *SessionService) expire(ctx context.Context, tutorID string) ([]*model.Session, error) {
	expired, err := s.sessions.DeleteExpiredPending(ctx, s.now(), tutorID)
	if err != nil {
		return nil, fmt.Errorf("delete expired sessions: %w", err)
	}

	for _, session := range expired {
		s.publishSession(ctx, events.KindDeleted, session)
		s.notifier.Notify(ctx, session.StudentID, fmt.Sprintf(
			"⌛ Your %s session request on %s expired before the tutor answered.",
			session.Module, session.SessionDate.Format("02 Jan 2006"),
		))
		s.logger.Info("Expired session request deleted",
			zap.String("session_id", session.ID),
			zap.String("tutor_id", session.TutorID),
		)
	}

	return expired, nil
}

// pendingOf загружает pending заявку тутора. Просроченная заявка удаляется.
func (s *SessionService) pendingOf(ctx context.Context, actor identity.Principal, id string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if session.TutorID != actor.UserID {
		return nil, ErrForbidden
	}
	if session.Status != model.SessionStatusPending {
		return nil, ErrInvalidTransition
	}
	if session.IsExpired(s.now()) {
		if _, err := s.expire(ctx, session.TutorID); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (s *SessionService) view(session *model.Session, userID string, now time.Time) *SessionView {
	v := &SessionView{Session: session, Completed: session.IsOver(now)}
	party, _ := session.PartyOf(userID)
	rateable := session.Status == model.SessionStatusAccepted || session.Status == model.SessionStatusPaid
	v.CanRate = rateable && v.Completed && session.RatingBy(party) == nil
	v.CanPay = party == model.PartyTutor && session.Status == model.SessionStatusAccepted
	return v
}

func (s *SessionService) publishSession(ctx context.Context, kind events.Kind, session *model.Session) {
	s.publish(ctx, events.Notify(kind, session.ID,
		events.SessionsOfTutor(session.TutorID),
		events.SessionsOfStudent(session.StudentID),
	))
}

func (s *SessionService) publish(ctx context.Context, evs []events.Event) {
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Error(err))
	}
}
