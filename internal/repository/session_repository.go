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

const sessionColumns = `id, tutor_id, student_id, module, session_date, time_slot, additional_details,
	status, student_rating, tutor_rating, payment_method, paid_at, created_at`

// ratingColumns колонка сессии, в которой сторона хранит свою оценку
var ratingColumns = map[model.Party]string{
	model.PartyStudent: "student_rating",
	model.PartyTutor:   "tutor_rating",
}

type SessionRepository struct {
	*base.Repository
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{Repository: base.NewRepository(pool)}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var session model.Session
	err := row.Scan(
		&session.ID,
		&session.TutorID,
		&session.StudentID,
		&session.Module,
		&session.SessionDate,
		&session.TimeSlot,
		&session.AdditionalDetails,
		&session.Status,
		&session.StudentRating,
		&session.TutorRating,
		&session.PaymentMethod,
		&session.PaidAt,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func collectSessions(rows pgx.Rows) ([]*model.Session, error) {
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Create создаёт новую заявку на занятие
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, tutor_id, student_id, module, session_date, time_slot, additional_details, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.QueryRow(
		ctx, query,
		session.ID,
		session.TutorID,
		session.StudentID,
		session.Module,
		session.SessionDate,
		session.TimeSlot,
		session.AdditionalDetails,
		session.Status,
	).Scan(&session.CreatedAt)

	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByID получает сессию по ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	session, err := scanSession(r.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	return session, nil
}

// ListByTutor получает все сессии тутора
func (r *SessionRepository) ListByTutor(ctx context.Context, tutorID string) ([]*model.Session, error) {
	rows, err := r.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE tutor_id = $1 ORDER BY session_date DESC`, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by tutor: %w", err)
	}
	return collectSessions(rows)
}

// ListByStudent получает все сессии студента
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID string) ([]*model.Session, error) {
	rows, err := r.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE student_id = $1 ORDER BY session_date DESC`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by student: %w", err)
	}
	return collectSessions(rows)
}

// ListPendingByTutor получает все pending заявки тутора
func (r *SessionRepository) ListPendingByTutor(ctx context.Context, tutorID string) ([]*model.Session, error) {
	rows, err := r.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE tutor_id = $1 AND status = 'pending' ORDER BY session_date ASC`, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions by tutor: %w", err)
	}
	return collectSessions(rows)
}

// AcceptWithChat переводит pending сессию в accepted и создаёт чат пары, если его ещё нет.
// accepted=false означает, что сессия уже не pending.
func (r *SessionRepository) AcceptWithChat(ctx context.Context, id string, seed *model.Chat) (accepted bool, chatCreated bool, err error) {
	err = r.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE sessions SET status = 'accepted' WHERE id = $1 AND status = 'pending'`, id)
		if err != nil {
			return fmt.Errorf("accept session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		accepted = true

		chatCreated, err = ensureChat(ctx, tx, seed)
		return err
	})
	if err != nil {
		return false, false, err
	}
	return accepted, chatCreated, nil
}

// DeletePending удаляет заявку, только если она ещё pending
func (r *SessionRepository) DeletePending(ctx context.Context, id string) (bool, error) {
	affected, err := r.ExecAffected(ctx, `DELETE FROM sessions WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("delete pending session: %w", err)
	}
	return affected > 0, nil
}

// DeleteExpiredPending удаляет просроченные pending заявки.
// Пустой tutorID означает всех туторов.
func (r *SessionRepository) DeleteExpiredPending(ctx context.Context, now time.Time, tutorID string) ([]*model.Session, error) {
	query := `
		DELETE FROM sessions
		WHERE status = 'pending' AND session_date < $1 AND ($2 = '' OR tutor_id = $2)
		RETURNING ` + sessionColumns

	rows, err := r.Query(ctx, query, now, tutorID)
	if err != nil {
		return nil, fmt.Errorf("delete expired sessions: %w", err)
	}
	return collectSessions(rows)
}

// MarkPaid фиксирует оплату принятой сессии
func (r *SessionRepository) MarkPaid(ctx context.Context, id string, method model.PaymentMethod, paidAt time.Time) (bool, error) {
	affected, err := r.ExecAffected(ctx,
		`UPDATE sessions SET status = 'paid', payment_method = $1, paid_at = $2 WHERE id = $3 AND status = 'accepted'`,
		method, paidAt, id)
	if err != nil {
		return false, fmt.Errorf("mark session paid: %w", err)
	}
	return affected > 0, nil
}

// ApplyRating ставит оценку стороны в сессии и добавляет её в профиль второй стороны.
// Всё выполняется в одной транзакции; nil, nil если оценка уже выставлена
// или сессия не в подходящем статусе.
func (r *SessionRepository) ApplyRating(ctx context.Context, sessionID string, party model.Party, rating int, average model.AverageFunc) (*model.RatingSummary, error) {
	column, ok := ratingColumns[party]
	if !ok {
		return nil, fmt.Errorf("unknown party %q", party)
	}

	var summary *model.RatingSummary
	err := r.InTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE sessions SET ` + column + ` = $1
			WHERE id = $2 AND ` + column + ` IS NULL AND status IN ('accepted', 'paid')
			RETURNING tutor_id, student_id
		`

		var tutorID, studentID string
		err := tx.QueryRow(ctx, query, rating, sessionID).Scan(&tutorID, &studentID)
		if err != nil {
			if base.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("stamp session rating: %w", err)
		}

		target := tutorID
		if party == model.PartyTutor {
			target = studentID
		}

		summary, err = appendRating(ctx, tx, target, rating, average)
		if err != nil {
			return err
		}
		if summary == nil {
			return fmt.Errorf("rated user %s: %w", target, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
