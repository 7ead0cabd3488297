package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, email_verified, role, name, surname, student_num, degree,
	year_of_study, bio, image_path, transcript_path, is_verified, ratings, average_rating, telegram_chat_id, created_at`

type UserRepository struct {
	*base.Repository
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{Repository: base.NewRepository(pool)}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.Role,
		&user.Name,
		&user.Surname,
		&user.StudentNum,
		&user.Degree,
		&user.YearOfStudy,
		&user.Bio,
		&user.ImagePath,
		&user.TranscriptPath,
		&user.IsVerified,
		&user.Ratings,
		&user.AverageRating,
		&user.TelegramChatID,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func collectUsers(rows pgx.Rows) ([]*model.User, error) {
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Create создаёт новый профиль
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, email_verified, role, name, surname, student_num, degree, year_of_study, bio, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	err := r.QueryRow(
		ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		user.Role,
		user.Name,
		user.Surname,
		user.StudentNum,
		user.Degree,
		user.YearOfStudy,
		user.Bio,
		user.IsVerified,
	).Scan(&user.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", ErrDuplicate)
		}
		return fmt.Errorf("create user: %w", err)
	}

	if user.Ratings == nil {
		user.Ratings = []int{}
	}

	return nil
}

// GetByID получает профиль по ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// GetByEmail получает профиль по email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// GetByTelegramChatID получает профиль, привязанный к чату Telegram
func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := scanUser(r.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_chat_id = $1`, chatID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by telegram chat id: %w", err)
	}
	return user, nil
}

// GetByIDs получает профили по списку ID
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if len(ids) == 0 {
		return []*model.User{}, nil
	}

	rows, err := r.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	return collectUsers(rows)
}

// ListTutors получает всех туторов
func (r *UserRepository) ListTutors(ctx context.Context) ([]*model.User, error) {
	rows, err := r.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = 'tutor' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}
	return collectUsers(rows)
}

// UpdateProfile обновляет редактируемые поля профиля
func (r *UserRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET name = $1, surname = $2, degree = $3, year_of_study = $4, bio = $5
		WHERE id = $6
	`

	affected, err := r.ExecAffected(
		ctx, query,
		user.Name,
		user.Surname,
		user.Degree,
		user.YearOfStudy,
		user.Bio,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("update user: %w", ErrNotFound)
	}

	return nil
}

// SetEmailVerified отмечает email подтверждённым
func (r *UserRepository) SetEmailVerified(ctx context.Context, id string) error {
	affected, err := r.ExecAffected(ctx, `UPDATE users SET email_verified = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set email verified: %w", ErrNotFound)
	}
	return nil
}

// SetImagePath сохраняет путь к фото профиля (nil удаляет)
func (r *UserRepository) SetImagePath(ctx context.Context, id string, path *string) error {
	affected, err := r.ExecAffected(ctx, `UPDATE users SET image_path = $1 WHERE id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("set image path: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set image path: %w", ErrNotFound)
	}
	return nil
}

// SetTelegramChatID привязывает чат Telegram к профилю (nil отвязывает).
// Один чат принадлежит не более чем одному профилю.
func (r *UserRepository) SetTelegramChatID(ctx context.Context, id string, chatID *int64) error {
	affected, err := r.ExecAffected(ctx, `UPDATE users SET telegram_chat_id = $1 WHERE id = $2`, chatID, id)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("set telegram chat id: %w", ErrDuplicate)
		}
		return fmt.Errorf("set telegram chat id: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set telegram chat id: %w", ErrNotFound)
	}
	return nil
}

// SetTranscript сохраняет путь к транскрипту и флаг верификации тутора
func (r *UserRepository) SetTranscript(ctx context.Context, id string, path string, verified bool) error {
	affected, err := r.ExecAffected(ctx,
		`UPDATE users SET transcript_path = $1, is_verified = $2 WHERE id = $3 AND role = 'tutor'`,
		path, verified, id)
	if err != nil {
		return fmt.Errorf("set transcript: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set transcript: %w", ErrNotFound)
	}
	return nil
}

// AppendRating добавляет оценку и пересчитывает среднее в одной транзакции
func (r *UserRepository) AppendRating(ctx context.Context, userID string, rating int, average model.AverageFunc) (*model.RatingSummary, error) {
	var summary *model.RatingSummary
	err := r.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		summary, err = appendRating(ctx, tx, userID, rating, average)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// appendRating блокирует строку профиля, дописывает оценку и сохраняет новое среднее.
// Возвращает nil, nil если профиля нет.
func appendRating(ctx context.Context, q base.Querier, userID string, rating int, average model.AverageFunc) (*model.RatingSummary, error) {
	var ratings []int
	err := q.QueryRow(ctx, `SELECT ratings FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&ratings)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock user ratings: %w", err)
	}

	ratings = append(ratings, rating)
	avg, err := average(ratings)
	if err != nil {
		return nil, fmt.Errorf("recompute average: %w", err)
	}

	_, err = q.Exec(ctx, `UPDATE users SET ratings = $1, average_rating = $2 WHERE id = $3`, ratings, avg, userID)
	if err != nil {
		return nil, fmt.Errorf("store ratings: %w", err)
	}

	return &model.RatingSummary{UserID: userID, Ratings: ratings, AverageRating: avg}, nil
}
