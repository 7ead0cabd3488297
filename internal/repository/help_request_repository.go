package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type HelpRequestRepository struct {
	*base.Repository
}

func NewHelpRequestRepository(pool *pgxpool.Pool) *HelpRequestRepository {
	return &HelpRequestRepository{Repository: base.NewRepository(pool)}
}

// Create сохраняет обращение в поддержку
func (r *HelpRequestRepository) Create(ctx context.Context, req *model.HelpRequest) error {
	query := `
		INSERT INTO help_requests (id, user_id, email, name, student_num, query_type, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.QueryRow(
		ctx, query,
		req.ID,
		req.UserID,
		req.Email,
		req.Name,
		req.StudentNum,
		req.QueryType,
		req.Message,
	).Scan(&req.CreatedAt)

	if err != nil {
		return fmt.Errorf("create help request: %w", err)
	}

	return nil
}
