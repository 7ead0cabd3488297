package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HelpRequestInput struct {
	QueryType string `json:"query_type" validate:"required,querytype"`
	Message   string `json:"message" validate:"required,max=5000"`
}

// HelpService принимает обращения в поддержку
type HelpService struct {
	requests HelpRequestStore
	users    UserStore
	logger   *zap.Logger
}

func NewHelpService(requests HelpRequestStore, users UserStore, logger *zap.Logger) *HelpService {
	return &HelpService{requests: requests, users: users, logger: logger}
}

// Submit сохраняет обращение. Контакты берутся из профиля автора.
func (s *HelpService) Submit(ctx context.Context, actor identity.Principal, in HelpRequestInput) (*model.HelpRequest, error) {
	in.Message = strings.TrimSpace(in.Message)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	req := &model.HelpRequest{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.FullName(),
		StudentNum: user.StudentNum,
		QueryType:  in.QueryType,
		Message:    in.Message,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create help request: %w", err)
	}

	s.logger.Info("Help request submitted",
		zap.String("request_id", req.ID),
		zap.String("user_id", user.ID),
		zap.String("query_type", req.QueryType),
	)

	return req, nil
}
