package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/model"
	"go.uber.org/zap"
)

// ProfileUpdate holds the editable profile fields.
type ProfileUpdate struct {
	Name        string `json:"name" validate:"required,max=100"`
	Surname     string `json:"surname" validate:"required,max=100"`
	Degree      string `json:"degree" validate:"required,max=200"`
	YearOfStudy string `json:"year_of_study" validate:"max=50"`
	Bio         string `json:"bio" validate:"max=2000"`
}

// Profile is a user profile with resolved download links.
type Profile struct {
	*model.User
	ImageURL      string `json:"image_url,omitempty"`
	TranscriptURL string `json:"transcript_url,omitempty"`
}

// Upload is a file sent by the client.
type Upload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
}

func ProfilePicturePath(userID string) string {
	return "users/" + userID + "/profilePicture"
}

func TranscriptPath(userID string) string {
	return "users/" + userID + "/transcript"
}

// ProfileService отвечает за профиль пользователя и его файлы
type ProfileService struct {
	users     UserStore
	blobs     BlobStore
	publisher events.Publisher
	logger    *zap.Logger
}

func NewProfileService(users UserStore, blobs BlobStore, publisher events.Publisher, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		users:     users,
		blobs:     blobs,
		publisher: publisher,
		logger:    logger,
	}
}

// Get возвращает профиль. Контакты и ссылка на транскрипт выдаются только
// владельцу, фото профиля видно всем.
func (s *ProfileService) Get(ctx context.Context, actor identity.Principal, userID string) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	owner := actor.UserID == user.ID
	if !owner {
		user = user.Public()
	}

	profile := &Profile{User: user}
	if user.ImagePath != nil {
		profile.ImageURL, err = s.blobs.DownloadURL(ctx, *user.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("picture url: %w", err)
		}
	}
	if user.TranscriptPath != nil && owner {
		profile.TranscriptURL, err = s.blobs.DownloadURL(ctx, *user.TranscriptPath)
		if err != nil {
			return nil, fmt.Errorf("transcript url: %w", err)
		}
	}
	return profile, nil
}

// Update сохраняет редактируемые поля профиля
func (s *ProfileService) Update(ctx context.Context, actor identity.Principal, upd ProfileUpdate) (*model.User, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Surname = strings.TrimSpace(upd.Surname)
	upd.Degree = strings.TrimSpace(upd.Degree)
	upd.YearOfStudy = strings.TrimSpace(upd.YearOfStudy)
	upd.Bio = strings.TrimSpace(upd.Bio)

	if err := validateStruct(upd); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	user.Name = upd.Name
	user.Surname = upd.Surname
	user.Degree = upd.Degree
	user.YearOfStudy = upd.YearOfStudy
	user.Bio = upd.Bio

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.changed(ctx, user.ID)
	s.logger.Info("Profile updated", zap.String("user_id", user.ID))

	return user, nil
}

// UploadPicture заменяет фото профиля
func (s *ProfileService) UploadPicture(ctx context.Context, actor identity.Principal, file Upload) (string, error) {
	if !strings.HasPrefix(file.ContentType, "image/") {
		return "", invalid("profile picture must be an image")
	}

	path := ProfilePicturePath(actor.UserID)
	if err := s.blobs.Upload(ctx, path, file.Reader, file.Size, file.ContentType); err != nil {
		return "", fmt.Errorf("upload picture: %w", err)
	}
	if err := s.users.SetImagePath(ctx, actor.UserID, &path); err != nil {
		return "", fmt.Errorf("set image path: %w", err)
	}

	s.changed(ctx, actor.UserID)
	s.logger.Info("Profile picture uploaded",
		zap.String("user_id", actor.UserID),
		zap.Int64("size", file.Size),
	)

	return s.blobs.DownloadURL(ctx, path)
}

// RemovePicture удаляет фото профиля
func (s *ProfileService) RemovePicture(ctx context.Context, actor identity.Principal) error {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return ErrNotFound
	}
	if user.ImagePath == nil {
		return nil
	}

	if err := s.blobs.Delete(ctx, *user.ImagePath); err != nil {
		return fmt.Errorf("delete picture: %w", err)
	}
	if err := s.users.SetImagePath(ctx, actor.UserID, nil); err != nil {
		return fmt.Errorf("clear image path: %w", err)
	}

	s.changed(ctx, actor.UserID)
	s.logger.Info("Profile picture removed", zap.String("user_id", actor.UserID))

	return nil
}

// UploadTranscript сохраняет академическую справку тутора и отмечает его проверенным
func (s *ProfileService) UploadTranscript(ctx context.Context, actor identity.Principal, file Upload) error {
	if !actor.IsTutor() {
		return ErrForbidden
	}
	if file.ContentType != "application/pdf" && !strings.HasPrefix(file.ContentType, "image/") {
		return invalid("transcript must be a PDF or an image")
	}

	path := TranscriptPath(actor.UserID)
	if err := s.blobs.Upload(ctx, path, file.Reader, file.Size, file.ContentType); err != nil {
		return fmt.Errorf("upload transcript: %w", err)
	}
	if err := s.users.SetTranscript(ctx, actor.UserID, path, true); err != nil {
		return fmt.Errorf("set transcript: %w", err)
	}

	s.changed(ctx, actor.UserID)
	s.logger.Info("Transcript uploaded",
		zap.String("user_id", actor.UserID),
		zap.Int64("size", file.Size),
	)

	return nil
}

func (s *ProfileService) changed(ctx context.Context, userID string) {
	if err := s.publisher.Publish(ctx, events.Notify(events.KindUpdated, userID, events.User(userID))...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Error(err))
	}
}
