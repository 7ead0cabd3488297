package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/service"
	"github.com/Freeeeeet/tutorlink/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxUploadSize ограничивает размер загружаемых файлов профиля
const maxUploadSize = 10 << 20

// Services are the operations exposed over HTTP.
type Services struct {
	Identity *identity.Service
	Tutors   *service.TutorService
	Sessions *service.SessionService
	Ratings  *service.RatingService
	Chats    *service.ChatService
	Profiles *service.ProfileService
	Help     *service.HelpService
	Links    *service.TelegramLinkService
}

type Server struct {
	identity *identity.Service
	tutors   *service.TutorService
	sessions *service.SessionService
	ratings  *service.RatingService
	chats    *service.ChatService
	profiles *service.ProfileService
	help     *service.HelpService
	links    *service.TelegramLinkService
	logger   *zap.Logger
}

func NewServer(svc Services, logger *zap.Logger) *Server {
	return &Server{
		identity: svc.Identity,
		tutors:   svc.Tutors,
		sessions: svc.Sessions,
		ratings:  svc.Ratings,
		chats:    svc.Chats,
		profiles: svc.Profiles,
		help:     svc.Help,
		links:    svc.Links,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignUp)
		r.Post("/auth/signin", s.handleSignIn)
		r.Get("/auth/verify", s.handleVerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/signout", s.handleSignOut)
			r.Post("/auth/verification", s.handleSendVerification)
			r.Get("/auth/me", s.handleGetMe)
			r.Get("/auth/me/stream", s.handleWatchMe)

			r.Get("/tutors", s.handleSearchTutors)
			r.Get("/tutors/suggested", s.handleSuggestTutors)

			r.Get("/profiles/{userID}", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
			r.Put("/profile/picture", s.handleUploadPicture)
			r.Delete("/profile/picture", s.handleRemovePicture)
			r.Put("/profile/transcript", s.handleUploadTranscript)
			r.Post("/profile/telegram", s.handleIssueTelegramCode)
			r.Delete("/profile/telegram", s.handleUnlinkTelegram)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", s.handleCreateSession)
				r.Get("/", s.handleListSessions)
				r.Get("/stream", s.handleWatchSessions)
				r.Get("/pending", s.handleListPending)
				r.Get("/pending/stream", s.handleWatchPending)
				r.Get("/{sessionID}", s.handleGetSession)
				r.Post("/{sessionID}/accept", s.handleAcceptSession)
				r.Post("/{sessionID}/decline", s.handleDeclineSession)
				r.Post("/{sessionID}/pay", s.handlePaySession)
				r.Post("/{sessionID}/rating", s.handleRateSession)
			})

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", s.handleListChats)
				r.Get("/{chatID}", s.handleGetChat)
				r.Post("/{chatID}/messages", s.handlePostMessage)
				r.Get("/{chatID}/stream", s.handleWatchChat)
			})

			r.Post("/help", s.handleSubmitHelp)
		})
	})

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" && r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/stream") {
			// EventSource не умеет передавать заголовки
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		principal, err := s.identity.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "invalid_token")
				return
			}
			s.writeServiceError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// principal returns the caller set by authMiddleware.
func principal(r *http.Request) identity.Principal {
	p, _ := identity.FromContext(r.Context())
	return p
}

type errorResponse struct {
	Error    string   `json:"error"`
	Message  string   `json:"message,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

// writeServiceError maps domain errors to status codes. Anything else is a
// remote failure: it is logged and reported as a generic retry prompt.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *validation.Error
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_failed", Problems: ve.Problems})
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message")
	case errors.Is(err, service.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, "invalid_rating")
	case errors.Is(err, service.ErrNotFound), errors.Is(err, identity.ErrUnknownUser):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, identity.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, "email_not_verified")
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, identity.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "invalid_token")
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken")
	case errors.Is(err, service.ErrInvalidLinkCode):
		writeError(w, http.StatusBadRequest, "invalid_link_code")
	case errors.Is(err, service.ErrChatLinked):
		writeError(w, http.StatusConflict, "telegram_chat_taken")
	case errors.Is(err, service.ErrSessionExpired):
		writeError(w, http.StatusConflict, "session_expired")
	case errors.Is(err, service.ErrAlreadyRated):
		writeError(w, http.StatusConflict, "already_rated")
	case errors.Is(err, service.ErrSessionNotOver):
		writeError(w, http.StatusConflict, "session_not_over")
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status")
	default:
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "failed, try again"})
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}
