package http

import (
	"net/http"

	"github.com/Freeeeeet/tutorlink/internal/identity"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req identity.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	user, err := s.identity.SignUp(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	session, err := s.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing_token")
		return
	}

	if err := s.identity.VerifyEmail(r.Context(), token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.SendVerification(r.Context(), principal(r).UserID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	if err := s.identity.SignOut(r.Context(), token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	actor := principal(r)
	profile, err := s.profiles.Get(r.Context(), actor, actor.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleWatchMe(w http.ResponseWriter, r *http.Request) {
	feed, err := s.identity.Watch(r.Context(), principal(r).UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	stream(w, r, feed, s.logger)
}
