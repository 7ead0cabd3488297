package http

import (
	"net/http"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/Freeeeeet/tutorlink/internal/service"
	"github.com/go-chi/chi/v5"
)

type payRequest struct {
	Method model.PaymentMethod `json:"method"`
}

type rateRequest struct {
	Rating int `json:"rating"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req service.SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	session, err := s.sessions.Create(r.Context(), principal(r), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleWatchSessions(w http.ResponseWriter, r *http.Request) {
	feed, err := s.sessions.WatchSessions(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	stream(w, r, feed, s.logger)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	requests, err := s.sessions.ListPendingRequests(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (s *Server) handleWatchPending(w http.ResponseWriter, r *http.Request) {
	feed, err := s.sessions.WatchPendingRequests(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	stream(w, r, feed, s.logger)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.Context(), principal(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleAcceptSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Accept(r.Context(), principal(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeclineSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Decline(r.Context(), principal(r), chi.URLParam(r, "sessionID")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaySession(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	session, err := s.sessions.Pay(r.Context(), principal(r), chi.URLParam(r, "sessionID"), req.Method)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRateSession(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	summary, err := s.ratings.RateSession(r.Context(), principal(r), chi.URLParam(r, "sessionID"), req.Rating)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
