package http

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/go-chi/chi/v5"
)

type postMessageRequest struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.List(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	key, ok := chatKey(w, r)
	if !ok {
		return
	}

	chat, err := s.chats.Get(r.Context(), principal(r), key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	key, ok := chatKey(w, r)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	msg, err := s.chats.PostMessage(r.Context(), principal(r), key, req.Text, req.CreatedAt)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleWatchChat(w http.ResponseWriter, r *http.Request) {
	key, ok := chatKey(w, r)
	if !ok {
		return
	}

	feed, err := s.chats.Watch(r.Context(), principal(r), key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	stream(w, r, feed, s.logger)
}

func chatKey(w http.ResponseWriter, r *http.Request) (model.PairKey, bool) {
	key, err := model.ParsePairKey(chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_chat_id")
		return model.PairKey{}, false
	}
	return key, true
}
