package http

import (
	"net/http"
	"strings"

	"github.com/Freeeeeet/tutorlink/internal/service"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSuggestTutors(w http.ResponseWriter, r *http.Request) {
	tutors, err := s.tutors.Suggest(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tutors":        nonNil(tutors),
		"has_suggested": len(tutors) > 0,
	})
}

func (s *Server) handleSearchTutors(w http.ResponseWriter, r *http.Request) {
	tutors, err := s.tutors.Search(r.Context(), r.URL.Query().Get("module"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tutors": nonNil(tutors)})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.Get(r.Context(), principal(r), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	user, err := s.profiles.Update(r.Context(), principal(r), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleIssueTelegramCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.links.IssueCode(r.Context(), principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

func (s *Server) handleUnlinkTelegram(w http.ResponseWriter, r *http.Request) {
	if err := s.links.Unlink(r.Context(), principal(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadPicture(w http.ResponseWriter, r *http.Request) {
	upload, cleanup, ok := readUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	url, err := s.profiles.UploadPicture(r.Context(), principal(r), upload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"image_url": url})
}

func (s *Server) handleRemovePicture(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.RemovePicture(r.Context(), principal(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadTranscript(w http.ResponseWriter, r *http.Request) {
	upload, cleanup, ok := readUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	if err := s.profiles.UploadTranscript(r.Context(), principal(r), upload); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitHelp(w http.ResponseWriter, r *http.Request) {
	var req service.HelpRequestInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	created, err := s.help.Submit(r.Context(), principal(r), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// readUpload reads the multipart "file" field. On failure the response is
// already written.
func readUpload(w http.ResponseWriter, r *http.Request) (service.Upload, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload")
		return service.Upload{}, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return service.Upload{}, nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	upload := service.Upload{
		Reader:      file,
		Size:        header.Size,
		ContentType: strings.ToLower(contentType),
	}
	cleanup := func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}
	return upload, cleanup, true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
