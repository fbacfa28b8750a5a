package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/smallnest/researchchat/agent"
	"github.com/smallnest/researchchat/conversation"
	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response: %v", err)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, rag.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, rag.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, rag.ErrEmptyDocument), errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrInvalidSession):
		return http.StatusBadRequest
	case agent.IsKind(err, agent.KindPrecondition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
