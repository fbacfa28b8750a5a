package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"uptime_seconds":     int64(time.Since(s.started).Seconds()),
		"active_connections": s.metrics.Snapshot().ActiveConnections,
		"live_sessions":      s.registry.Len(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.metrics.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"active_connections": snap.ActiveConnections,
		"messages_processed": snap.MessagesProcessed,
		"research_runs":      snap.ResearchRuns,
		"live_sessions":      s.registry.Len(),
		"settings":           s.settings,
	})
}

type titleRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.badRequest(w, "invalid request body")
			return
		}
	}
	_, info, err := s.registry.Create(r.Context(), req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.registry.Store().ListSessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Store().GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		s.badRequest(w, "title is required")
		return
	}
	st := s.registry.Store()
	if err := st.UpdateSessionTitle(r.Context(), id, req.Title); err != nil {
		s.writeError(w, err)
		return
	}
	info, err := st.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.registry.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := os.RemoveAll(filepath.Join(s.uploadDir, id)); err != nil {
		s.logger.Warn("remove uploads of %s: %v", id, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st := s.registry.Store()
	if _, err := st.GetSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	msgs, err := st.LoadMessages(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := sess.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type uploadResponse struct {
	Document rag.Document `json:"document"`
	Added    bool         `json:"added"`
	Message  string       `json:"message"`
	Stats    rag.Stats    `json:"stats"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ctx := r.Context()
	if _, err := s.registry.Store().GetSession(ctx, id); err != nil {
		s.writeError(w, err)
		return
	}
	docs, err := s.registry.Documents(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, fmt.Sprintf("file is required: %v", err))
		return
	}
	defer file.Close()

	if _, err := rag.KindOf(header.Filename); err != nil {
		s.metrics.DocumentUploaded(true)
		s.writeError(w, err)
		return
	}
	if s.maxUpload > 0 && header.Size > s.maxUpload {
		s.metrics.DocumentUploaded(true)
		s.writeError(w, fmt.Errorf("%w: %s", rag.ErrTooLarge, header.Filename))
		return
	}

	path, err := s.saveUpload(id, header.Filename, file)
	if err != nil {
		s.metrics.DocumentUploaded(true)
		s.writeError(w, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer f.Close()

	doc, added, err := docs.AddDocument(ctx, header.Filename, f, header.Size)
	if err != nil {
		s.metrics.DocumentUploaded(true)
		_ = os.Remove(path)
		s.writeError(w, err)
		return
	}
	s.metrics.DocumentUploaded(false)

	msg := fmt.Sprintf("✅ %s başarıyla yüklendi ve işlendi (%d metin parçası)", doc.Filename, doc.ChunkCount)
	if !added {
		_ = os.Remove(path)
		msg = fmt.Sprintf("ℹ️ %s zaten yüklenmiş", doc.Filename)
	} else {
		rec := &store.Document{
			SessionID:   id,
			Filename:    doc.Filename,
			FileHash:    doc.FileHash,
			Path:        path,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			ChunkCount:  doc.ChunkCount,
		}
		if err := s.registry.Store().SaveDocument(ctx, rec); err != nil {
			s.logger.Warn("record document %s: %v", doc.Filename, err)
		}
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	s.writeJSON(w, status, uploadResponse{Document: doc, Added: added, Message: msg, Stats: docs.Stats()})
}

func (s *Server) saveUpload(sessionID, filename string, src io.Reader) (string, error) {
	dir := filepath.Join(s.uploadDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+"_"+filepath.Base(filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, err := s.registry.Store().GetSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	docs, err := s.registry.Documents(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, docs.Stats())
}

// handleDeleteDocument removes a document by its content hash.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	hash := chi.URLParam(r, "docID")
	ctx := r.Context()
	if _, err := s.registry.Store().GetSession(ctx, id); err != nil {
		s.writeError(w, err)
		return
	}
	docs, err := s.registry.Documents(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := docs.DeleteDocument(ctx, hash); err != nil {
		s.writeError(w, err)
		return
	}
	s.forgetDocument(r, id, hash)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) forgetDocument(r *http.Request, sessionID, hash string) {
	st := s.registry.Store()
	recs, err := st.ListDocuments(r.Context(), sessionID)
	if err != nil {
		s.logger.Warn("list documents of %s: %v", sessionID, err)
		return
	}
	for _, d := range recs {
		if d.FileHash != hash {
			continue
		}
		if err := st.DeleteDocument(r.Context(), sessionID, d.ID); err != nil {
			s.logger.Warn("delete document record %s: %v", d.ID, err)
		}
		if d.Path != "" {
			_ = os.Remove(d.Path)
		}
	}
}
