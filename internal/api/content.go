package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/newsdesk/internal/auth"
	"github.com/nerrad567/newsdesk/internal/content"
)

type contentRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	IsShared bool   `json:"is_shared"`
}

type shareRequest struct {
	Shared bool `json:"shared"`
}

// kindParam returns the resource kind from the URL. Unknown kinds are
// rejected by the repository.
func kindParam(r *http.Request) auth.ResourceKind {
	return auth.ResourceKind(chi.URLParam(r, "kind"))
}

// idParam parses the numeric item ID from the URL.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// handleListContent returns the items of a kind visible to the caller.
func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	items, err := s.content.List(r.Context(), userFromContext(r.Context()), kindParam(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// handleCreateContent creates an item owned by the caller.
func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	item := &content.Item{Kind: kindParam(r), Title: req.Title, Body: req.Body, IsShared: req.IsShared}
	if err := s.content.Create(r.Context(), userFromContext(r.Context()), item); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleGetContent returns one item if the caller can see it.
func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}

	item, err := s.content.Get(r.Context(), userFromContext(r.Context()), kindParam(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleUpdateContent replaces an item's title and body.
func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	item := &content.Item{ID: id, Kind: kindParam(r), Title: req.Title, Body: req.Body}
	if err := s.content.Update(r.Context(), userFromContext(r.Context()), item); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleSetShared flags a shareable item as visible to every user.
func (s *Server) handleSetShared(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	uc := userFromContext(r.Context())
	if err := s.content.SetShared(r.Context(), uc, kindParam(r), id, req.Shared); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	item, err := s.content.Get(r.Context(), uc, kindParam(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteContent removes an item.
func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}

	if err := s.content.Delete(r.Context(), userFromContext(r.Context()), kindParam(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
