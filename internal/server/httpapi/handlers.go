package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/model"
	"github.com/dmitrijs2005/worldloom/internal/server/models"
	"github.com/dmitrijs2005/worldloom/internal/server/services"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to HTTP statuses. Version conflicts carry
// the current server row so the client can resolve without another request.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *services.ConflictError
	if errors.As(err, &conflict) {
		s.writeJSON(w, http.StatusConflict, &api.ConflictResponse{
			Message: conflict.Error(),
			Row:     toRow(conflict.Current),
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrorValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrorAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrRefreshTokenExpired):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "Internal error", "path", r.URL.Path, "error", err)
		s.writeJSON(w, status, &api.ErrorResponse{Message: "internal error"})
		return
	}

	s.writeJSON(w, status, &api.ErrorResponse{Message: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.ErrorValidation
	}
	return nil
}

func entityType(r *http.Request) (model.EntityType, error) {
	return model.ParseEntityType(chi.URLParam(r, "type"))
}

func toRow(e *models.Entity) api.Row {
	if e == nil {
		return api.Row{}
	}
	return api.Row{
		ID:        e.ID,
		ClientID:  e.ClientID,
		ProjectID: e.ProjectID,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		DeletedAt: e.DeletedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.users.Register(r.Context(), req.Username, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	pair, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &api.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	pair, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &api.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	pair, err := s.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &api.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	key, putURL, getURL, err := s.attachments.PresignedPair(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &api.PresignResponse{Key: key, PutURL: putURL, GetURL: getURL})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	t, err := entityType(r)
	if err != nil {
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	var req api.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	entity, err := s.sync.Create(r.Context(), userID(r.Context()), t, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &api.CreateResponse{ID: entity.ID, UpdatedAt: entity.UpdatedAt})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	t, err := entityType(r)
	if err != nil {
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	var req api.UpdateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	updatedAt, err := s.sync.Update(r.Context(), userID(r.Context()), t, chi.URLParam(r, "id"), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &api.UpdateResponse{UpdatedAt: updatedAt})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	t, err := entityType(r)
	if err != nil {
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	var req api.DeleteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	deletedAt, err := s.sync.Delete(r.Context(), userID(r.Context()), t, chi.URLParam(r, "id"), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &api.UpdateResponse{UpdatedAt: deletedAt})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	t, err := entityType(r)
	if err != nil {
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	q := r.URL.Query()

	var since int64
	if v := q.Get("since"); v != "" {
		since, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, r, common.ErrorValidation)
			return
		}
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, common.ErrorValidation)
			return
		}
	}

	resp, err := s.sync.Pull(r.Context(), userID(r.Context()), t, since, q.Get("project_id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}
