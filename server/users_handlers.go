package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/jrsteele09/go-backoffice/users"
)

const maxRequestBody = 1 << 20

// RoleResponse is the body of the role endpoints
type RoleResponse struct {
	ID   string     `json:"id"`
	Role users.Role `json:"role"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type bootstrapRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GetUserRoleHandler always answers 200. Unknown users and store failures
// resolve to USER.
func (s *Server) GetUserRoleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		writeJSON(w, http.StatusOK, RoleResponse{ID: id, Role: s.users.ResolveRole(r.Context(), id)})
	}
}

func (s *Server) UpdateUserRoleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSONError(w, r, err)
			return
		}
		role, err := users.ParseRole(req.Role)
		if err != nil {
			writeJSONError(w, r, err)
			return
		}

		user, err := s.users.UpdateRole(r.Context(), r.PathValue("id"), role)
		if err != nil {
			writeJSONError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// BootstrapUserHandler creates the caller's record on first login. The first
// record ever created is an administrator.
func (s *Server) BootstrapUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bootstrapRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSONError(w, r, err)
			return
		}

		user, created, err := s.users.EnsureBootstrapped(r.Context(), req.ID, req.Email, req.Name)
		if err != nil {
			writeJSONError(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, user)
	}
}

func (s *Server) ListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, err := queryInt(r, "offset")
		if err != nil {
			writeJSONError(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeJSONError(w, r, err)
			return
		}

		page, err := s.users.ListUsers(r.Context(), offset, limit)
		if err != nil {
			writeJSONError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) DeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.users.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
			writeJSONError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation("malformed JSON body")
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation("%s must be a non-negative integer", key)
	}
	return n, nil
}
