package server

import (
	"errors"
	"net/http"

	"github.com/voyagen/primecast/internal/auth"
	"github.com/voyagen/primecast/internal/catalog"
	"github.com/voyagen/primecast/internal/service"
	"github.com/voyagen/primecast/internal/store"
)

// adminSession returns the admin email from a valid admin cookie.
func (s *Server) adminSession(r *http.Request) (string, bool) {
	c, err := r.Cookie(auth.AdminCookie)
	if err != nil {
		return "", false
	}
	claims, err := s.deps.Tokens.Verify(c.Value, auth.RoleAdmin)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if !s.deps.Admin.Match(req.Email, req.Password) {
		s.logger.Warn().Str("email", req.Email).Msg("admin login rejected")
		writeMsg(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, exp, err := s.deps.Tokens.Issue(req.Email, auth.RoleAdmin)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.setCookie(w, auth.AdminCookie, token, exp)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAdminCheck(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.adminSession(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]bool{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	s.clearCookie(w, auth.AdminCookie)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Accounts.ListUsers(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type updateUserRequest struct {
	UserID string             `json:"userId"`
	Action string             `json:"action"`
	Data   service.ActionData `json:"data"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	u, err := s.deps.Accounts.ApplyAction(r.Context(), req.UserID, req.Action, req.Data)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeMsg(w, http.StatusBadRequest, "Missing required fields")
		return
	case errors.Is(err, service.ErrInvalidAction):
		writeMsg(w, http.StatusBadRequest, "Invalid action")
		return
	case errors.Is(err, store.ErrNotFound):
		writeMsg(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Accounts.DeleteUser(r.Context(), r.URL.Query().Get("userId"))
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeMsg(w, http.StatusBadRequest, "User ID required")
		return
	case errors.Is(err, store.ErrNotFound):
		writeMsg(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleCatalogRefresh queues a forced reload when Redis is available and
// runs it inline otherwise.
func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	admin, _ := s.adminSession(r)
	if s.deps.Redis != nil {
		if err := service.RequestCatalogRefresh(r.Context(), s.deps.Redis, admin); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
		return
	}

	snap, err := s.deps.Catalog.Refresh(r.Context())
	switch {
	case errors.Is(err, catalog.ErrRefreshInProgress):
		writeErr(w, http.StatusConflict, err)
		return
	case err != nil:
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queued":    false,
		"countries": len(snap.Countries),
		"channels":  len(snap.Channels),
		"streams":   len(snap.Streams),
		"fetchedAt": snap.FetchedAt,
	})
}
