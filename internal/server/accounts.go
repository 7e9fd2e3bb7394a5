package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/voyagen/primecast/internal/auth"
	"github.com/voyagen/primecast/internal/models"
	"github.com/voyagen/primecast/internal/service"
	"github.com/voyagen/primecast/internal/store"
)

var timeNow = time.Now

type sessionResponse struct {
	User        *models.User `json:"user"`
	HasAccess   bool         `json:"hasAccess"`
	TrialActive bool         `json:"trialActive"`
	TrialEnd    time.Time    `json:"trialEnd"`
}

func newSessionResponse(u *models.User) sessionResponse {
	now := timeNow()
	return sessionResponse{
		User:        u,
		HasAccess:   u.HasAccess(now),
		TrialActive: u.TrialActive(now),
		TrialEnd:    u.TrialEnd(),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	u, err := s.deps.Accounts.Register(r.Context(), in)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, store.ErrEmailTaken):
		writeMsg(w, http.StatusConflict, "User already exists")
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User created successfully", "user": u})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	u, err := s.deps.Accounts.Login(r.Context(), req.Email, req.Password)
	var suspended *service.SuspendedError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeMsg(w, http.StatusBadRequest, "Please enter your email and password")
		return
	case errors.Is(err, service.ErrUserNotFound):
		writeMsg(w, http.StatusUnauthorized, "No user found with this email")
		return
	case errors.Is(err, service.ErrInvalidPassword):
		writeMsg(w, http.StatusUnauthorized, "Invalid password")
		return
	case errors.As(err, &suspended):
		writeMsg(w, http.StatusForbidden, suspended.Message())
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	token, exp, err := s.deps.Tokens.Issue(u.ID, auth.RoleUser)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.setCookie(w, auth.UserCookie, token, exp)
	writeJSON(w, http.StatusOK, newSessionResponse(u))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(auth.UserCookie)
	if err != nil {
		writeMsg(w, http.StatusUnauthorized, "Not signed in")
		return
	}
	claims, err := s.deps.Tokens.Verify(c.Value, auth.RoleUser)
	if err != nil {
		s.clearCookie(w, auth.UserCookie)
		writeMsg(w, http.StatusUnauthorized, "Not signed in")
		return
	}
	u, err := s.deps.Accounts.User(r.Context(), claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		s.clearCookie(w, auth.UserCookie)
		writeMsg(w, http.StatusUnauthorized, "Not signed in")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(u))
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.clearCookie(w, auth.UserCookie)
	writeNoContent(w)
}
