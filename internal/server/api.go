// Package server implements the REST handlers for registration, login and
// profiles.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/huddle/internal/auth"
	"github.com/Tyrowin/huddle/internal/chat"
	"github.com/Tyrowin/huddle/internal/user"
)

// API serves the request/response part of huddle.
type API struct {
	auth  *auth.Service
	users *user.Service
	log   zerolog.Logger
}

// NewAPI creates the REST handlers.
func NewAPI(authSvc *auth.Service, users *user.Service, log zerolog.Logger) *API {
	return &API{
		auth:  authSvc,
		users: users,
		log:   log.With().Str("component", "api").Logger(),
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HealthHandler reports that the process is serving.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (a *API) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return c, false
	}
	if c.Username == "" || c.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password are required")
		return c, false
	}
	return c, true
}

// Register handles POST /auth/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	c, ok := a.decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := a.auth.Register(r.Context(), c.Username, c.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, session)
	case errors.Is(err, auth.ErrUsernameTaken):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		a.log.Error().Err(err).Msg("registration failed")
		jsonError(w, http.StatusInternalServerError, "registration failed")
	}
}

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	c, ok := a.decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := a.auth.Login(r.Context(), c.Username, c.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, session)
	case errors.Is(err, auth.ErrInvalidCredentials):
		jsonError(w, http.StatusUnauthorized, err.Error())
	default:
		a.log.Error().Err(err).Msg("login failed")
		jsonError(w, http.StatusInternalServerError, "login failed")
	}
}

// Profile handles GET /user/profile.
func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	summary, err := a.users.Profile(r.Context(), userID)
	if err != nil {
		a.profileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// UpdateProfile handles PUT /user/profile.
func (a *API) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var upd user.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	summary, err := a.users.UpdateProfile(r.Context(), userID, upd)
	if err != nil {
		a.profileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListUsers handles GET /user/all.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.users.List(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("listing users failed")
		jsonError(w, http.StatusInternalServerError, "listing users failed")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) profileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		jsonError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, user.ErrUsernameTaken):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, user.ErrInvalidColor), errors.Is(err, auth.ErrInvalidUsername):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		a.log.Error().Err(err).Msg("profile request failed")
		jsonError(w, http.StatusInternalServerError, "profile request failed")
	}
}
