package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"draw-new/internal/store"
	"draw-new/pkg/auth"
)

// UserStore is the identity store behind signup/signin.
type UserStore interface {
	CreateUser(ctx context.Context, email, password, name string) (store.User, error)
	VerifyUser(ctx context.Context, email, password string) (store.User, error)
}

type AuthAPI struct {
	Users UserStore
	JWT   *auth.JWT
	TTL   time.Duration
	Log   *slog.Logger
}

type signupReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}
type signinReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type signupResp struct {
	UserID string `json:"userId"`
}
type tokenResp struct {
	Token string      `json:"token"`
	User  authUserDTO `json:"user"`
}
type authUserDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Signup creates a user. Tokens are only issued by Signin.
func (a *AuthAPI) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	// Basic validation
	if len(req.Password) < 8 || !strings.Contains(req.Email, "@") {
		http.Error(w, "invalid email or weak password", http.StatusBadRequest)
		return
	}

	u, err := a.Users.CreateUser(r.Context(), req.Email, req.Password, req.Name)
	switch {
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "email already in use", http.StatusConflict)
		return
	case err != nil:
		a.Log.Error("auth.signup", "err", err)
		http.Error(w, "unable to sign up", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, signupResp{UserID: u.ID})
}

// Signin verifies credentials and returns a JWT
func (a *AuthAPI) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	u, err := a.Users.VerifyUser(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tok, err := a.JWT.Sign(u.ID, a.TTL)
	if err != nil {
		a.Log.Error("auth.sign", "err", err)
		http.Error(w, "unable to sign in", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokenResp{Token: tok, User: authUserDTO{ID: u.ID, Email: u.Email, Name: u.Name}})
}

// Me returns the authenticated user's ID
func (a *AuthAPI) Me(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	if uid == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": uid})
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
