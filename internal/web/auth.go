package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/conorfennell/flashstudy/internal/auth"
)

type SignUpRequest struct {
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password"`
}

type IDTokenRequest struct {
	Provider string `json:"provider" validate:"required"`
	IDToken  string `json:"idToken" validate:"required"`
	Nonce    string `json:"nonce"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type UpdatePasswordRequest struct {
	Password string `json:"password"`
}

// SessionResponse describes the signed-in user without exposing tokens.
type SessionResponse struct {
	SignedIn  bool       `json:"signedIn"`
	UserID    string     `json:"userId,omitempty"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.ConfirmPassword)
	writeAuthResponse(w, err, "Sign up successful")
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	writeAuthResponse(w, err, "Signed in")
}

func (s *Server) handleSignInIDToken(w http.ResponseWriter, r *http.Request) {
	var req IDTokenRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.auth.SignInWithIDToken(r.Context(), req.Provider, req.IDToken, req.Nonce)
	writeAuthResponse(w, err, "Signed in")
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.auth.SendPasswordReset(r.Context(), req.Email)
	writeAuthResponse(w, err, "Password reset email sent")
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.auth.UpdatePassword(r.Context(), req.Password)
	writeAuthResponse(w, err, "Password updated")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.auth.Logout(r.Context())
	writeAuthResponse(w, err, "Logged out")
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.auth.Session(r.Context())
	if err != nil {
		writeAuthResponse(w, err, "")
		return
	}
	if session == nil {
		writeJSONResponse(w, http.StatusOK, SessionResponse{})
		return
	}
	resp := SessionResponse{SignedIn: true, UserID: session.UserID, Email: session.Email}
	if !session.ExpiresAt.IsZero() {
		resp.ExpiresAt = &session.ExpiresAt
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, auth.CreateNonce())
}

func writeAuthResponse(w http.ResponseWriter, err error, success string) {
	writeJSONResponse(w, authStatus(err), auth.ResponseFor(err, success))
}

func authStatus(err error) int {
	var ae *auth.APIError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrEmptyFields), errors.Is(err, auth.ErrPasswordMismatch):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &ae) && ae.Code < http.StatusInternalServerError:
		return ae.Code
	}
	return http.StatusBadGateway
}
