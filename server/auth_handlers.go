package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/prepa-auth/auth"
	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
	"github.com/jrsteele09/prepa-auth/users"
)

const maxRequestBodyBytes = 1 << 20

type tokenRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptcha_token"`
}

type tokenResponse struct {
	Access  string            `json:"access"`
	Refresh string            `json:"refresh"`
	User    users.ProfileView `json:"user"`
}

type tokenRefreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenRefreshResponse struct {
	Access string `json:"access"`
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type updateProfileRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

// TokenHandler exchanges credentials and a captcha response for a token pair.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}

		result, err := s.auth.Login(r.Context(), req.Username, req.Password, req.RecaptchaToken)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, tokenResponse{
			Access:  result.Tokens.Access,
			Refresh: result.Tokens.Refresh,
			User:    result.User,
		})
	}
}

// TokenRefreshHandler mints a new access token from a refresh token.
func (s *Server) TokenRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRefreshRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if req.Refresh == "" {
			writeJSONError(w, codeInvalidRequest, "refresh is required", http.StatusBadRequest)
			return
		}

		access, err := s.auth.Refresh(r.Context(), req.Refresh)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, tokenRefreshResponse{Access: access})
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}

		profile, err := s.auth.Register(r.Context(), auth.Registration{
			Username:  req.Username,
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, profile)
	}
}

func (s *Server) CurrentUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			writeServiceError(w, r, apperrors.ErrUnauthorized)
			return
		}

		profile, err := s.auth.GetProfile(r.Context(), userID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func (s *Server) UpdateCurrentUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			writeServiceError(w, r, apperrors.ErrUnauthorized)
			return
		}

		var req updateProfileRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}

		profile, err := s.auth.UpdateProfile(r.Context(), userID, users.ProfileUpdate{
			Username:  req.Username,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			writeServiceError(w, r, apperrors.ErrUnauthorized)
			return
		}

		var req changePasswordRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}

		profile, err := s.auth.ChangePassword(r.Context(), userID, req.Password)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func (s *Server) DeleteCurrentUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			writeServiceError(w, r, apperrors.ErrUnauthorized)
			return
		}

		if err := s.auth.DeletePrincipal(r.Context(), userID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSONBody reads a single JSON object into dst. On failure it writes the error
// response and returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, codeInvalidRequest, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeJSONError(w, codeInvalidRequest, "Request body too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			writeJSONError(w, codeInvalidRequest, "Request body is empty", http.StatusBadRequest)
		default:
			writeJSONError(w, codeInvalidRequest, descMalformedRequest, http.StatusBadRequest)
		}
		return false
	}
	return true
}
