package server

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	codeCaptchaInvalid   = "captcha_invalid"
	codeUsernameTaken    = "username_already_exists"
	codeEmailTaken       = "email_already_exists"
	codeInvalidRequest   = "invalid_request"
	codeWeakPassword     = "weak_password"
	codeNoActiveAccount  = "no_active_account"
	codeInvalidToken     = "invalid_token"
	codeUnauthorized     = "unauthorized"
	codeNotFound         = "not_found"
	codeInternalError    = "internal_error"
	descInternalError    = "An internal error occurred"
	descMalformedRequest = "Request body must be a JSON object"
)

// errorMapping ties a sentinel to its wire representation. When passMessage is set the
// error text is returned to the client; it only carries validation detail.
type errorMapping struct {
	target      error
	code        string
	status      int
	description string
	passMessage bool
}

var errorMappings = []errorMapping{
	{target: apperrors.ErrCaptchaInvalid, code: codeCaptchaInvalid, status: http.StatusBadRequest, description: "Invalid captcha"},
	{target: apperrors.ErrUsernameTaken, code: codeUsernameTaken, status: http.StatusBadRequest, description: "A user with that username already exists."},
	{target: apperrors.ErrEmailTaken, code: codeEmailTaken, status: http.StatusBadRequest, description: "A user with that email already exists."},
	{target: apperrors.ErrWeakPassword, code: codeWeakPassword, status: http.StatusBadRequest, passMessage: true},
	{target: apperrors.ErrInvalidRequest, code: codeInvalidRequest, status: http.StatusBadRequest, passMessage: true},
	{target: apperrors.ErrNoActiveAccount, code: codeNoActiveAccount, status: http.StatusUnauthorized, description: "No active account found with the given credentials"},
	{target: apperrors.ErrInvalidToken, code: codeInvalidToken, status: http.StatusUnauthorized, description: "Token is invalid or expired"},
	{target: apperrors.ErrUnauthorized, code: codeUnauthorized, status: http.StatusUnauthorized, description: "Authentication credentials were not provided"},
	{target: apperrors.ErrNotFound, code: codeNotFound, status: http.StatusNotFound, description: "Not found"},
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// writeServiceError maps a service error to its status and code. Anything unclassified is
// logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		description := m.description
		if m.passMessage {
			description = validationMessage(err, m.target)
		}
		writeJSONError(w, m.code, description, m.status)
		return
	}

	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeJSONError(w, codeInternalError, descInternalError, http.StatusInternalServerError)
}

// validationMessage returns the innermost error wrapping target, which holds the
// validation detail without any caller context.
func validationMessage(err, target error) string {
	msg := target.Error()
	for e := err; e != nil; e = errors.Unwrap(e) {
		if e != target && errors.Is(e, target) {
			msg = e.Error()
		}
	}
	return msg
}
