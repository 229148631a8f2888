// Copyright (c) 2026 Keypo Labs
//
// This file is part of keypo-keyring.
//
// keypo-keyring is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@keypo.io for commercial licensing options.

package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/keypo/keyring/pkg/crypto/envelope"
	"github.com/keypo/keyring/pkg/keyring"
	"github.com/keypo/keyring/pkg/passkey"
	"github.com/keypo/keyring/pkg/session"
	"github.com/keypo/keyring/pkg/storage"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidAction  = errors.New("invalid action")
	ErrInternalError  = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
)

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: err.Error(),
		Code:  statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// writeErrorWithMessage writes an error response with a custom message.
func writeErrorWithMessage(w http.ResponseWriter, err error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// mapErrorToStatusCode maps errors to HTTP status codes. Ceremony failures
// are distinguishable so a client can restart from "start"; token and unseal
// failures are all unauthorized.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, keyring.ErrUserNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidAction),
		errors.Is(err, keyring.ErrUsernameRequired),
		errors.Is(err, keyring.ErrMessageRequired),
		errors.Is(err, keyring.ErrUserAlreadyExists),
		errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, passkey.ErrChallengeNotFound),
		errors.Is(err, passkey.ErrInvalidCredential):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, passkey.ErrVerificationFailed),
		errors.Is(err, passkey.ErrClonedAuthenticator),
		errors.Is(err, envelope.ErrAuthenticationFailed),
		errors.Is(err, session.ErrMissingToken),
		errors.Is(err, session.ErrTokenExpired),
		errors.Is(err, session.ErrTokenMalformed),
		errors.Is(err, session.ErrInsufficientScope):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// handleError is a convenience function that maps the error to a status code
// and writes the error response.
func handleError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)
	writeError(w, err, statusCode)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
