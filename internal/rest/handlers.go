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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/keypo/keyring/pkg/metrics"
)

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Version: Version}, http.StatusOK)
}

// handleRegister drives the registration ceremony. A "start" request returns
// credential creation options; a "complete" request verifies the attestation
// and returns the new user's ID and address.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req CeremonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case ActionStart:
		s.timed(metrics.OpRegisterBegin, w, func() (any, error) {
			return s.service.BeginRegistration(req.Username)
		})

	case ActionComplete:
		parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
		if err != nil {
			writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err), http.StatusBadRequest)
			return
		}
		s.timed(metrics.OpRegisterComplete, w, func() (any, error) {
			result, err := s.service.FinishRegistration(req.Username, parsed)
			if err != nil {
				return nil, err
			}
			return RegisterCompleteResponse{
				Verified: true,
				UserID:   result.UserID,
				Address:  result.Address,
			}, nil
		})

	default:
		writeError(w, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action), http.StatusBadRequest)
	}
}

// handleAuthenticate drives the authentication ceremony. A "start" request
// returns assertion options; a "complete" request verifies the assertion and
// returns a session token.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req CeremonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case ActionStart:
		s.timed(metrics.OpAuthBegin, w, func() (any, error) {
			return s.service.BeginAuthentication(req.Username)
		})

	case ActionComplete:
		parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
		if err != nil {
			writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err), http.StatusBadRequest)
			return
		}
		s.timed(metrics.OpAuthComplete, w, func() (any, error) {
			result, err := s.service.FinishAuthentication(req.Username, parsed)
			if err != nil {
				return nil, err
			}
			return AuthenticateCompleteResponse{
				Verified: true,
				UserID:   result.UserID,
				Token:    result.Token,
			}, nil
		})

	default:
		writeError(w, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action), http.StatusBadRequest)
	}
}

// handleSign signs a message with the authenticated user's sealed key.
func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err), http.StatusBadRequest)
		return
	}

	userID := UserIDFromContext(r.Context())

	s.timed(metrics.OpSign, w, func() (any, error) {
		result, err := s.service.Sign(userID, req.Message)
		if err != nil {
			return nil, err
		}
		return SignResponse{
			Signature:   result.Signature,
			Address:     result.Address,
			MessageHash: result.MessageHash,
		}, nil
	})
}

// timed runs a service operation, records its metrics, and writes either the
// JSON result or the mapped error response.
func (s *Server) timed(operation string, w http.ResponseWriter, fn func() (any, error)) {
	start := time.Now()
	result, err := fn()
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordOperation(operation, metrics.StatusError, duration)
		metrics.RecordError(operation, errorType(err))
		handleError(w, err)
		return
	}

	metrics.RecordOperation(operation, metrics.StatusSuccess, duration)
	writeJSON(w, result, http.StatusOK)
}

// errorType buckets an error by its mapped status class for the error
// counter, avoiding unbounded label cardinality from raw messages.
func errorType(err error) string {
	switch mapErrorToStatusCode(err) {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "internal"
	}
}
