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

import "encoding/json"

// Ceremony actions accepted by the register and authenticate endpoints.
const (
	ActionStart    = "start"
	ActionComplete = "complete"
)

// CeremonyRequest is the request body for the register and authenticate
// endpoints. Start requests carry only the username; complete requests also
// carry the authenticator's raw credential response.
type CeremonyRequest struct {
	Action   string          `json:"action"`
	Username string          `json:"username"`
	Response json.RawMessage `json:"response,omitempty"`
}

// RegisterCompleteResponse is returned after a successful registration.
type RegisterCompleteResponse struct {
	Verified bool   `json:"verified"`
	UserID   string `json:"userId"`
	Address  string `json:"address"`
}

// AuthenticateCompleteResponse is returned after a successful authentication.
type AuthenticateCompleteResponse struct {
	Verified bool   `json:"verified"`
	UserID   string `json:"userId"`
	Token    string `json:"token"`
}

// SignRequest is the request body for the signing endpoint.
type SignRequest struct {
	Message string `json:"message"`
}

// SignResponse is returned from a successful signing request.
type SignResponse struct {
	Signature   string `json:"signature"`
	Address     string `json:"address"`
	MessageHash string `json:"messageHash"`
}

// HealthResponse is returned from the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
