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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keypo/keyring/pkg/challenge"
	"github.com/keypo/keyring/pkg/keyring"
	"github.com/keypo/keyring/pkg/logging"
	"github.com/keypo/keyring/pkg/passkey"
	"github.com/keypo/keyring/pkg/session"
	"github.com/keypo/keyring/pkg/storage"
)

const testSessionSecret = "test-session-signing-secret"

type serverHarness struct {
	handler http.Handler
	rp      virtualwebauthn.RelyingParty
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()

	cfg := &passkey.Config{
		RPID:          "example.com",
		RPDisplayName: "Keypo Wallet",
		RPOrigins:     []string{"https://example.com"},
	}
	engine, err := passkey.NewEngine(cfg, challenge.NewStore(challenge.DefaultTTL))
	require.NoError(t, err)

	tokens, err := session.NewIssuer([]byte(testSessionSecret))
	require.NoError(t, err)

	service, err := keyring.NewService(keyring.ServiceParams{
		MasterSecret: "test-master-secret",
		Users:        storage.NewMemoryUserStore(),
		Passkeys:     engine,
		Tokens:       tokens,
	})
	require.NoError(t, err)

	srv, err := NewServer(&Config{MetricsEnabled: true}, service, tokens, nil, logging.NewLogger(false))
	require.NoError(t, err)

	return &serverHarness{
		handler: srv.Handler(),
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
	}
}

// doJSON posts body to path with an optional bearer token and returns the
// recorded response.
func (h *serverHarness) doJSON(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// registerOverHTTP walks the full registration ceremony through the HTTP
// surface and returns the completion response with the authenticator state.
func registerOverHTTP(t *testing.T, h *serverHarness, username string) (RegisterCompleteResponse, virtualwebauthn.Authenticator, *virtualwebauthn.Credential) {
	t.Helper()

	authenticator := virtualwebauthn.NewAuthenticator()
	vcred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	rec := h.doJSON(t, http.MethodPost, "/api/auth/register", CeremonyRequest{
		Action:   ActionStart,
		Username: username,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var creation protocol.CredentialCreation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &creation))
	require.NotEmpty(t, creation.Response.Challenge)

	optionsJSON, err := json.Marshal(creation.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(h.rp, authenticator, vcred, *parsedOptions)

	rec = h.doJSON(t, http.MethodPost, "/api/auth/register", CeremonyRequest{
		Action:   ActionComplete,
		Username: username,
		Response: json.RawMessage(attestation),
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	authenticator.AddCredential(vcred)
	return decodeBody[RegisterCompleteResponse](t, rec), authenticator, &vcred
}

// authenticateOverHTTP walks the full authentication ceremony and returns the
// completion response carrying the session token.
func authenticateOverHTTP(t *testing.T, h *serverHarness, username string, authenticator virtualwebauthn.Authenticator, vcred *virtualwebauthn.Credential) AuthenticateCompleteResponse {
	t.Helper()

	rec := h.doJSON(t, http.MethodPost, "/api/auth/authenticate", CeremonyRequest{
		Action:   ActionStart,
		Username: username,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var assertion protocol.CredentialAssertion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assertion))

	optionsJSON, err := json.Marshal(assertion.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	vcred.Counter++
	response := virtualwebauthn.CreateAssertionResponse(h.rp, authenticator, *vcred, *parsedOptions)

	rec = h.doJSON(t, http.MethodPost, "/api/auth/authenticate", CeremonyRequest{
		Action:   ActionComplete,
		Username: username,
		Response: json.RawMessage(response),
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	return decodeBody[AuthenticateCompleteResponse](t, rec)
}

func TestHealthEndpoint(t *testing.T) {
	h := newServerHarness(t)

	rec := h.doJSON(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newServerHarness(t)

	rec := h.doJSON(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "keyring_")
}

func TestRegisterOverHTTP(t *testing.T) {
	h := newServerHarness(t)

	result, _, _ := registerOverHTTP(t, h, "alice")
	assert.True(t, result.Verified)
	assert.NotEmpty(t, result.UserID)
	assert.True(t, strings.HasPrefix(result.Address, "0x"))
	assert.Len(t, result.Address, 42)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	h := newServerHarness(t)
	registerOverHTTP(t, h, "alice")

	rec := h.doJSON(t, http.MethodPost, "/api/auth/register", CeremonyRequest{
		Action:   ActionStart,
		Username: "alice",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, errResp.Error, "already registered")
}

func TestRegisterValidation(t *testing.T) {
	h := newServerHarness(t)

	rec := h.doJSON(t, http.MethodPost, "/api/auth/register", CeremonyRequest{
		Action:   ActionStart,
		Username: "",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.doJSON(t, http.MethodPost, "/api/auth/register", CeremonyRequest{
		Action:   "renew",
		Username: "alice",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	h.handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestRegisterCompleteWithoutStart(t *testing.T) {
	h := newServerHarness(t)

	// A full ceremony for bob supplies a parseable attestation to replay
	// against alice, who has no pending challenge.
	authenticator := virtualwebauthn.NewAuthenticator()
	vcred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	rec := h.doJSON(t, http.MethodPost, "/api/auth/register", CeremonyRequest{
		Action:   ActionStart,
		Username: "bob",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var creation protocol.CredentialCreation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &creation))
	optionsJSON, err := json.Marshal(creation.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(h.rp, authenticator, vcred, *parsedOptions)

	rec = h.doJSON(t, http.MethodPost, "/api/auth/register", CeremonyRequest{
		Action:   ActionComplete,
		Username: "alice",
		Response: json.RawMessage(attestation),
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, errResp.Error, "no pending challenge")
}

func TestAuthenticateOverHTTP(t *testing.T) {
	h := newServerHarness(t)

	reg, authenticator, vcred := registerOverHTTP(t, h, "alice")
	auth := authenticateOverHTTP(t, h, "alice", authenticator, vcred)

	assert.True(t, auth.Verified)
	assert.Equal(t, reg.UserID, auth.UserID)
	assert.NotEmpty(t, auth.Token)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	h := newServerHarness(t)

	rec := h.doJSON(t, http.MethodPost, "/api/auth/authenticate", CeremonyRequest{
		Action:   ActionStart,
		Username: "nobody",
	}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignOverHTTP(t *testing.T) {
	h := newServerHarness(t)

	reg, authenticator, vcred := registerOverHTTP(t, h, "alice")
	auth := authenticateOverHTTP(t, h, "alice", authenticator, vcred)

	rec := h.doJSON(t, http.MethodPost, "/api/keyring/sign", SignRequest{Message: "hello"}, auth.Token)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	signed := decodeBody[SignResponse](t, rec)
	assert.Equal(t, reg.Address, signed.Address)
	assert.True(t, strings.HasPrefix(signed.Signature, "0x"))
	assert.Len(t, signed.Signature, 132, "65 signature bytes hex encoded")
	assert.True(t, strings.HasPrefix(signed.MessageHash, "0x"))
	assert.Len(t, signed.MessageHash, 66)
}

func TestSignWithoutToken(t *testing.T) {
	h := newServerHarness(t)

	rec := h.doJSON(t, http.MethodPost, "/api/keyring/sign", SignRequest{Message: "hello"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, errResp.Error, "no authorization token")
}

func TestSignWithMalformedToken(t *testing.T) {
	h := newServerHarness(t)

	rec := h.doJSON(t, http.MethodPost, "/api/keyring/sign", SignRequest{Message: "hello"}, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignWithExpiredToken(t *testing.T) {
	h := newServerHarness(t)

	reg, authenticator, vcred := registerOverHTTP(t, h, "alice")
	authenticateOverHTTP(t, h, "alice", authenticator, vcred)

	// A token signed with the right secret but an expiry in the past.
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	staleIssuer, err := session.NewIssuer([]byte(testSessionSecret), session.WithClock(past))
	require.NoError(t, err)
	staleToken, err := staleIssuer.Issue(reg.UserID)
	require.NoError(t, err)

	rec := h.doJSON(t, http.MethodPost, "/api/keyring/sign", SignRequest{Message: "hello"}, staleToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, errResp.Error, "expired")
}

func TestSignEmptyMessage(t *testing.T) {
	h := newServerHarness(t)

	_, authenticator, vcred := registerOverHTTP(t, h, "alice")
	auth := authenticateOverHTTP(t, h, "alice", authenticator, vcred)

	rec := h.doJSON(t, http.MethodPost, "/api/keyring/sign", SignRequest{Message: ""}, auth.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newServerHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/register", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
