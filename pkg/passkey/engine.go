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

// Package passkey runs the WebAuthn ceremonies for the keyring. The engine is
// stateless apart from the pending-challenge registry: begin hands out
// options with a fresh challenge, finish rebuilds the ceremony session from
// the stored challenge and verifies the authenticator response. Registration
// requires user verification; authentication accepts preferred verification
// so established users are not locked out by authenticators that skip UV.
package passkey

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/keypo/keyring/pkg/challenge"
)

// Credential is the outcome of a successful registration ceremony: the
// encoded material the caller must persist to verify future assertions.
type Credential struct {
	// ID is the base64url-encoded credential id.
	ID string

	// PublicKey is the standard-base64 COSE public key.
	PublicKey string

	// SignCount is the authenticator signature counter at registration.
	SignCount uint32
}

// StoredCredential is the persisted credential material needed to verify an
// authentication assertion.
type StoredCredential struct {
	// Username owns the credential; its bytes are the WebAuthn user handle.
	Username string

	// ID is the base64url-encoded credential id, also the challenge key for
	// the pending authentication ceremony.
	ID string

	// PublicKey is the standard-base64 COSE public key.
	PublicKey string

	// SignCount is the last signature counter observed.
	SignCount uint32
}

// ceremonyUser adapts a keyring user to the go-webauthn user contract. The
// WebAuthn user handle is the username bytes, which is what resident
// credentials echo back as userHandle during assertions.
type ceremonyUser struct {
	id          []byte
	name        string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                         { return u.id }
func (u *ceremonyUser) WebAuthnName() string                       { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.name }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// credentialParameters is the accepted algorithm list, most preferred first.
// The finish-side session must carry the same list: the verifier matches the
// attested COSE algorithm against it.
var credentialParameters = []protocol.CredentialParameter{
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
}

// Engine drives WebAuthn registration and authentication ceremonies.
type Engine struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	challenges *challenge.Store
}

// NewEngine creates a ceremony engine with the provided configuration and
// challenge store.
func NewEngine(config *Config, challenges *challenge.Store) (*Engine, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if challenges == nil {
		return nil, fmt.Errorf("challenge store is required")
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Engine{
		webauthn:   wa,
		config:     config,
		challenges: challenges,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// BeginRegistration starts a registration ceremony for username and returns
// the creation options to send to the client. The generated challenge is
// registered under the username, replacing any earlier pending registration
// for the same name.
func (e *Engine) BeginRegistration(username string) (*protocol.CredentialCreation, error) {
	user := &ceremonyUser{id: []byte(username), name: username}

	options, _, err := e.webauthn.BeginRegistration(user,
		webauthn.WithCredentialParameters(credentialParameters),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	e.challenges.Put(username, options.Response.Challenge)

	return options, nil
}

// FinishRegistration verifies an attestation response against the pending
// challenge for username. On success the challenge is consumed and the new
// credential material is returned; on failure the challenge stays pending so
// the client may retry until it expires.
func (e *Engine) FinishRegistration(username string, response *protocol.ParsedCredentialCreationData) (*Credential, error) {
	challengeBytes, ok := e.challenges.Get(username)
	if !ok {
		return nil, WrapError("finish registration", ErrChallengeNotFound)
	}

	user := &ceremonyUser{id: []byte(username), name: username}
	session := webauthn.SessionData{
		Challenge:        base64.RawURLEncoding.EncodeToString(challengeBytes),
		UserID:           user.id,
		UserVerification: protocol.VerificationRequired,
		CredParams:       credentialParameters,
		Expires:          time.Now().Add(e.config.Timeout),
	}

	cred, err := e.webauthn.CreateCredential(user, session, response)
	if err != nil {
		return nil, WrapError("create credential", errors.Join(ErrVerificationFailed, err))
	}

	e.challenges.Consume(username, challengeBytes)

	return &Credential{
		ID:        base64.RawURLEncoding.EncodeToString(cred.ID),
		PublicKey: base64.StdEncoding.EncodeToString(cred.PublicKey),
		SignCount: cred.Authenticator.SignCount,
	}, nil
}

// BeginAuthentication starts an authentication ceremony for the credential
// and returns the assertion options. The options carry no allow list; the
// client picks the resident credential. The challenge is registered under
// the credential id.
func (e *Engine) BeginAuthentication(credentialID string) (*protocol.CredentialAssertion, error) {
	options, _, err := e.webauthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, WrapError("begin authentication", err)
	}

	e.challenges.Put(credentialID, options.Response.Challenge)

	return options, nil
}

// FinishAuthentication verifies an assertion response against the pending
// challenge for the stored credential. On success the challenge is consumed
// and the new signature counter is returned for persistence. A counter that
// fails to advance is treated as a cloned authenticator and rejected.
func (e *Engine) FinishAuthentication(cred StoredCredential, response *protocol.ParsedCredentialAssertionData) (uint32, error) {
	challengeBytes, ok := e.challenges.Get(cred.ID)
	if !ok {
		return 0, WrapError("finish authentication", ErrChallengeNotFound)
	}

	idBytes, err := base64.RawURLEncoding.DecodeString(cred.ID)
	if err != nil {
		return 0, WrapError("decode credential id", ErrInvalidCredential)
	}
	publicKey, err := base64.StdEncoding.DecodeString(cred.PublicKey)
	if err != nil {
		return 0, WrapError("decode credential public key", ErrInvalidCredential)
	}

	user := &ceremonyUser{
		id:   []byte(cred.Username),
		name: cred.Username,
		credentials: []webauthn.Credential{{
			ID:        idBytes,
			PublicKey: publicKey,
			Authenticator: webauthn.Authenticator{
				SignCount: cred.SignCount,
			},
		}},
	}
	session := webauthn.SessionData{
		Challenge:        base64.RawURLEncoding.EncodeToString(challengeBytes),
		UserID:           user.id,
		UserVerification: protocol.VerificationPreferred,
		Expires:          time.Now().Add(e.config.Timeout),
	}

	validated, err := e.webauthn.ValidateLogin(user, session, response)
	if err != nil {
		return 0, WrapError("validate login", errors.Join(ErrVerificationFailed, err))
	}

	if validated.Authenticator.CloneWarning {
		return 0, WrapError("validate login", ErrClonedAuthenticator)
	}

	e.challenges.Consume(cred.ID, challengeBytes)

	return validated.Authenticator.SignCount, nil
}
