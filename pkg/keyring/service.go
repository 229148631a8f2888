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

// Package keyring composes the passkey ceremonies, the envelope cipher, and
// the EOA signing primitive into the custody pipeline: register a passkey and
// seal a fresh private key under it, authenticate to obtain a scoped session
// token, and sign messages just-in-time without the plaintext key outliving
// the request.
package keyring

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"

	"github.com/keypo/keyring/pkg/crypto/envelope"
	"github.com/keypo/keyring/pkg/crypto/secret"
	"github.com/keypo/keyring/pkg/eoa"
	"github.com/keypo/keyring/pkg/passkey"
	"github.com/keypo/keyring/pkg/session"
	"github.com/keypo/keyring/pkg/storage"
)

// RegistrationResult is returned after a successful registration ceremony.
type RegistrationResult struct {
	// UserID is the new user's stable identifier.
	UserID string

	// Address is the EOA address controlled by the sealed private key.
	Address string
}

// AuthenticationResult is returned after a successful authentication ceremony.
type AuthenticationResult struct {
	// UserID identifies the authenticated user.
	UserID string

	// Token is the scoped session token gating signing requests.
	Token string
}

// SignResult is returned from a successful signing request.
type SignResult struct {
	// Signature is the hex-encoded 65-byte personal-sign signature.
	Signature string

	// Address is the signer's EOA address.
	Address string

	// MessageHash is the hex-encoded prefixed digest that was signed.
	MessageHash string
}

// Service orchestrates the credential-gated custody pipeline.
type Service struct {
	masterSecret string
	users        storage.UserStore
	passkeys     *passkey.Engine
	tokens       *session.Issuer
}

// ServiceParams contains dependencies for creating a keyring service.
type ServiceParams struct {
	// MasterSecret is the long-lived secret every per-user key is derived
	// from (required).
	MasterSecret string

	// Users is the user persistence layer (required).
	Users storage.UserStore

	// Passkeys drives the WebAuthn ceremonies (required).
	Passkeys *passkey.Engine

	// Tokens issues session tokens after authentication (required).
	Tokens *session.Issuer
}

// NewService creates a keyring service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.MasterSecret == "" {
		return nil, envelope.ErrMasterSecretRequired
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Passkeys == nil {
		return nil, fmt.Errorf("passkey engine is required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}

	return &Service{
		masterSecret: params.MasterSecret,
		users:        params.Users,
		passkeys:     params.Passkeys,
		tokens:       params.Tokens,
	}, nil
}

// BeginRegistration starts a registration ceremony for a new username.
// Returns ErrUserAlreadyExists when the username is taken.
func (s *Service) BeginRegistration(username string) (*protocol.CredentialCreation, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}

	if _, err := s.users.FindByUsername(username); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	return s.passkeys.BeginRegistration(username)
}

// FinishRegistration verifies the attestation response, generates and seals a
// fresh EOA private key, and persists the completed user record. Nothing is
// written until the record is fully formed, so a failed completion leaves no
// user behind.
func (s *Service) FinishRegistration(username string, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}

	cred, err := s.passkeys.FinishRegistration(username, response)
	if err != nil {
		return nil, err
	}

	privateKey, err := eoa.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	defer secret.Zero(privateKey)

	address, err := eoa.DeriveAddress(privateKey)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}

	salt, err := envelope.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	userID := uuid.NewString()

	key, err := envelope.DeriveKey(s.masterSecret, userID, salt, envelope.ContextKeyring)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer key.Destroy()

	sealed, err := envelope.Seal(privateKey, key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("seal private key: %w", err)
	}

	record := &storage.UserRecord{
		ID:                  userID,
		Username:            username,
		CredentialID:        cred.ID,
		CredentialPublicKey: cred.PublicKey,
		SignCounter:         cred.SignCount,
		Salt:                salt,
		SealedPrivateKey:    sealed,
		Address:             address,
	}
	if err := s.users.Create(record); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &RegistrationResult{UserID: userID, Address: address}, nil
}

// BeginAuthentication starts an authentication ceremony for an existing user.
func (s *Service) BeginAuthentication(username string) (*protocol.CredentialAssertion, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}

	record, err := s.findByUsername(username)
	if err != nil {
		return nil, err
	}

	return s.passkeys.BeginAuthentication(record.CredentialID)
}

// FinishAuthentication verifies the assertion response, persists the advanced
// signature counter, and issues a scoped session token.
func (s *Service) FinishAuthentication(username string, response *protocol.ParsedCredentialAssertionData) (*AuthenticationResult, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}

	record, err := s.findByUsername(username)
	if err != nil {
		return nil, err
	}

	newCounter, err := s.passkeys.FinishAuthentication(passkey.StoredCredential{
		Username:  record.Username,
		ID:        record.CredentialID,
		PublicKey: record.CredentialPublicKey,
		SignCount: record.SignCounter,
	}, response)
	if err != nil {
		return nil, err
	}

	record.SignCounter = newCounter
	if err := s.users.Update(record); err != nil {
		return nil, fmt.Errorf("persist sign counter: %w", err)
	}

	token, err := s.tokens.Issue(record.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &AuthenticationResult{UserID: record.ID, Token: token}, nil
}

// Sign unseals the user's private key, signs the message with the
// personal-sign convention, and zeroes all secret material before returning.
func (s *Service) Sign(userID, message string) (*SignResult, error) {
	if message == "" {
		return nil, ErrMessageRequired
	}

	record, err := s.users.FindByID(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if record.SealedPrivateKey == "" {
		return nil, fmt.Errorf("%w: no sealed key for user", ErrSigningFailed)
	}

	key, err := envelope.DeriveKey(s.masterSecret, record.ID, record.Salt, envelope.ContextKeyring)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer key.Destroy()

	privateKey, err := envelope.Unseal(record.SealedPrivateKey, key.Bytes())
	if err != nil {
		return nil, err
	}
	defer privateKey.Destroy()

	signature, err := eoa.SignMessage(privateKey.Bytes(), message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return &SignResult{
		Signature:   signature,
		Address:     record.Address,
		MessageHash: hexutil.Encode(eoa.HashMessage(message)),
	}, nil
}

func (s *Service) findByUsername(username string) (*storage.UserRecord, error) {
	record, err := s.users.FindByUsername(username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return record, nil
}
