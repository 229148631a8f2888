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

// Package eoa wraps the externally-owned-account signing primitive: secp256k1
// key generation, address derivation, and personal-message signatures
// ("\x19Ethereum Signed Message:\n" prefix, 65-byte {R,S,V} output with V in
// {27,28}).
//
// Private keys cross this package boundary as hex-encoded byte slices (the
// same representation that is sealed at rest), never as strings, so the
// caller can zero them. Intermediate parsed keys are wiped before returning
// on every path.
package eoa

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a personal-sign signature: 32-byte R,
// 32-byte S, 1-byte V.
const SignatureLength = 65

// ErrInvalidPrivateKey is returned when key material is not a valid
// hex-encoded secp256k1 private key.
var ErrInvalidPrivateKey = errors.New("invalid private key material")

// GeneratePrivateKey creates a fresh secp256k1 private key and returns it as
// hex-encoded bytes with a 0x prefix. The caller owns the slice and is
// responsible for zeroing it.
func GeneratePrivateKey() ([]byte, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	defer zeroKey(key)

	raw := crypto.FromECDSA(key)
	encoded := []byte(hexutil.Encode(raw))
	for i := range raw {
		raw[i] = 0
	}
	return encoded, nil
}

// DeriveAddress returns the checksummed EOA address controlled by the given
// hex-encoded private key.
func DeriveAddress(privKeyHex []byte) (string, error) {
	key, err := parseKey(privKeyHex)
	if err != nil {
		return "", err
	}
	defer zeroKey(key)

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// HashMessage returns the personal-sign digest of message: keccak256 of the
// "\x19Ethereum Signed Message:\n" || len(message) || message envelope.
func HashMessage(message string) []byte {
	return accounts.TextHash([]byte(message))
}

// SignMessage produces a personal-sign signature over message with the given
// hex-encoded private key. The result is 0x-prefixed hex of the 65-byte
// signature with the recovery id shifted into {27, 28}.
func SignMessage(privKeyHex []byte, message string) (string, error) {
	key, err := parseKey(privKeyHex)
	if err != nil {
		return "", err
	}
	defer zeroKey(key)

	sig, err := crypto.Sign(HashMessage(message), key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[SignatureLength-1] += 27

	return hexutil.Encode(sig), nil
}

func parseKey(privKeyHex []byte) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(string(privKeyHex), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}

// zeroKey wipes the scalar of a parsed private key. Best effort: the public
// half is not sensitive.
func zeroKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	bits := key.D.Bits()
	for i := range bits {
		bits[i] = 0
	}
}
