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

package eoa

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test vector key. Never fund this account.
const testKeyHex = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestGeneratePrivateKey(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(key), "0x"))
	assert.Len(t, key, 2+64, "0x prefix plus 32 bytes of hex")

	// Parseable by the underlying curve implementation.
	_, err = crypto.HexToECDSA(strings.TrimPrefix(string(key), "0x"))
	require.NoError(t, err)
}

func TestGeneratePrivateKeyUnique(t *testing.T) {
	a, err := GeneratePrivateKey()
	require.NoError(t, err)
	b, err := GeneratePrivateKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveAddress(t *testing.T) {
	addr, err := DeriveAddress([]byte(testKeyHex))
	require.NoError(t, err)

	// Known address for the vector key, EIP-55 checksummed.
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", addr)
}

func TestDeriveAddressNoPrefix(t *testing.T) {
	addr, err := DeriveAddress([]byte(strings.TrimPrefix(testKeyHex, "0x")))
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", addr)
}

func TestDeriveAddressInvalidKey(t *testing.T) {
	for _, bad := range [][]byte{
		nil,
		[]byte(""),
		[]byte("0x"),
		[]byte("not hex at all"),
		[]byte("0xdeadbeef"), // too short
	} {
		_, err := DeriveAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidPrivateKey)
	}
}

func TestHashMessage(t *testing.T) {
	hash := HashMessage("hello")
	assert.Len(t, hash, 32)

	// Prefix envelope: keccak256("\x19Ethereum Signed Message:\n5hello").
	want := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n5hello"))
	assert.Equal(t, want, hash)
}

func TestSignMessage(t *testing.T) {
	sigHex, err := SignMessage([]byte(testKeyHex), "hello world")
	require.NoError(t, err)

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])
}

func TestSignMessageRecoversSigner(t *testing.T) {
	const message = "keyring signing test"

	sigHex, err := SignMessage([]byte(testKeyHex), message)
	require.NoError(t, err)

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)

	// Recovery expects V in {0, 1}.
	recoverSig := make([]byte, SignatureLength)
	copy(recoverSig, sig)
	recoverSig[64] -= 27

	pub, err := crypto.SigToPub(HashMessage(message), recoverSig)
	require.NoError(t, err)

	want, err := DeriveAddress([]byte(testKeyHex))
	require.NoError(t, err)
	assert.Equal(t, want, crypto.PubkeyToAddress(*pub).Hex())
}

func TestSignMessageDistinctPerMessage(t *testing.T) {
	a, err := SignMessage([]byte(testKeyHex), "message one")
	require.NoError(t, err)
	b, err := SignMessage([]byte(testKeyHex), "message two")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSignMessageInvalidKey(t *testing.T) {
	_, err := SignMessage([]byte("0xzz"), "hello")
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestGeneratedKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr, err := DeriveAddress(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "0x"))
	assert.Len(t, addr, 42)

	sigHex, err := SignMessage(key, "round trip")
	require.NoError(t, err)

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	recoverSig := make([]byte, SignatureLength)
	copy(recoverSig, sig)
	recoverSig[64] -= 27

	pub, err := crypto.SigToPub(HashMessage("round trip"), recoverSig)
	require.NoError(t, err)
	assert.Equal(t, addr, crypto.PubkeyToAddress(*pub).Hex())
}
