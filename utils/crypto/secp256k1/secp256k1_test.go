// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package secp256k1

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/utils/hashing"
)

const deployerKey = "753b7cc01a1a2e86221266a154af739463fce51219d97e4f856cd7200c3bd2a601"

func TestToPrivateKey(t *testing.T) {
	require := require.New(t)

	withSuffix, err := ParsePrivateKeyHex(deployerKey)
	require.NoError(err)
	withoutSuffix, err := ParsePrivateKeyHex(deployerKey[:64])
	require.NoError(err)
	require.Equal(withSuffix.Bytes(), withoutSuffix.Bytes())
	require.Len(withSuffix.PublicKey().Bytes(), PublicKeyLen)

	_, err = ToPrivateKey(make([]byte, 31))
	require.ErrorIs(err, ErrInvalidPrivateKeyLen)

	bad := make([]byte, 33)
	bad[32] = 0x02
	_, err = ToPrivateKey(bad)
	require.ErrorIs(err, ErrInvalidPrivateKeyLen)

	_, err = ParsePrivateKeyHex("zz")
	require.ErrorContains(err, "failed to decode private key")
}

func TestSignAndRecover(t *testing.T) {
	require := require.New(t)

	sk, err := NewPrivateKey()
	require.NoError(err)

	hash := hashing.ComputeSha512_256([]byte("devnet"))
	sig := sk.SignHash(hash[:])
	require.Len(sig, SignatureLen)
	require.LessOrEqual(sig[0], byte(3))

	pk, err := RecoverPublicKey(hash[:], sig)
	require.NoError(err)
	require.Equal(sk.PublicKey().Bytes(), pk.Bytes())
	require.Equal(sk.Address(), pk.Address())
	require.True(sk.PublicKey().VerifyHash(hash[:], sig))

	other := hashing.ComputeSha512_256([]byte("other"))
	require.False(sk.PublicKey().VerifyHash(other[:], sig))
}

func TestRecoverPublicKeyErrors(t *testing.T) {
	require := require.New(t)

	hash := make([]byte, 32)
	_, err := RecoverPublicKey(hash, make([]byte, 64))
	require.ErrorIs(err, ErrInvalidSigLen)

	sig := make([]byte, SignatureLen)
	sig[0] = 4
	_, err = RecoverPublicKey(hash, sig)
	require.ErrorIs(err, errInvalidRecoveryID)
}
