// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package secp256k1

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/stacks-network/stacks-devnet/utils/hashing"
)

const (
	// SignatureLen is the number of bytes in a recoverable signature.
	SignatureLen = 65

	// PrivateKeyLen is the number of bytes in a secp256k1 private key.
	PrivateKeyLen = 32

	// PublicKeyLen is the number of bytes in a compressed public key.
	PublicKeyLen = 33

	// compressedSuffix marks a serialized private key whose public key is
	// used in compressed form.
	compressedSuffix = 0x01

	// from the decred library:
	// compactSigMagicOffset is a value used when creating the compact signature
	// recovery code inherited from Bitcoin and has no meaning, but has been
	// retained for compatibility.
	compactSigMagicOffset = 27
	compactSigCompPubKey  = 4
)

var (
	ErrInvalidPrivateKeyLen = errors.New("invalid private key length")
	ErrInvalidSigLen        = errors.New("invalid signature length")
	errInvalidRecoveryID    = errors.New("invalid recovery id")
	errUncompressed         = errors.New("wasn't expecting an uncompressed key")
)

type PublicKey struct {
	pk *secp256k1.PublicKey
}

// Bytes returns the compressed serialization of the key.
func (k *PublicKey) Bytes() []byte {
	return k.pk.SerializeCompressed()
}

// Address returns hash160 of the compressed key.
func (k *PublicKey) Address() hashing.Hash160 {
	return hashing.PubkeyBytesToAddress(k.Bytes())
}

// VerifyHash reports whether [sig] over [hash] was produced by this key.
func (k *PublicKey) VerifyHash(hash, sig []byte) bool {
	pk, err := RecoverPublicKey(hash, sig)
	if err != nil {
		return false
	}
	return pk.pk.IsEqual(k.pk)
}

type PrivateKey struct {
	sk *secp256k1.PrivateKey
	pk *PublicKey
}

// ToPrivateKey parses a 32 byte key, or a 33 byte key carrying the
// compressed-public-key suffix.
func ToPrivateKey(b []byte) (*PrivateKey, error) {
	switch {
	case len(b) == PrivateKeyLen:
	case len(b) == PrivateKeyLen+1 && b[PrivateKeyLen] == compressedSuffix:
		b = b[:PrivateKeyLen]
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrivateKeyLen, len(b))
	}
	return &PrivateKey{sk: secp256k1.PrivKeyFromBytes(b)}, nil
}

// ParsePrivateKeyHex is ToPrivateKey over a hex string.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return ToPrivateKey(b)
}

func NewPrivateKey() (*PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{sk: k}, nil
}

func (k *PrivateKey) PublicKey() *PublicKey {
	if k.pk == nil {
		k.pk = &PublicKey{pk: k.sk.PubKey()}
	}
	return k.pk
}

func (k *PrivateKey) Address() hashing.Hash160 {
	return k.PublicKey().Address()
}

// Bytes returns the 32 byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return k.sk.Serialize()
}

// SignHash returns a recoverable signature in [v || r || s] form, v being
// the bare recovery id.
func (k *PrivateKey) SignHash(hash []byte) []byte {
	sig := ecdsa.SignCompact(k.sk, hash, true)
	sig[0] -= compactSigMagicOffset + compactSigCompPubKey
	return sig
}

// RecoverPublicKey returns the compressed public key that produced [sig].
func RecoverPublicKey(hash, sig []byte) (*PublicKey, error) {
	if len(sig) != SignatureLen {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSigLen, len(sig))
	}
	if sig[0] > 3 {
		return nil, fmt.Errorf("%w: %d", errInvalidRecoveryID, sig[0])
	}
	raw := make([]byte, SignatureLen)
	copy(raw, sig)
	raw[0] += compactSigMagicOffset + compactSigCompPubKey

	pk, compressed, err := ecdsa.RecoverCompact(raw, hash)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return nil, errUncompressed
	}
	return &PublicKey{pk: pk}, nil
}
