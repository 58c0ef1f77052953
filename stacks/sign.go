// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stacks

import (
	"errors"
	"fmt"

	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
	"github.com/stacks-network/stacks-devnet/utils/hashing"
	"github.com/stacks-network/stacks-devnet/utils/wrappers"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	errNotSingleSig     = errors.New("only single-sig origins can be signed")
	errWrongSigner      = errors.New("key does not match the origin signer")
)

// SignOrigin signs a single-sig standard or sponsored origin with [sk].
func (tx *Transaction) SignOrigin(sk *secp256k1.PrivateKey) error {
	origin := &tx.Auth.Origin
	if !origin.HashMode.singleSig() {
		return fmt.Errorf("%w: hash mode 0x%02x", errNotSingleSig, byte(origin.HashMode))
	}
	if origin.Signer != sk.Address() {
		return errWrongSigner
	}
	sigHash, err := tx.initialSigHash()
	if err != nil {
		return err
	}
	preSign := preSignSigHash(sigHash, tx.Auth.Type, origin.Fee, origin.Nonce)
	origin.KeyEncoding = KeyEncodingCompressed
	copy(origin.Signature[:], sk.SignHash(preSign[:]))
	return nil
}

// VerifyOrigin checks the single-sig origin signature and returns the
// recovered key.
func (tx *Transaction) VerifyOrigin() (*secp256k1.PublicKey, error) {
	origin := &tx.Auth.Origin
	if !origin.HashMode.singleSig() {
		return nil, fmt.Errorf("%w: hash mode 0x%02x", errNotSingleSig, byte(origin.HashMode))
	}
	if origin.KeyEncoding != KeyEncodingCompressed {
		return nil, fmt.Errorf("%w: uncompressed keys are not supported", ErrInvalidSignature)
	}
	sigHash, err := tx.initialSigHash()
	if err != nil {
		return nil, err
	}
	preSign := preSignSigHash(sigHash, tx.Auth.Type, origin.Fee, origin.Nonce)
	pk, err := secp256k1.RecoverPublicKey(preSign[:], origin.Signature[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if pk.Address() != origin.Signer {
		return nil, fmt.Errorf("%w: signer mismatch", ErrInvalidSignature)
	}
	return pk, nil
}

// initialSigHash is the txid of [tx] with every spending condition cleared.
func (tx *Transaction) initialSigHash() (hashing.Hash256, error) {
	cleared := *tx
	cleared.Auth = Authorization{
		Type:   tx.Auth.Type,
		Origin: clearedCondition(&tx.Auth.Origin),
	}
	if tx.Auth.Type == AuthSponsored {
		cleared.Auth.Sponsor = &SpendingCondition{
			HashMode:    HashModeP2PKH,
			KeyEncoding: KeyEncodingCompressed,
		}
	}
	b, err := Marshal(&cleared)
	if err != nil {
		return hashing.Hash256{}, err
	}
	return hashing.ComputeSha512_256(b), nil
}

func clearedCondition(c *SpendingCondition) SpendingCondition {
	cleared := SpendingCondition{
		HashMode:           c.HashMode,
		Signer:             c.Signer,
		SignaturesRequired: c.SignaturesRequired,
	}
	if c.HashMode.singleSig() {
		cleared.KeyEncoding = KeyEncodingCompressed
	}
	return cleared
}

// preSignSigHash is sha512/256(sighash || auth type || fee || nonce).
func preSignSigHash(sigHash hashing.Hash256, authType AuthType, fee, nonce uint64) hashing.Hash256 {
	p := wrappers.Packer{MaxSize: hashing.HashLen + 1 + 2*wrappers.LongLen}
	p.PackFixedBytes(sigHash[:])
	p.PackByte(byte(authType))
	p.PackLong(fee)
	p.PackLong(nonce)
	return hashing.ComputeSha512_256(p.Bytes)
}
