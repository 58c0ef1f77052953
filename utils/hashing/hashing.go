// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/minio/sha256-simd"

	// Bitcoin and Stacks both derive addresses from public keys with
	// ripemd160(sha256(pubkey)).
	"golang.org/x/crypto/ripemd160" //nolint:gosec
)

const (
	HashLen = sha256.Size
	AddrLen = ripemd160.Size
)

var ErrInvalidHashLen = errors.New("invalid hash length")

// Hash256 A 256 bit long hash value.
type Hash256 = [HashLen]byte

// Hash160 A 160 bit long hash value.
type Hash160 = [AddrLen]byte

// ComputeHash256Array computes a cryptographically strong 256 bit hash of the
// input byte slice.
func ComputeHash256Array(buf []byte) Hash256 {
	return sha256.Sum256(buf)
}

// ComputeHash256 computes a cryptographically strong 256 bit hash of the input
// byte slice.
func ComputeHash256(buf []byte) []byte {
	arr := ComputeHash256Array(buf)
	return arr[:]
}

// ComputeDoubleHash256 is sha256(sha256(buf)), the bitcoin checksum hash.
func ComputeDoubleHash256(buf []byte) Hash256 {
	first := sha256.Sum256(buf)
	return sha256.Sum256(first[:])
}

// ComputeSha512_256 computes the SHA-512/256 digest used for Stacks txids and
// signature hashes.
func ComputeSha512_256(buf []byte) Hash256 {
	return sha512.Sum512_256(buf)
}

// ComputeHash160Array computes a cryptographically strong 160 bit hash of the
// input byte slice.
func ComputeHash160Array(buf []byte) Hash160 {
	h, err := ToHash160(ComputeHash160(buf))
	if err != nil {
		panic(err)
	}
	return h
}

// ComputeHash160 computes the ripemd160 digest of the input byte slice.
func ComputeHash160(buf []byte) []byte {
	ripe := ripemd160.New() //nolint:gosec
	_, err := io.Writer(ripe).Write(buf)
	if err != nil {
		panic(err)
	}
	return ripe.Sum(nil)
}

// Checksum returns the first [length] bytes of the double sha256 of [bytes].
// Panics if length > 32.
func Checksum(bytes []byte, length int) []byte {
	hash := ComputeDoubleHash256(bytes)
	return hash[:length]
}

func ToHash256(bytes []byte) (Hash256, error) {
	hash := Hash256{}
	if bytesLen := len(bytes); bytesLen != HashLen {
		return hash, fmt.Errorf("%w: expected 32 bytes but got %d", ErrInvalidHashLen, bytesLen)
	}
	copy(hash[:], bytes)
	return hash, nil
}

func ToHash160(bytes []byte) (Hash160, error) {
	hash := Hash160{}
	if bytesLen := len(bytes); bytesLen != AddrLen {
		return hash, fmt.Errorf("%w: expected 20 bytes but got %d", ErrInvalidHashLen, bytesLen)
	}
	copy(hash[:], bytes)
	return hash, nil
}

// PubkeyBytesToAddress returns hash160(pubkey), the address hash shared by
// bitcoin p2pkh and Stacks single-sig principals.
func PubkeyBytesToAddress(key []byte) Hash160 {
	return ComputeHash160Array(ComputeHash256(key))
}
