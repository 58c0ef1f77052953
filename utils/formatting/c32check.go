// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package formatting

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/stacks-network/stacks-devnet/utils/hashing"
)

const (
	checksumLen = 4

	// AddressPrefix starts every Stacks address.
	AddressPrefix = 'S'

	// Address versions.
	MainnetSingleSig byte = 22
	MainnetMultiSig  byte = 20
	TestnetSingleSig byte = 26
	TestnetMultiSig  byte = 21
)

var (
	errMissingChecksum = errors.New("input is smaller than the checksum size")
	errBadChecksum     = errors.New("invalid input checksum")
	errInvalidVersion  = errors.New("invalid c32check version")
	errMissingPrefix   = errors.New("address does not start with 'S'")
	errInvalidHashLen  = errors.New("invalid address hash length")
)

// C32CheckEncode encodes [data] with a one character [version] prefix and a
// four byte double sha256 checksum over version||data.
func C32CheckEncode(version byte, data []byte) (string, error) {
	if version >= 32 {
		return "", fmt.Errorf("%w: %d", errInvalidVersion, version)
	}
	checked := make([]byte, 0, len(data)+checksumLen)
	checked = append(checked, data...)
	checked = append(checked, c32Checksum(version, data)...)
	return string(C32Alphabet[version]) + C32Encode(checked), nil
}

// C32CheckDecode returns the version and payload encoded by C32CheckEncode.
func C32CheckDecode(s string) (byte, []byte, error) {
	if len(s) < 2 {
		return 0, nil, errMissingChecksum
	}
	versionBytes, err := C32Decode(s[:1])
	if err != nil {
		return 0, nil, err
	}
	var version byte
	if len(versionBytes) > 0 {
		version = versionBytes[0]
	}
	checked, err := C32Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(checked) < checksumLen {
		return 0, nil, errMissingChecksum
	}
	data := checked[:len(checked)-checksumLen]
	if !bytes.Equal(checked[len(checked)-checksumLen:], c32Checksum(version, data)) {
		return 0, nil, errBadChecksum
	}
	return version, data, nil
}

// FormatAddress renders a Stacks address, e.g. ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.
func FormatAddress(version byte, hash hashing.Hash160) (string, error) {
	encoded, err := C32CheckEncode(version, hash[:])
	if err != nil {
		return "", err
	}
	return string(AddressPrefix) + encoded, nil
}

// ParseAddress is the inverse of FormatAddress.
func ParseAddress(addr string) (byte, hashing.Hash160, error) {
	if len(addr) == 0 || addr[0] != AddressPrefix {
		return 0, hashing.Hash160{}, fmt.Errorf("%w: %q", errMissingPrefix, addr)
	}
	version, data, err := C32CheckDecode(addr[1:])
	if err != nil {
		return 0, hashing.Hash160{}, fmt.Errorf("failed to decode %q: %w", addr, err)
	}
	hash, err := hashing.ToHash160(data)
	if err != nil {
		return 0, hashing.Hash160{}, fmt.Errorf("%w: %q", errInvalidHashLen, addr)
	}
	return version, hash, nil
}

func c32Checksum(version byte, data []byte) []byte {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, version)
	buf = append(buf, data...)
	return hashing.Checksum(buf, checksumLen)
}
