// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package formatting

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58/base58"

	"github.com/stacks-network/stacks-devnet/utils/hashing"
)

// maximum length byte slice can be marshalled to a string
const maxBase58CheckSize = 16 * 1024

// BitcoinRegtestP2PKH is the version byte of regtest/testnet p2pkh addresses.
const BitcoinRegtestP2PKH byte = 0x6f

// Base58CheckEncode formats version||payload in checksummed base-58 encoding
// as used by bitcoin addresses.
func Base58CheckEncode(version byte, payload []byte) (string, error) {
	if len(payload) > maxBase58CheckSize {
		return "", fmt.Errorf("byte slice length (%d) > maximum for base58check (%d)", len(payload), maxBase58CheckSize)
	}
	checked := make([]byte, 0, len(payload)+1+checksumLen)
	checked = append(checked, version)
	checked = append(checked, payload...)
	checked = append(checked, hashing.Checksum(checked, checksumLen)...)
	return base58.Encode(checked), nil
}

// Base58CheckDecode returns the version and payload of a base58check string.
func Base58CheckDecode(str string) (byte, []byte, error) {
	b, err := base58.Decode(str)
	if err != nil {
		return 0, nil, err
	}
	if len(b) < 1+checksumLen {
		return 0, nil, errMissingChecksum
	}

	raw := b[:len(b)-checksumLen]
	checksum := b[len(b)-checksumLen:]
	if !bytes.Equal(checksum, hashing.Checksum(raw, checksumLen)) {
		return 0, nil, errBadChecksum
	}
	return raw[0], raw[1:], nil
}

// BitcoinAddress returns the regtest p2pkh address of [hash].
func BitcoinAddress(hash hashing.Hash160) string {
	addr, _ := Base58CheckEncode(BitcoinRegtestP2PKH, hash[:])
	return addr
}
