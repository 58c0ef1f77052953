// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package formatting

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/utils/hashing"
)

func TestC32Encode(t *testing.T) {
	tests := []struct {
		hex      string
		expected string
	}{
		{hex: "", expected: ""},
		{hex: "00", expected: "0"},
		{hex: "0000", expected: "00"},
		{hex: "01", expected: "1"},
		{hex: "1f", expected: "Z"},
		{hex: "20", expected: "10"},
		{hex: "a46ff88886c2ef9762d970b4d2c63678835bd39d", expected: "MHQZH246RBQSERPSE2TD5HHPF21NQMWX"},
	}
	for _, test := range tests {
		t.Run(test.hex, func(t *testing.T) {
			require := require.New(t)

			data, err := hex.DecodeString(test.hex)
			require.NoError(err)
			require.Equal(test.expected, C32Encode(data))

			decoded, err := C32Decode(test.expected)
			require.NoError(err)
			require.Equal(data, decoded)
		})
	}
}

func TestC32DecodeNormalizes(t *testing.T) {
	require := require.New(t)

	upper, err := C32Decode("MHQZH246RBQSERPSE2TD5HHPF21NQMWX")
	require.NoError(err)
	lower, err := C32Decode("mhqzh246rbqserpse2td5hhpf2lnqmwx")
	require.NoError(err)
	require.Equal(upper, lower)

	zero, err := C32Decode("O")
	require.NoError(err)
	require.Equal([]byte{0}, zero)

	_, err = C32Decode("U")
	require.ErrorIs(err, errInvalidC32Char)
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		version  byte
		hash     string
		expected string
	}{
		{
			version:  TestnetSingleSig,
			hash:     "0000000000000000000000000000000000000000",
			expected: "ST000000000000000000002AMW42H",
		},
		{
			version:  MainnetSingleSig,
			hash:     "0000000000000000000000000000000000000000",
			expected: "SP000000000000000000002Q6VF78",
		},
		{
			version:  MainnetSingleSig,
			hash:     "a46ff88886c2ef9762d970b4d2c63678835bd39d",
			expected: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7",
		},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			require := require.New(t)

			raw, err := hex.DecodeString(test.hash)
			require.NoError(err)
			hash, err := hashing.ToHash160(raw)
			require.NoError(err)

			addr, err := FormatAddress(test.version, hash)
			require.NoError(err)
			require.Equal(test.expected, addr)

			version, parsed, err := ParseAddress(addr)
			require.NoError(err)
			require.Equal(test.version, version)
			require.Equal(hash, parsed)
		})
	}
}

func TestParseAddressErrors(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected error
	}{
		{name: "empty", addr: "", expected: errMissingPrefix},
		{name: "wrong prefix", addr: "XT000000000000000000002AMW42H", expected: errMissingPrefix},
		{name: "bad checksum", addr: "ST000000000000000000002AMW42J", expected: errBadChecksum},
		{name: "short", addr: "ST", expected: errMissingChecksum},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := ParseAddress(test.addr)
			require.ErrorIs(t, err, test.expected)
		})
	}
}

func TestC32CheckEncodeVersion(t *testing.T) {
	_, err := C32CheckEncode(32, nil)
	require.ErrorIs(t, err, errInvalidVersion)
}
