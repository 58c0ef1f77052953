// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package formatting

import (
	"errors"
	"fmt"
	"strings"
)

// C32Alphabet is Crockford's base32 alphabet as used by Stacks.
const C32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	errInvalidC32Char = errors.New("invalid c32 character")

	c32Normalizer = strings.NewReplacer("O", "0", "L", "1", "I", "1")
)

// C32Encode encodes [data] as a big-endian base32 number. Every leading zero
// byte is preserved as a single leading '0'.
func C32Encode(data []byte) string {
	reversed := make([]byte, 0, len(data)*8/5+1)
	var (
		acc  uint32
		bits uint
	)
	for i := len(data) - 1; i >= 0; i-- {
		acc |= uint32(data[i]) << bits
		bits += 8
		for bits >= 5 {
			reversed = append(reversed, C32Alphabet[acc&31])
			acc >>= 5
			bits -= 5
		}
	}
	if bits > 0 {
		reversed = append(reversed, C32Alphabet[acc&31])
	}

	// The encoding is built least significant digit first.
	for i := len(reversed) - 1; i >= 0 && reversed[i] == '0'; i-- {
		reversed = reversed[:i]
	}

	var sb strings.Builder
	sb.Grow(len(reversed) + len(data))
	for _, b := range data {
		if b != 0 {
			break
		}
		sb.WriteByte('0')
	}
	for i := len(reversed) - 1; i >= 0; i-- {
		sb.WriteByte(reversed[i])
	}
	return sb.String()
}

// C32Decode is the inverse of C32Encode. Input is case-insensitive and the
// ambiguous characters O, L and I are read as 0, 1 and 1.
func C32Decode(s string) ([]byte, error) {
	s = c32Normalizer.Replace(strings.ToUpper(s))

	reversed := make([]byte, 0, len(s)*5/8+1)
	var (
		acc  uint32
		bits uint
	)
	for i := len(s) - 1; i >= 0; i-- {
		v := strings.IndexByte(C32Alphabet, s[i])
		if v < 0 {
			return nil, fmt.Errorf("%w %q at offset %d", errInvalidC32Char, s[i], i)
		}
		acc |= uint32(v) << bits
		bits += 5
		if bits >= 8 {
			reversed = append(reversed, byte(acc))
			acc >>= 8
			bits -= 8
		}
	}
	if bits > 0 {
		reversed = append(reversed, byte(acc))
	}
	for i := len(reversed) - 1; i >= 0 && reversed[i] == 0; i-- {
		reversed = reversed[:i]
	}

	leadingZeros := 0
	for leadingZeros < len(s) && s[leadingZeros] == '0' {
		leadingZeros++
	}
	out := make([]byte, leadingZeros, leadingZeros+len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		out = append(out, reversed[i])
	}
	return out, nil
}
