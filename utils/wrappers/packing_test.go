// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackerRoundTrip(t *testing.T) {
	require := require.New(t)

	p := Packer{MaxSize: 64}
	p.PackByte(0x80)
	p.PackShort(0x0102)
	p.PackInt(math.MaxUint32)
	p.PackLong(42)
	p.PackBool(true)
	p.PackBytes([]byte("abc"))
	require.NoError(p.Err)
	require.Equal(1+2+4+8+1+4+3, p.Offset)

	u := Packer{Bytes: p.Bytes}
	require.Equal(byte(0x80), u.UnpackByte())
	require.Equal(uint16(0x0102), u.UnpackShort())
	require.Equal(uint32(math.MaxUint32), u.UnpackInt())
	require.Equal(uint64(42), u.UnpackLong())
	require.True(u.UnpackBool())
	require.Equal([]byte("abc"), u.UnpackLimitedBytes(16))
	require.NoError(u.Err)
	require.Zero(u.Remaining())
}

func TestPackerMaxSize(t *testing.T) {
	require := require.New(t)

	p := Packer{MaxSize: 3}
	p.PackInt(1)
	require.ErrorIs(p.Err, ErrInsufficientLength)

	// errors are sticky
	p.PackByte(1)
	require.Zero(p.Offset)
}

func TestUnpackErrors(t *testing.T) {
	require := require.New(t)

	p := Packer{Bytes: []byte{2}}
	require.False(p.UnpackBool())
	require.ErrorIs(p.Err, errBadBool)

	p = Packer{Bytes: []byte{0, 0, 0, 9, 1}}
	require.Nil(p.UnpackLimitedBytes(4))
	require.ErrorIs(p.Err, ErrInsufficientLength)

	p = Packer{Bytes: []byte{0, 0, 0, 2, 1}}
	require.Nil(p.UnpackLimitedBytes(4))
	require.ErrorIs(p.Err, ErrInsufficientLength)
}
