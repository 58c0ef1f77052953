// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	require := require.New(t)

	require.Equal("stacks-devnet/1.2.3", (&Application{Name: Client, Major: 1, Minor: 2, Patch: 3}).String())
	require.Equal(Current.String()+"\n", String(""))
	require.Equal(Current.String()+" [commit=abc]\n", String("abc"))
}
