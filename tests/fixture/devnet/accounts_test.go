// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultAccounts(t *testing.T) {
	require := require.New(t)

	accounts := DefaultAccounts()
	require.Len(accounts, 4)
	require.Equal("deployer", accounts[0].Name)
	require.Equal(deployerAddress, accounts[0].Address)
	require.Equal("ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5", accounts[1].Address)

	principal, err := accounts[0].Principal()
	require.NoError(err)
	require.Equal(deployerAddress, principal.Address())
}

func TestAccountKeyAfterDecode(t *testing.T) {
	require := require.New(t)

	account, err := NewAccount("wallet_1", Wallet1KeyHex, 1)
	require.NoError(err)
	b, err := json.Marshal(account)
	require.NoError(err)

	decoded := &Account{}
	require.NoError(json.Unmarshal(b, decoded))
	key, err := decoded.Key()
	require.NoError(err)

	expected, err := account.Key()
	require.NoError(err)
	require.Equal(expected.Bytes(), key.Bytes())

	_, err = NewAccount("bad", "zz", 0)
	require.ErrorContains(err, `"bad"`)
}
