// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
)

func TestAccountBalanceValue(t *testing.T) {
	tests := []struct {
		balance  string
		expected *uint256.Int
	}{
		{balance: "0x0000000000000000000000000000000000000000", expected: uint256.NewInt(0)},
		{balance: "0x00000000000000000000000005f5e100", expected: uint256.NewInt(100_000_000)},
		{balance: "0x3e8", expected: uint256.NewInt(1000)},
	}
	for _, test := range tests {
		t.Run(test.balance, func(t *testing.T) {
			require := require.New(t)

			info := &AccountInfo{Balance: test.balance}
			value, err := info.BalanceValue()
			require.NoError(err)
			require.Equal(test.expected, value)
		})
	}

	_, err := (&AccountInfo{Balance: "0xzz"}).BalanceValue()
	require.ErrorContains(t, err, "failed to decode balance")
}

func newTestDeploy(t *testing.T) *stacks.Transaction {
	sk, err := secp256k1.ParsePrivateKeyHex(DeployerKeyHex)
	require.NoError(t, err)
	tx, err := stacks.MakeContractDeploy(stacks.ContractDeployParams{
		SenderKey: sk,
		Name:      "counter",
		Code:      "(define-data-var count uint u0)",
		TxOptions: stacks.TxOptions{Nonce: 0, Fee: DefaultDeployFee},
	})
	require.NoError(t, err)
	return tx
}

func TestStacksClientBroadcast(t *testing.T) {
	require := require.New(t)

	tx := newTestDeploy(t)
	txID, err := tx.ID()
	require.NoError(err)

	var reject bool
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transactions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(http.MethodPost, r.Method)
		require.Equal("application/octet-stream", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(err)
		require.NotEmpty(body)

		if reject {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error":       "transaction rejected",
				"reason":      "BadNonce",
				"reason_data": map[string]uint64{"expected": 1, "actual": 0},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(txID.String())
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewStacksClient(server.URL + "/")
	got, err := client.Broadcast(context.Background(), tx)
	require.NoError(err)
	require.Equal(txID, got)

	reject = true
	_, err = client.Broadcast(context.Background(), tx)
	var rejected *BroadcastRejected
	require.ErrorAs(err, &rejected)
	require.Equal("BadNonce", rejected.Reason)
	require.Equal(txID.String(), rejected.TxID)
	require.JSONEq(`{"expected":1,"actual":0}`, string(rejected.ReasonData))
}

func TestStacksClientQueries(t *testing.T) {
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/info", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"peer_version":4207599113,"network_id":2147483648,"burn_block_height":103,"stacks_tip_height":4}`)
	})
	mux.HandleFunc("/v2/pox", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"contract_id":"ST000000000000000000002AMW42H.pox-2","reward_cycle_length":10}`)
	})
	mux.HandleFunc("/v2/accounts/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/v2/accounts/"+deployerAddress, r.URL.Path)
		require.Equal("0", r.URL.Query().Get("proof"))
		_, _ = io.WriteString(w, `{"balance":"0x000000000000000000000000000003e8","nonce":2}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	client := NewStacksClient(server.URL)

	info, err := client.GetInfo(ctx)
	require.NoError(err)
	require.Equal(uint64(103), info.BurnBlockHeight)
	require.Equal(uint64(4), info.StacksTipHeight)

	ready, err := client.isReady(ctx)
	require.NoError(err)
	require.True(ready)

	pox, err := client.GetPoxInfo(ctx)
	require.NoError(err)
	require.Equal("ST000000000000000000002AMW42H.pox-2", pox.ContractID)

	account, err := client.GetAccount(ctx, deployerAddress)
	require.NoError(err)
	require.Equal(uint64(2), account.Nonce)
	balance, err := account.BalanceValue()
	require.NoError(err)
	require.Equal(uint64(1000), balance.Uint64())

	_, err = NewStacksClient(server.URL + "/missing").GetInfo(ctx)
	require.ErrorContains(err, "returned status 404")
}
