// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/logging"
)

const deployerAddress = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"

func contractCallPayload(t *testing.T, status string, result clarity.Value) txPayload {
	require := require.New(t)

	account, err := NewAccount("deployer", DeployerKeyHex, 0)
	require.NoError(err)
	key, err := account.Key()
	require.NoError(err)
	contract, err := clarity.ParseContractPrincipal(deployerAddress + ".test-2-1")
	require.NoError(err)

	tx, err := stacks.MakeContractCall(stacks.ContractCallParams{
		SenderKey: key,
		Contract:  contract,
		Function:  "test-1",
		Args:      []clarity.Value{clarity.NewUInt(1)},
		TxOptions: stacks.TxOptions{Nonce: 4, Fee: DefaultCallFee},
	})
	require.NoError(err)
	raw, err := stacks.Marshal(tx)
	require.NoError(err)
	txID, err := tx.ID()
	require.NoError(err)
	rawResult, err := clarity.SerializeHex(result)
	require.NoError(err)

	return txPayload{
		TxID:      txID.String(),
		TxIndex:   1,
		Status:    status,
		RawResult: rawResult,
		RawTx:     "0x" + hex.EncodeToString(raw),
	}
}

func TestIndexBlock(t *testing.T) {
	require := require.New(t)

	succeeded := contractCallPayload(t, txStatusSuccess, clarity.NewOk(clarity.NewUInt(1)))
	aborted := contractCallPayload(t, "abort_by_response", clarity.NewErr(clarity.None))
	garbage := txPayload{
		TxID:   "0xdead",
		Status: txStatusSuccess,
		RawTx:  "0xzz",
	}

	blk := indexBlock(logging.NoLog{}, &blockPayload{
		BlockHash:       "0x01",
		BlockHeight:     7,
		BurnBlockHash:   "0x02",
		BurnBlockHeight: 107,
		IndexBlockHash:  "0x03",
		ParentBlockHash: "0x04",
		Transactions:    []txPayload{succeeded, aborted, garbage},
	})
	require.Equal(uint64(7), blk.Height)
	require.Equal(uint64(107), blk.BurnHeight)
	require.Len(blk.Transactions, 3)

	record := blk.Transactions[0]
	require.True(record.Success)
	require.Equal("(ok u1)", record.Result)
	require.Equal(deployerAddress, record.Sender)
	require.Equal("contract_call", record.Kind)
	require.Equal("invoked: "+deployerAddress+".test-2-1::test-1(u1)", record.Description)
	require.Equal(uint64(7), record.BlockHeight)
	require.Equal(uint64(107), record.BurnHeight)

	record = blk.Transactions[1]
	require.False(record.Success)
	require.Equal("(err none)", record.Result)
	require.Equal("abort_by_response", record.Status)

	// Undecodable transactions keep what the notification carries
	record = blk.Transactions[2]
	require.Equal("0xdead", record.TxID)
	require.Equal("unknown", record.Description)
	require.True(record.Success)

	found, ok := blk.Transaction(succeeded.TxID[2:])
	require.True(ok)
	require.Equal(succeeded.TxID, found.TxID)

	found, ok = blk.TransactionFrom(deployerAddress)
	require.True(ok)
	require.Equal(succeeded.TxID, found.TxID)
}
