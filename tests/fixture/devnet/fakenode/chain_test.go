// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fakenode

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
)

const (
	deployerKey     = "753b7cc01a1a2e86221266a154af739463fce51219d97e4f856cd7200c3bd2a601"
	deployerAddress = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	wallet1Address  = "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"

	testContract = `
(define-public (test-1) (ok (buff-to-uint-be 0x0001)))
(define-public (test-2) (ok (buff-to-uint-be 0xffffffffffffffffffffffffffffffff)))
(define-public (test-3) (ok (buff-to-uint-be 0x)))
`
)

func newTestChain(t *testing.T) *chain {
	epochs, err := parseEpochs([]epochEntry{
		{EpochName: "1.0", StartHeight: 0},
		{EpochName: "2.0", StartHeight: 100},
		{EpochName: "2.05", StartHeight: 102},
		{EpochName: "2.1", StartHeight: 106},
	})
	require.NoError(t, err)
	return newChain(epochs, map[string]uint64{
		deployerAddress: 100_000_000,
	})
}

func advanceTo(c *chain, height uint64) *blockEvent {
	var last *blockEvent
	for h := c.tip().burnHeight + 1; h <= height; h++ {
		_, block := c.processBurnBlock(h, "ab", 0)
		if block != nil {
			last = block
		}
	}
	return last
}

func deployerSK(t *testing.T) *secp256k1.PrivateKey {
	sk, err := secp256k1.ParsePrivateKeyHex(deployerKey)
	require.NoError(t, err)
	return sk
}

func deployTx(t *testing.T, name string, version stacks.ClarityVersion, nonce uint64, fee uint64) []byte {
	tx, err := stacks.MakeContractDeploy(stacks.ContractDeployParams{
		SenderKey:      deployerSK(t),
		Name:           name,
		Code:           testContract,
		ClarityVersion: version,
		TxOptions:      stacks.TxOptions{Nonce: nonce, Fee: fee},
	})
	require.NoError(t, err)
	raw, err := stacks.Marshal(tx)
	require.NoError(t, err)
	return raw
}

func callTx(t *testing.T, contract string, function string, nonce uint64) []byte {
	principal, err := clarity.ParseContractPrincipal(contract)
	require.NoError(t, err)
	tx, err := stacks.MakeContractCall(stacks.ContractCallParams{
		SenderKey: deployerSK(t),
		Contract:  principal,
		Function:  function,
		TxOptions: stacks.TxOptions{Nonce: nonce, Fee: 2_000},
	})
	require.NoError(t, err)
	raw, err := stacks.Marshal(tx)
	require.NoError(t, err)
	return raw
}

func requireRejected(t *testing.T, err error, reason string) {
	var r *rejection
	require.ErrorAs(t, err, &r)
	require.Equal(t, reason, r.Reason)
}

func serialize(t *testing.T, v clarity.Value) string {
	s, err := clarity.SerializeHex(v)
	require.NoError(t, err)
	return s
}

func TestNoStacksBlocksBeforeEpoch20(t *testing.T) {
	require := require.New(t)

	c := newTestChain(t)
	burn, block := c.processBurnBlock(99, "aa", 0)
	require.Nil(block)
	require.Equal("0xaa", burn.BurnBlockHash)
	require.Equal(uint64(99), burn.BurnBlockHeight)

	_, block = c.processBurnBlock(100, "bb", 0)
	require.NotNil(block)
	require.Equal(uint64(1), block.BlockHeight)
	require.Equal(uint64(100), block.BurnBlockHeight)
	require.Empty(block.Transactions)
}

func TestClarityVersionByEpoch(t *testing.T) {
	require := require.New(t)

	c := newTestChain(t)
	advanceTo(c, 102)

	// Versioned deploys are not accepted until 2.1
	_, err := c.submit(deployTx(t, "test-2-05", stacks.Clarity2, 0, 10_000))
	requireRejected(t, err, reasonOther)

	// Unversioned deploys are analyzed as Clarity 1 before 2.1
	id, err := c.submit(deployTx(t, "test-2-05", stacks.ClarityUnversioned, 0, 10_000))
	require.NoError(err)
	block := advanceTo(c, 103)
	require.Len(block.Transactions, 1)
	require.Equal(id.String(), block.Transactions[0].TxID)
	require.Equal(statusAbortByResponse, block.Transactions[0].Status)
	require.Equal(serialize(t, clarity.NewErr(clarity.None)), block.Transactions[0].RawResult)

	advanceTo(c, 106)
	_, err = c.submit(deployTx(t, "test-2-1", stacks.Clarity2, 1, 10_000))
	require.NoError(err)
	block = advanceTo(c, 107)
	require.Len(block.Transactions, 1)
	require.Equal(statusSuccess, block.Transactions[0].Status)

	for i, function := range []string{"test-1", "test-2", "test-3"} {
		_, err := c.submit(callTx(t, deployerAddress+".test-2-1", function, uint64(2+i)))
		require.NoError(err)
	}
	block = advanceTo(c, 108)
	require.Len(block.Transactions, 3)

	max128, err := clarity.UIntFromUint256(new(uint256.Int).Sub(twoTo128, uint256.NewInt(1)))
	require.NoError(err)
	expected := []clarity.Value{
		clarity.NewOk(clarity.NewUInt(1)),
		clarity.NewOk(max128),
		clarity.NewOk(clarity.NewUInt(0)),
	}
	for i, tx := range block.Transactions {
		require.Equal(statusSuccess, tx.Status)
		require.Equal(serialize(t, expected[i]), tx.RawResult)
		require.Equal(uint32(i), tx.TxIndex)
	}
}

func TestMempoolNonces(t *testing.T) {
	require := require.New(t)

	c := newTestChain(t)
	advanceTo(c, 106)

	first := deployTx(t, "first", stacks.Clarity2, 0, 10_000)
	_, err := c.submit(first)
	require.NoError(err)

	// Resubmitting the same transaction is accepted
	_, err = c.submit(first)
	require.NoError(err)

	_, err = c.submit(deployTx(t, "other", stacks.Clarity2, 0, 20_000))
	requireRejected(t, err, reasonConflictingNonce)

	// A gap in nonces waits in the mempool
	_, err = c.submit(deployTx(t, "third", stacks.Clarity2, 2, 10_000))
	require.NoError(err)

	block := advanceTo(c, 107)
	require.Len(block.Transactions, 1)
	require.Equal(uint64(1), c.accountInfo(deployerAddress).Nonce)

	_, err = c.submit(deployTx(t, "stale", stacks.Clarity2, 0, 10_000))
	requireRejected(t, err, reasonBadNonce)

	_, err = c.submit(deployTx(t, "second", stacks.Clarity2, 1, 10_000))
	require.NoError(err)
	block = advanceTo(c, 108)
	require.Len(block.Transactions, 2)
	require.Equal(uint64(3), c.accountInfo(deployerAddress).Nonce)
}

func TestMempoolRejections(t *testing.T) {
	require := require.New(t)

	c := newTestChain(t)
	advanceTo(c, 106)

	_, err := c.submit([]byte{0x80, 0x01})
	requireRejected(t, err, reasonDeserialization)

	_, err = c.submit(callTx(t, deployerAddress+".missing", "test-1", 0))
	requireRejected(t, err, reasonNoSuchContract)

	_, err = c.submit(deployTx(t, "test-2-1", stacks.Clarity2, 0, 10_000))
	require.NoError(err)
	advanceTo(c, 107)

	_, err = c.submit(deployTx(t, "test-2-1", stacks.Clarity2, 1, 10_000))
	requireRejected(t, err, reasonContractExists)

	_, err = c.submit(callTx(t, deployerAddress+".test-2-1", "test-4", 1))
	requireRejected(t, err, reasonNoSuchPublicFunction)

	_, err = c.submit(deployTx(t, "expensive", stacks.Clarity2, 1, 200_000_000))
	requireRejected(t, err, reasonNotEnoughFunds)

	mainnet, err := stacks.MakeContractDeploy(stacks.ContractDeployParams{
		SenderKey: deployerSK(t),
		Name:      "mainnet",
		Code:      testContract,
		TxOptions: stacks.TxOptions{Nonce: 1, Fee: 1, Network: stacks.MainnetNetwork},
	})
	require.NoError(err)
	raw, err := stacks.Marshal(mainnet)
	require.NoError(err)
	_, err = c.submit(raw)
	requireRejected(t, err, reasonBadTransactionVersion)
}

func TestTokenTransfer(t *testing.T) {
	require := require.New(t)

	c := newTestChain(t)
	advanceTo(c, 100)

	recipient, err := clarity.ParseStandardPrincipal(wallet1Address)
	require.NoError(err)
	tx, err := stacks.MakeTokenTransfer(stacks.TokenTransferParams{
		SenderKey: deployerSK(t),
		Recipient: recipient,
		Amount:    1_000,
		TxOptions: stacks.TxOptions{Fee: 180},
	})
	require.NoError(err)
	raw, err := stacks.Marshal(tx)
	require.NoError(err)

	_, err = c.submit(raw)
	require.NoError(err)
	block := advanceTo(c, 101)
	require.Len(block.Transactions, 1)
	require.Equal(statusSuccess, block.Transactions[0].Status)

	require.Equal(accountSnapshot{Balance: "0x000000000000000000000000000003e8", Nonce: 0}, c.accountInfo(wallet1Address))
	require.Equal(uint64(100_000_000-1_000-180), c.accounts[deployerAddress].balance)
}

func TestParseEpochsRejectsUnknown(t *testing.T) {
	_, err := parseEpochs([]epochEntry{{EpochName: "3.0", StartHeight: 1}})
	require.ErrorIs(t, err, errUnknownEpoch)
}
