// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

func TestJournalOrder(t *testing.T) {
	require := require.New(t)

	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(err)
	j, err := newJournal(db)
	require.NoError(err)
	defer j.Close()

	// More than 255 entries so that ordering depends on the key encoding
	for h := uint64(1); h <= 300; h++ {
		require.NoError(j.Append(ChainEvent{Kind: KindNewBitcoinBlock, BurnHeight: h}))
	}
	entries, err := j.Entries()
	require.NoError(err)
	require.Len(entries, 300)
	for i, entry := range entries {
		require.Equal(uint64(i+1), entry.Seq)
		require.Equal(uint64(i+1), entry.Event.BurnHeight)
	}
}

func TestJournalReopen(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "events")
	j, err := OpenJournal(path)
	require.NoError(err)
	require.NoError(j.Append(ChainEvent{Kind: KindNewBitcoinBlock, BurnHeight: 99}))
	require.NoError(j.Append(ChainEvent{
		Kind:       KindNewStacksBlock,
		BurnHeight: 100,
		Epoch:      Epoch20,
		StacksBlock: &StacksBlock{
			Height:     1,
			BurnHeight: 100,
			Transactions: []TransactionRecord{{
				TxID:   "0xabc",
				Result: "(ok true)",
			}},
		},
	}))

	// The journal is exclusively held while open
	_, err = ReadJournal(path)
	require.Error(err)
	require.NoError(j.Close())

	entries, err := ReadJournal(path)
	require.NoError(err)
	require.Len(entries, 2)
	require.Equal(KindNewStacksBlock, entries[1].Event.Kind)
	require.Equal("(ok true)", entries[1].Event.StacksBlock.Transactions[0].Result)

	// Sequence numbers continue after reopening
	j, err = OpenJournal(path)
	require.NoError(err)
	require.NoError(j.Append(ChainEvent{Kind: KindNewBitcoinBlock, BurnHeight: 101}))
	entries, err = j.Entries()
	require.NoError(err)
	require.NoError(j.Close())
	require.Len(entries, 3)
	require.Equal(uint64(3), entries[2].Seq)

	_, err = ReadJournal(filepath.Join(t.TempDir(), "missing"))
	require.Error(err)
}
