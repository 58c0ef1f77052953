// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"fmt"
	"strings"
)

// EventKind tags a ChainEvent.
type EventKind string

const (
	KindNewBitcoinBlock      EventKind = "NewBitcoinBlock"
	KindNewStacksBlock       EventKind = "NewStacksBlock"
	KindEpochBoundaryCrossed EventKind = "EpochBoundaryCrossed"
)

// EventKinds lists every kind of event.
var EventKinds = []EventKind{KindNewBitcoinBlock, KindNewStacksBlock, KindEpochBoundaryCrossed}

// ChainEvent is published by the bus. Exactly one of BurnBlock and
// StacksBlock is set for block events; neither is set when an epoch
// boundary is crossed.
type ChainEvent struct {
	Kind EventKind `json:"kind"`
	// BurnHeight is the burn height at which the event happened.
	BurnHeight uint64 `json:"burnHeight"`
	// Epoch is the epoch active at BurnHeight. For EpochBoundaryCrossed it
	// is the epoch just entered.
	Epoch       Epoch        `json:"epoch"`
	BurnBlock   *BurnBlock   `json:"burnBlock,omitempty"`
	StacksBlock *StacksBlock `json:"stacksBlock,omitempty"`
}

func (e ChainEvent) String() string {
	switch e.Kind {
	case KindNewBitcoinBlock:
		return fmt.Sprintf("%s(%d)", e.Kind, e.BurnHeight)
	case KindNewStacksBlock:
		return fmt.Sprintf("%s(%d, burn %d, %d txs)", e.Kind, e.StacksBlock.Height, e.BurnHeight, len(e.StacksBlock.Transactions))
	default:
		return fmt.Sprintf("%s(%s at %d)", e.Kind, e.Epoch, e.BurnHeight)
	}
}

// BurnBlock is a block of the bitcoin chain.
type BurnBlock struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash,omitempty"`
}

// StacksBlock is a confirmed Stacks block and the transactions it holds.
type StacksBlock struct {
	Height         uint64              `json:"height"`
	Hash           string              `json:"hash"`
	IndexBlockHash string              `json:"indexBlockHash,omitempty"`
	ParentHash     string              `json:"parentHash,omitempty"`
	BurnHeight     uint64              `json:"burnHeight"`
	BurnHash       string              `json:"burnHash,omitempty"`
	BurnTime       uint64              `json:"burnTime,omitempty"`
	Transactions   []TransactionRecord `json:"transactions,omitempty"`
}

// Transaction returns the record of [txID], which may be given with or
// without the 0x prefix.
func (b *StacksBlock) Transaction(txID string) (*TransactionRecord, bool) {
	want := normalizeTxID(txID)
	for i := range b.Transactions {
		if normalizeTxID(b.Transactions[i].TxID) == want {
			return &b.Transactions[i], true
		}
	}
	return nil, false
}

// TransactionFrom returns the first record sent by [address].
func (b *StacksBlock) TransactionFrom(address string) (*TransactionRecord, bool) {
	for i := range b.Transactions {
		if b.Transactions[i].Sender == address {
			return &b.Transactions[i], true
		}
	}
	return nil, false
}

// TransactionRecord is a transaction as observed in a confirmed block.
type TransactionRecord struct {
	TxID string `json:"txid"`
	// Sender is the c32check address of the origin.
	Sender string `json:"sender"`
	// Kind is the payload type, e.g. contract_call.
	Kind string `json:"kind"`
	// Description summarizes the payload, e.g. "deployed: ADDR.name".
	Description string `json:"description"`
	// Result is the Clarity repr of the result, e.g. "(ok true)".
	Result    string `json:"result"`
	RawResult string `json:"rawResult,omitempty"`
	Success   bool   `json:"success"`
	Status    string `json:"status"`

	TxIndex     uint32 `json:"txIndex"`
	BlockHeight uint64 `json:"blockHeight"`
	BurnHeight  uint64 `json:"burnHeight"`
}

func normalizeTxID(txID string) string {
	return strings.ToLower(strings.TrimPrefix(txID, "0x"))
}
