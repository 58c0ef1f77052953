// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/logging"
)

const txStatusSuccess = "success"

// burnBlockPayload is the body stacks-node posts to /new_burn_block.
type burnBlockPayload struct {
	BurnBlockHash   string `json:"burn_block_hash"`
	BurnBlockHeight uint64 `json:"burn_block_height"`
}

// blockPayload is the body stacks-node posts to /new_block.
type blockPayload struct {
	BlockHash       string      `json:"block_hash"`
	BlockHeight     uint64      `json:"block_height"`
	BurnBlockHash   string      `json:"burn_block_hash"`
	BurnBlockHeight uint64      `json:"burn_block_height"`
	BurnBlockTime   uint64      `json:"burn_block_time"`
	IndexBlockHash  string      `json:"index_block_hash"`
	ParentBlockHash string      `json:"parent_block_hash"`
	Transactions    []txPayload `json:"transactions"`
}

type txPayload struct {
	TxID      string `json:"txid"`
	TxIndex   uint32 `json:"tx_index"`
	Status    string `json:"status"`
	RawResult string `json:"raw_result"`
	RawTx     string `json:"raw_tx"`
}

// indexBlock decodes the transactions of a block notification into
// records. Transactions that fail to decode are kept with what the
// notification itself carries.
func indexBlock(log logging.Logger, p *blockPayload) StacksBlock {
	blk := StacksBlock{
		Height:         p.BlockHeight,
		Hash:           p.BlockHash,
		IndexBlockHash: p.IndexBlockHash,
		ParentHash:     p.ParentBlockHash,
		BurnHeight:     p.BurnBlockHeight,
		BurnHash:       p.BurnBlockHash,
		BurnTime:       p.BurnBlockTime,
		Transactions:   make([]TransactionRecord, 0, len(p.Transactions)),
	}
	for _, tx := range p.Transactions {
		record, err := indexTransaction(&tx)
		if err != nil {
			log.Warn("failed to index transaction",
				zap.String("txid", tx.TxID),
				zap.Uint64("blockHeight", p.BlockHeight),
				zap.Error(err),
			)
		}
		record.BlockHeight = p.BlockHeight
		record.BurnHeight = p.BurnBlockHeight
		blk.Transactions = append(blk.Transactions, record)
	}
	return blk
}

func indexTransaction(p *txPayload) (TransactionRecord, error) {
	record := TransactionRecord{
		TxID:        p.TxID,
		Status:      p.Status,
		Success:     p.Status == txStatusSuccess,
		TxIndex:     p.TxIndex,
		RawResult:   p.RawResult,
		Description: "unknown",
	}

	if len(p.RawResult) > 0 {
		result, err := clarity.DeserializeHex(p.RawResult)
		if err != nil {
			return record, fmt.Errorf("failed to decode result: %w", err)
		}
		record.Result = result.String()
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(p.RawTx, "0x"))
	if err != nil {
		return record, fmt.Errorf("failed to decode raw transaction: %w", err)
	}
	tx, err := stacks.Unmarshal(raw)
	if err != nil {
		return record, err
	}
	record.Sender = tx.Sender().Address()
	record.Kind = tx.Payload.Type().String()
	record.Description = stacks.Describe(tx)
	if len(record.TxID) == 0 {
		if txID, err := tx.ID(); err == nil {
			record.TxID = txID.String()
		}
	}
	return record, nil
}
