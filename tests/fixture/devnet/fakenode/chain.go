// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fakenode

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/hashing"
)

const (
	statusSuccess         = "success"
	statusAbortByResponse = "abort_by_response"
	statusRuntimeError    = "runtime_error"

	// Rejection reasons, as named by stacks-node.
	reasonDeserialization       = "Deserialization"
	reasonBadTransactionVersion = "BadTransactionVersion"
	reasonSignatureValidation   = "SignatureValidation"
	reasonBadNonce              = "BadNonce"
	reasonConflictingNonce      = "ConflictingNonceInMempool"
	reasonNotEnoughFunds        = "NotEnoughFunds"
	reasonContractExists        = "ContractAlreadyExists"
	reasonNoSuchContract        = "NoSuchContract"
	reasonNoSuchPublicFunction  = "NoSuchPublicFunction"
	reasonBadFunctionArgument   = "BadFunctionArgument"
	reasonOther                 = "Other"
)

// Canonical epoch order. Names match the epochs section of Config.toml.
var epochOrder = []string{"1.0", "2.0", "2.05", "2.1", "2.2", "2.3", "2.4"}

func epochIndex(name string) int {
	for i, e := range epochOrder {
		if e == name {
			return i
		}
	}
	return -1
}

// rejection is the body stacks-node answers a refused broadcast with.
type rejection struct {
	Message    string      `json:"error"`
	Reason     string      `json:"reason"`
	ReasonData interface{} `json:"reason_data,omitempty"`
	TxID       string      `json:"txid"`
}

func (r *rejection) Error() string {
	return r.Reason + ": " + r.Message
}

type account struct {
	balance uint64
	nonce   uint64
}

type pendingTx struct {
	tx     *stacks.Transaction
	raw    []byte
	id     stacks.TxID
	sender string
}

// minedTx is a transaction as reported to event observers.
type minedTx struct {
	TxID      string `json:"txid"`
	TxIndex   uint32 `json:"tx_index"`
	Status    string `json:"status"`
	RawResult string `json:"raw_result"`
	RawTx     string `json:"raw_tx"`
}

type burnBlockEvent struct {
	BurnBlockHash   string `json:"burn_block_hash"`
	BurnBlockHeight uint64 `json:"burn_block_height"`
}

type blockEvent struct {
	BlockHash       string    `json:"block_hash"`
	BlockHeight     uint64    `json:"block_height"`
	BurnBlockHash   string    `json:"burn_block_hash"`
	BurnBlockHeight uint64    `json:"burn_block_height"`
	BurnBlockTime   uint64    `json:"burn_block_time"`
	IndexBlockHash  string    `json:"index_block_hash"`
	ParentBlockHash string    `json:"parent_block_hash"`
	Transactions    []minedTx `json:"transactions"`
}

type epochStart struct {
	name   string
	height uint64
}

// chain is the state of the fake stacks chain: balances, nonces, deployed
// contracts and the mempool.
type chain struct {
	lock sync.Mutex

	epochs    []epochStart
	network   stacks.Network
	accounts  map[string]*account
	contracts contractSet
	mempool   []*pendingTx

	burnHeight   uint64
	burnHash     string
	stacksHeight uint64
	stacksTip    string
}

func newChain(epochs []epochStart, balances map[string]uint64) *chain {
	c := &chain{
		epochs:    epochs,
		network:   stacks.TestnetNetwork,
		accounts:  make(map[string]*account, len(balances)),
		contracts: make(contractSet),
		stacksTip: hex.EncodeToString(make([]byte, hashing.HashLen)),
	}
	for address, balance := range balances {
		c.accounts[address] = &account{balance: balance}
	}
	return c
}

// epochAt returns the epoch active at [burnHeight].
func (c *chain) epochAt(burnHeight uint64) string {
	current := epochOrder[0]
	for _, e := range c.epochs {
		if e.height > burnHeight {
			break
		}
		current = e.name
	}
	return current
}

func (c *chain) epochActive(name string, burnHeight uint64) bool {
	return epochIndex(c.epochAt(burnHeight)) >= epochIndex(name)
}

func (c *chain) account(address string) *account {
	a, ok := c.accounts[address]
	if !ok {
		a = &account{}
		c.accounts[address] = a
	}
	return a
}

type accountSnapshot struct {
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func (c *chain) accountInfo(address string) accountSnapshot {
	c.lock.Lock()
	defer c.lock.Unlock()

	a := c.account(address)
	return accountSnapshot{
		Balance: fmt.Sprintf("0x%032x", a.balance),
		Nonce:   a.nonce,
	}
}

type tipSnapshot struct {
	burnHeight   uint64
	stacksHeight uint64
	stacksTip    string
}

func (c *chain) tip() tipSnapshot {
	c.lock.Lock()
	defer c.lock.Unlock()

	return tipSnapshot{
		burnHeight:   c.burnHeight,
		stacksHeight: c.stacksHeight,
		stacksTip:    c.stacksTip,
	}
}

// submit admits a serialized transaction to the mempool.
func (c *chain) submit(raw []byte) (stacks.TxID, error) {
	id := stacks.TxID(hashing.ComputeSha512_256(raw))
	reject := func(reason string, message string, data interface{}) error {
		return &rejection{
			Message:    message,
			Reason:     reason,
			ReasonData: data,
			TxID:       id.String(),
		}
	}

	tx, err := stacks.Unmarshal(raw)
	if err != nil {
		return id, reject(reasonDeserialization, err.Error(), nil)
	}
	if tx.Network() != c.network {
		return id, reject(reasonBadTransactionVersion, "transaction is not for this network", nil)
	}
	if _, err := tx.VerifyOrigin(); err != nil {
		return id, reject(reasonSignatureValidation, err.Error(), nil)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	sender := tx.Sender().Address()
	origin := tx.Auth.Origin
	acct := c.account(sender)
	if origin.Nonce < acct.nonce {
		return id, reject(reasonBadNonce, "nonce already used", map[string]interface{}{
			"expected":  acct.nonce,
			"actual":    origin.Nonce,
			"principal": sender,
			"is_origin": true,
		})
	}
	for _, p := range c.mempool {
		if p.id == id {
			return id, nil
		}
		if p.sender == sender && p.tx.Auth.Origin.Nonce == origin.Nonce {
			return id, reject(reasonConflictingNonce, "a transaction with this nonce is pending", nil)
		}
	}
	cost := origin.Fee
	if transfer, ok := tx.Payload.(*stacks.TokenTransfer); ok {
		cost += transfer.Amount
	}
	if cost > acct.balance {
		return id, reject(reasonNotEnoughFunds, "insufficient balance", map[string]interface{}{
			"expected": fmt.Sprintf("0x%x", cost),
			"actual":   fmt.Sprintf("0x%x", acct.balance),
		})
	}

	switch payload := tx.Payload.(type) {
	case *stacks.SmartContract:
		if payload.ClarityVersion != stacks.ClarityUnversioned && !c.epochActive("2.1", c.burnHeight) {
			return id, reject(reasonOther, "versioned smart contract transactions are not supported before epoch 2.1", nil)
		}
		contractID := clarity.ContractPrincipal{Issuer: tx.Sender(), Name: payload.Name}.ID()
		if _, exists := c.contracts[contractID]; exists {
			return id, reject(reasonContractExists, contractID, nil)
		}
	case *stacks.ContractCall:
		deployed, ok := c.contracts[payload.Contract.ID()]
		if !ok {
			return id, reject(reasonNoSuchContract, payload.Contract.ID(), nil)
		}
		fn, ok := deployed.functions[payload.Function]
		if !ok || fn.access != accessPublic {
			return id, reject(reasonNoSuchPublicFunction, payload.Contract.ID()+"::"+payload.Function, nil)
		}
		if len(fn.params) != len(payload.Args) {
			return id, reject(reasonBadFunctionArgument, errArgumentCount.Error(), nil)
		}
	case *stacks.TokenTransfer:
	default:
		return id, reject(reasonOther, "payload not accepted by the mempool: "+tx.Payload.Type().String(), nil)
	}

	c.mempool = append(c.mempool, &pendingTx{
		tx:     tx,
		raw:    raw,
		id:     id,
		sender: sender,
	})
	return id, nil
}

// processBurnBlock advances the burn chain. From epoch 2.0 on, every burn
// block anchors one stacks block holding the mempool transactions that
// are next in nonce order.
func (c *chain) processBurnBlock(height uint64, hash string, burnTime uint64) (*burnBlockEvent, *blockEvent) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.burnHeight = height
	c.burnHash = hash
	burn := &burnBlockEvent{
		BurnBlockHash:   "0x" + hash,
		BurnBlockHeight: height,
	}
	if !c.epochActive("2.0", height) {
		return burn, nil
	}

	c.stacksHeight++
	parent := c.stacksTip
	blockHash := blockID(parent, c.stacksHeight, hash)
	block := &blockEvent{
		BlockHash:       "0x" + blockHash,
		BlockHeight:     c.stacksHeight,
		BurnBlockHash:   "0x" + hash,
		BurnBlockHeight: height,
		BurnBlockTime:   burnTime,
		IndexBlockHash:  "0x" + blockID(blockHash, c.stacksHeight, hash),
		ParentBlockHash: "0x" + parent,
		Transactions:    []minedTx{},
	}
	c.stacksTip = blockHash

	for _, p := range c.selectTransactions() {
		status, result := c.execute(p, height)
		raw, err := clarity.SerializeHex(result)
		if err != nil {
			raw = ""
		}
		block.Transactions = append(block.Transactions, minedTx{
			TxID:      p.id.String(),
			TxIndex:   uint32(len(block.Transactions)),
			Status:    status,
			RawResult: raw,
			RawTx:     "0x" + hex.EncodeToString(p.raw),
		})
	}
	return burn, block
}

// selectTransactions removes from the mempool every transaction whose
// nonce is next for its sender, repeatedly, and drops stale ones.
func (c *chain) selectTransactions() []*pendingTx {
	var (
		selected []*pendingTx
		nonces   = make(map[string]uint64)
	)
	nextNonce := func(sender string) uint64 {
		if n, ok := nonces[sender]; ok {
			return n
		}
		return c.account(sender).nonce
	}
	for progress := true; progress; {
		progress = false
		remaining := c.mempool[:0]
		for _, p := range c.mempool {
			nonce := p.tx.Auth.Origin.Nonce
			switch expected := nextNonce(p.sender); {
			case nonce == expected:
				selected = append(selected, p)
				nonces[p.sender] = expected + 1
				progress = true
			case nonce > expected:
				remaining = append(remaining, p)
			}
		}
		c.mempool = remaining
	}
	return selected
}

// execute applies [p] and returns its status and result. Fees are paid
// and the nonce is consumed even when execution fails.
func (c *chain) execute(p *pendingTx, burnHeight uint64) (string, clarity.Value) {
	sender := c.account(p.sender)
	sender.nonce++
	fee := p.tx.Auth.Origin.Fee
	if fee > sender.balance {
		fee = sender.balance
	}
	sender.balance -= fee

	failed := clarity.NewErr(clarity.None)
	ctx := &evalContext{
		sender:      p.tx.Sender(),
		blockHeight: c.stacksHeight,
		contracts:   c.contracts,
	}
	switch payload := p.tx.Payload.(type) {
	case *stacks.SmartContract:
		version := payload.ClarityVersion
		if version == stacks.ClarityUnversioned {
			version = stacks.Clarity1
			if c.epochActive("2.1", burnHeight) {
				version = stacks.Clarity2
			}
		}
		id := clarity.ContractPrincipal{Issuer: p.tx.Sender(), Name: payload.Name}.ID()
		if _, exists := c.contracts[id]; exists {
			return statusAbortByResponse, failed
		}
		deployed, err := c.contracts.deploy(id, payload.Code, version)
		if err != nil {
			return statusAbortByResponse, failed
		}
		c.contracts[id] = deployed
		return statusSuccess, clarity.NewOk(clarity.Bool(true))
	case *stacks.ContractCall:
		deployed, ok := c.contracts[payload.Contract.ID()]
		if !ok {
			return statusAbortByResponse, failed
		}
		response, err := deployed.call(payload.Function, payload.Args, ctx)
		if err != nil {
			return statusRuntimeError, failed
		}
		if !response.OK {
			return statusAbortByResponse, response
		}
		return statusSuccess, response
	case *stacks.TokenTransfer:
		if payload.Amount > sender.balance {
			return statusAbortByResponse, clarity.NewErr(clarity.NewUInt(1))
		}
		sender.balance -= payload.Amount
		if recipient, ok := payload.Recipient.(clarity.StandardPrincipal); ok {
			c.account(recipient.Address()).balance += payload.Amount
		}
		return statusSuccess, clarity.NewOk(clarity.Bool(true))
	default:
		return statusAbortByResponse, failed
	}
}

func blockID(parent string, height uint64, burnHash string) string {
	b := make([]byte, 0, len(parent)+8+len(burnHash))
	b = append(b, parent...)
	b = binary.BigEndian.AppendUint64(b, height)
	b = append(b, burnHash...)
	id := hashing.ComputeSha512_256(b)
	return hex.EncodeToString(id[:])
}

var errUnknownEpoch = errors.New("unknown epoch")

func parseEpochs(entries []epochEntry) ([]epochStart, error) {
	epochs := make([]epochStart, 0, len(entries))
	for _, e := range entries {
		if epochIndex(e.EpochName) < 0 {
			return nil, fmt.Errorf("%w: %q", errUnknownEpoch, e.EpochName)
		}
		epochs = append(epochs, epochStart{name: e.EpochName, height: e.StartHeight})
	}
	return epochs, nil
}
