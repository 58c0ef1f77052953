// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
	"github.com/stacks-network/stacks-devnet/utils/logging"
)

var (
	_ TxBuilder   = stacks.Builder{}
	_ Broadcaster = (*StacksClient)(nil)
	_ NonceSource = (*StacksClient)(nil)
)

// TxBuilder constructs and signs transactions.
type TxBuilder interface {
	MakeContractDeploy(ctx context.Context, params stacks.ContractDeployParams) (*stacks.Transaction, error)
	MakeContractCall(ctx context.Context, params stacks.ContractCallParams) (*stacks.Transaction, error)
}

// Broadcaster submits signed transactions to a node. A refusal must be
// reported as *BroadcastRejected.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *stacks.Transaction) (stacks.TxID, error)
}

// NonceSource reports the next nonce of an account.
type NonceSource interface {
	GetAccount(ctx context.Context, principal string) (*AccountInfo, error)
}

// DeployOptions tune a deployment. Nil Nonce is read from the node.
type DeployOptions struct {
	Fee            uint64
	Nonce          *uint64
	PostConditions []stacks.PostCondition
}

// CallOptions tune a contract call. Nil Nonce is read from the node.
type CallOptions struct {
	Fee            uint64
	Nonce          *uint64
	PostConditions []stacks.PostCondition
}

// ContractResult is an included transaction.
type ContractResult struct {
	TxID  stacks.TxID
	Block *StacksBlock
	Tx    *TransactionRecord
}

// OK reports whether the transaction executed successfully.
func (r *ContractResult) OK() bool {
	return r.Tx != nil && r.Tx.Success
}

// Contracts deploys and calls contracts, returning once the transaction
// is included in a block. Transactions of the same account are sent one
// at a time so that nonces read from the node stay consistent. Every step
// of a call, including waiting for the account, is bounded by the
// watcher's wait timeout when the caller's context has no deadline.
type Contracts struct {
	log         logging.Logger
	watcher     *ChainWatcher
	nonces      NonceSource
	builder     TxBuilder
	broadcaster Broadcaster
	network     stacks.Network

	lock     sync.Mutex
	accounts map[string]*semaphore.Weighted
}

func NewContracts(
	log logging.Logger,
	watcher *ChainWatcher,
	nonces NonceSource,
	builder TxBuilder,
	broadcaster Broadcaster,
) *Contracts {
	return &Contracts{
		log:         log,
		watcher:     watcher,
		nonces:      nonces,
		builder:     builder,
		broadcaster: broadcaster,
		network:     stacks.TestnetNetwork,
		accounts:    make(map[string]*semaphore.Weighted),
	}
}

// DeployContract deploys [source] as [name] with the default Clarity
// version of the current epoch.
func (c *Contracts) DeployContract(
	ctx context.Context,
	account *Account,
	name string,
	source string,
	opts DeployOptions,
) (*ContractResult, error) {
	return c.DeployVersionedContract(ctx, account, name, source, stacks.ClarityUnversioned, opts)
}

// DeployVersionedContract deploys [source] as [name] with an explicit
// Clarity version.
func (c *Contracts) DeployVersionedContract(
	ctx context.Context,
	account *Account,
	name string,
	source string,
	version stacks.ClarityVersion,
	opts DeployOptions,
) (*ContractResult, error) {
	fee := opts.Fee
	if fee == 0 {
		fee = DefaultDeployFee
	}
	return c.send(ctx, account, opts.Nonce, func(ctx context.Context, signer txSigner) (*stacks.Transaction, error) {
		return c.builder.MakeContractDeploy(ctx, stacks.ContractDeployParams{
			SenderKey:      signer.key,
			Name:           name,
			Code:           source,
			ClarityVersion: version,
			TxOptions:      c.txOptions(signer.nonce, fee, opts.PostConditions),
		})
	})
}

// CallContract invokes [function] of [contract], given as ADDRESS.name.
func (c *Contracts) CallContract(
	ctx context.Context,
	account *Account,
	contract string,
	function string,
	args []clarity.Value,
	opts CallOptions,
) (*ContractResult, error) {
	principal, err := clarity.ParseContractPrincipal(contract)
	if err != nil {
		return nil, fmt.Errorf("invalid contract %q: %w", contract, err)
	}
	fee := opts.Fee
	if fee == 0 {
		fee = DefaultCallFee
	}
	return c.send(ctx, account, opts.Nonce, func(ctx context.Context, signer txSigner) (*stacks.Transaction, error) {
		return c.builder.MakeContractCall(ctx, stacks.ContractCallParams{
			SenderKey: signer.key,
			Contract:  principal,
			Function:  function,
			Args:      args,
			TxOptions: c.txOptions(signer.nonce, fee, opts.PostConditions),
		})
	})
}

func (c *Contracts) txOptions(nonce uint64, fee uint64, postConditions []stacks.PostCondition) stacks.TxOptions {
	return stacks.TxOptions{
		Nonce:          nonce,
		Fee:            fee,
		Network:        c.network,
		PostConditions: postConditions,
	}
}

type txSigner struct {
	key   *secp256k1.PrivateKey
	nonce uint64
}

type buildFunc func(ctx context.Context, signer txSigner) (*stacks.Transaction, error)

func (c *Contracts) send(ctx context.Context, account *Account, nonce *uint64, build buildFunc) (*ContractResult, error) {
	key, err := account.Key()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, cancel := c.watcher.boundedContext(ctx)
	defer cancel()

	accountLock := c.accountLock(account.Address)
	if err := accountLock.Acquire(ctx, 1); err != nil {
		return nil, boundedErr(ctx, start, "pending transactions of "+account.Address, err)
	}
	defer accountLock.Release(1)

	signer := txSigner{key: key}
	if nonce != nil {
		signer.nonce = *nonce
	} else {
		info, err := c.nonces.GetAccount(ctx, account.Address)
		if err != nil {
			return nil, boundedErr(ctx, start, "nonce of "+account.Address,
				fmt.Errorf("failed to read nonce of %s: %w", account.Address, err))
		}
		signer.nonce = info.Nonce
	}

	tx, err := build(ctx, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	txID, err := tx.ID()
	if err != nil {
		return nil, err
	}

	// Subscribe before broadcasting so that inclusion cannot be missed
	sub, err := c.watcher.SubscribeTransactionID(txID.String())
	if err != nil {
		return nil, err
	}
	if _, err := c.broadcaster.Broadcast(ctx, tx); err != nil {
		sub.Cancel()
		var rejected *BroadcastRejected
		if errors.As(err, &rejected) {
			c.log.Info("transaction rejected",
				zap.Stringer("txID", txID),
				zap.String("sender", account.Address),
				zap.String("reason", rejected.Reason),
			)
			return nil, rejected
		}
		return nil, boundedErr(ctx, start, "broadcast of "+txID.String(),
			fmt.Errorf("failed to broadcast transaction %s: %w", txID, err))
	}
	c.log.Debug("transaction broadcast",
		zap.Stringer("txID", txID),
		zap.String("sender", account.Address),
		zap.Uint64("nonce", signer.nonce),
	)

	block, record, err := c.watcher.AwaitTransaction(ctx, sub, txID.String())
	if err != nil {
		return nil, err
	}
	return &ContractResult{
		TxID:  txID,
		Block: block,
		Tx:    record,
	}, nil
}

// boundedErr reports [err] as a *TimeoutError when it was caused by the
// deadline of [ctx].
func boundedErr(ctx context.Context, start time.Time, waiting string, err error) error {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = deadline.Sub(start).Round(time.Millisecond)
	}
	return &TimeoutError{
		Waiting: waiting,
		Timeout: timeout,
	}
}

func (c *Contracts) accountLock(address string) *semaphore.Weighted {
	c.lock.Lock()
	defer c.lock.Unlock()

	l, ok := c.accounts[address]
	if !ok {
		l = semaphore.NewWeighted(1)
		c.accounts[address] = l
	}
	return l
}
