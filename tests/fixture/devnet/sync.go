// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"strconv"
	"time"
)

// Target is the point of the chain a wait is for.
type Target struct {
	height uint64
	epoch  Epoch
}

// AtHeight targets the first stacks block anchored at or above burn
// height [h].
func AtHeight(h uint64) Target {
	return Target{height: h}
}

// AtEpoch targets the first stacks block anchored at or above the
// activation height of [e].
func AtEpoch(e Epoch) Target {
	return Target{epoch: e}
}

func (t Target) String() string {
	if len(t.epoch) > 0 {
		return "epoch " + string(t.epoch)
	}
	return "burn height " + strconv.FormatUint(t.height, 10)
}

// BurnHeight resolves the target against [epochs].
func (t Target) BurnHeight(epochs EpochConfig) (uint64, error) {
	if len(t.epoch) == 0 {
		return t.height, nil
	}
	h, ok := epochs.Height(t.epoch)
	if !ok {
		return 0, newConfigError("target", "epoch %s is not scheduled", t.epoch)
	}
	return h, nil
}

// ChainWatcher is the synchronization API of a network. Every wait is
// bounded: a context without a deadline is given WaitTimeout.
type ChainWatcher struct {
	bus         *Bus
	epochs      EpochConfig
	waitTimeout time.Duration
}

func NewChainWatcher(bus *Bus, epochs EpochConfig, waitTimeout time.Duration) *ChainWatcher {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &ChainWatcher{
		bus:         bus,
		epochs:      epochs,
		waitTimeout: waitTimeout,
	}
}

func (c *ChainWatcher) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.waitTimeout)
}

// WaitForChainUpdate returns the first stacks block anchored at or above
// [target]. If the last stacks block already is, it is returned
// immediately.
func (c *ChainWatcher) WaitForChainUpdate(ctx context.Context, target Target) (ChainEvent, error) {
	h, err := target.BurnHeight(c.epochs)
	if err != nil {
		return ChainEvent{}, err
	}
	ctx, cancel := c.boundedContext(ctx)
	defer cancel()

	return c.bus.WaitFor(
		ctx,
		"stacks block at "+target.String(),
		func(e ChainEvent) bool {
			return e.Kind == KindNewStacksBlock && e.BurnHeight >= h
		},
		func(s ChainState) (ChainEvent, bool) {
			if s.LastStacksBlock == nil || s.LastStacksBlock.BurnHeight < h {
				return ChainEvent{}, false
			}
			return stacksBlockEvent(s.Epochs, s.LastStacksBlock), true
		},
	)
}

// WaitForNextStacksBlock returns the next stacks block published.
func (c *ChainWatcher) WaitForNextStacksBlock(ctx context.Context) (ChainEvent, error) {
	return c.waitForKind(ctx, KindNewStacksBlock, "next stacks block")
}

// WaitForNextBitcoinBlock returns the next bitcoin block published.
func (c *ChainWatcher) WaitForNextBitcoinBlock(ctx context.Context) (ChainEvent, error) {
	return c.waitForKind(ctx, KindNewBitcoinBlock, "next bitcoin block")
}

func (c *ChainWatcher) waitForKind(ctx context.Context, kind EventKind, what string) (ChainEvent, error) {
	ctx, cancel := c.boundedContext(ctx)
	defer cancel()

	return c.bus.WaitFor(
		ctx,
		what,
		func(e ChainEvent) bool {
			return e.Kind == kind
		},
		nil,
	)
}

// WaitForTransaction returns the next confirmed transaction sent by
// [address] and the block containing it.
func (c *ChainWatcher) WaitForTransaction(ctx context.Context, address string) (*StacksBlock, *TransactionRecord, error) {
	ctx, cancel := c.boundedContext(ctx)
	defer cancel()

	event, err := c.bus.WaitFor(ctx, "transaction from "+address, senderPredicate(address), nil)
	if err != nil {
		return nil, nil, err
	}
	record, _ := event.StacksBlock.TransactionFrom(address)
	return event.StacksBlock, record, nil
}

// WaitForTransactionID returns the block containing [txID] once it is
// confirmed.
func (c *ChainWatcher) WaitForTransactionID(ctx context.Context, txID string) (*StacksBlock, *TransactionRecord, error) {
	sub, err := c.SubscribeTransactionID(txID)
	if err != nil {
		return nil, nil, err
	}
	return c.AwaitTransaction(ctx, sub, txID)
}

// SubscribeTransactionID registers interest in [txID] without waiting, so
// that a transaction broadcast afterwards cannot be missed.
func (c *ChainWatcher) SubscribeTransactionID(txID string) (*Subscription, error) {
	return c.bus.Subscribe("transaction "+txID, txIDPredicate(txID), nil)
}

// AwaitTransaction waits on a subscription made by SubscribeTransactionID.
func (c *ChainWatcher) AwaitTransaction(ctx context.Context, sub *Subscription, txID string) (*StacksBlock, *TransactionRecord, error) {
	ctx, cancel := c.boundedContext(ctx)
	defer cancel()

	event, err := sub.Wait(ctx)
	if err != nil {
		return nil, nil, err
	}
	record, _ := event.StacksBlock.Transaction(txID)
	return event.StacksBlock, record, nil
}

// BurnHeight is the height of the last bitcoin block published.
func (c *ChainWatcher) BurnHeight() uint64 {
	return c.bus.BurnHeight()
}

// StacksHeight is the height of the last stacks block published.
func (c *ChainWatcher) StacksHeight() uint64 {
	return c.bus.StacksHeight()
}

// CurrentEpoch is the epoch active at the last bitcoin block published.
func (c *ChainWatcher) CurrentEpoch() Epoch {
	return c.bus.CurrentEpoch()
}

func senderPredicate(address string) Predicate {
	return func(e ChainEvent) bool {
		if e.Kind != KindNewStacksBlock {
			return false
		}
		_, ok := e.StacksBlock.TransactionFrom(address)
		return ok
	}
}

func txIDPredicate(txID string) Predicate {
	return func(e ChainEvent) bool {
		if e.Kind != KindNewStacksBlock {
			return false
		}
		_, ok := e.StacksBlock.Transaction(txID)
		return ok
	}
}

func stacksBlockEvent(epochs EpochConfig, blk *StacksBlock) ChainEvent {
	return ChainEvent{
		Kind:        KindNewStacksBlock,
		BurnHeight:  blk.BurnHeight,
		Epoch:       epochs.EpochAt(blk.BurnHeight),
		StacksBlock: blk,
	}
}
