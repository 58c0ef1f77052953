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

	"github.com/stacks-network/stacks-devnet/utils/logging"
)

// miner produces bitcoin blocks paying the miner address and reports them
// to the bus.
type miner struct {
	log     logging.Logger
	bus     *Bus
	client  *BitcoindClient
	address string

	// Serializes block production between the ticker and manual mining
	lock sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func newMiner(log logging.Logger, bus *Bus, client *BitcoindClient, address string) *miner {
	return &miner{
		log:     log,
		bus:     bus,
		client:  client,
		address: address,
	}
}

// Mine produces [n] blocks and returns the resulting block count.
func (m *miner) Mine(ctx context.Context, n uint64) (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	var hashes []string
	if n > 0 {
		var err error
		hashes, err = m.client.GenerateToAddress(ctx, n, m.address)
		if err != nil {
			return 0, fmt.Errorf("failed to mine %d blocks: %w", n, err)
		}
	}
	height, err := m.client.GetBlockCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read block count: %w", err)
	}
	blk := BurnBlock{Height: height}
	if len(hashes) > 0 {
		blk.Hash = hashes[len(hashes)-1]
	}
	m.bus.ObserveBurnBlock(sourceMiner, blk)
	return height, nil
}

// MineTo produces blocks until the block count reaches [height].
func (m *miner) MineTo(ctx context.Context, height uint64) error {
	current, err := m.client.GetBlockCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to read block count: %w", err)
	}
	if current >= height {
		return nil
	}
	m.log.Info("mining bitcoin blocks",
		zap.Uint64("from", current),
		zap.Uint64("to", height),
	)
	_, err = m.Mine(ctx, height-current)
	return err
}

// start produces one block every [blockTime] until stop is called.
func (m *miner) start(blockTime time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)

		ticker := time.NewTicker(blockTime)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if _, err := m.Mine(ctx, 1); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
				// A dead bitcoind is reported by the supervisor
				m.log.Warn("failed to mine block",
					zap.Error(err),
				)
			}
		}
	}()
}

// stop ends automatic block production. Safe to call when not started.
func (m *miner) stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}
