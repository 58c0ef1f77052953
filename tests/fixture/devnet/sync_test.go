// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTargetBurnHeight(t *testing.T) {
	require := require.New(t)

	h, err := AtHeight(42).BurnHeight(testEpochs)
	require.NoError(err)
	require.Equal(uint64(42), h)

	h, err = AtEpoch(Epoch21).BurnHeight(testEpochs)
	require.NoError(err)
	require.Equal(uint64(106), h)

	_, err = AtEpoch(Epoch24).BurnHeight(testEpochs)
	var configErr *ConfigError
	require.ErrorAs(err, &configErr)

	require.Equal("epoch 2.1", AtEpoch(Epoch21).String())
	require.Equal("burn height 7", AtHeight(7).String())
}

func TestWaitForChainUpdate(t *testing.T) {
	require := require.New(t)

	b, m := newTestBus(t)
	w := NewChainWatcher(b, testEpochs, 5*time.Second)

	result := make(chan ChainEvent, 1)
	go func() {
		event, err := w.WaitForChainUpdate(context.Background(), AtEpoch(Epoch21))
		if err == nil {
			result <- event
		}
		close(result)
	}()

	require.Eventually(func() bool {
		return testutil.ToFloat64(m.pendingWaiters) == 1
	}, 5*time.Second, 5*time.Millisecond)

	// Burn blocks and stacks blocks below the target do not resolve it
	b.ObserveBurnBlock(sourceMiner, BurnBlock{Height: 106})
	b.ObserveStacksBlock(sourceObserver, stacksBlock(5, 105))
	b.ObserveStacksBlock(sourceObserver, stacksBlock(6, 107))

	event, ok := <-result
	require.True(ok)
	require.Equal(uint64(6), event.StacksBlock.Height)
	require.Equal(Epoch21, event.Epoch)
	require.Equal(Epoch21, w.CurrentEpoch())

	// Already satisfied targets resolve from the last stacks block
	event, err := w.WaitForChainUpdate(context.Background(), AtHeight(100))
	require.NoError(err)
	require.Equal(uint64(6), event.StacksBlock.Height)
	require.Equal(uint64(107), w.BurnHeight())
	require.Equal(uint64(6), w.StacksHeight())

	_, err = w.WaitForChainUpdate(context.Background(), AtEpoch(Epoch22))
	var configErr *ConfigError
	require.ErrorAs(err, &configErr)
}

func TestWaitUsesDefaultTimeout(t *testing.T) {
	require := require.New(t)

	b, _ := newTestBus(t)
	w := NewChainWatcher(b, testEpochs, 50*time.Millisecond)

	_, err := w.WaitForNextBitcoinBlock(context.Background())
	var timeoutErr *TimeoutError
	require.ErrorAs(err, &timeoutErr)
	require.Equal("next bitcoin block", timeoutErr.Waiting)

	// A caller deadline takes precedence
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		time.Sleep(100 * time.Millisecond)
		b.ObserveStacksBlock(sourceObserver, stacksBlock(1, 100))
	}()
	event, err := w.WaitForNextStacksBlock(ctx)
	require.NoError(err)
	require.Equal(uint64(1), event.StacksBlock.Height)
}

func TestWaitForTransaction(t *testing.T) {
	require := require.New(t)

	b, m := newTestBus(t)
	w := NewChainWatcher(b, testEpochs, 5*time.Second)

	// Subscribing before the block is published cannot miss it
	sub, err := w.SubscribeTransactionID("0xABCD")
	require.NoError(err)
	b.ObserveStacksBlock(sourceObserver, stacksBlock(1, 100))
	b.ObserveStacksBlock(sourceObserver, stacksBlock(2, 101, "0x01", "abcd"))

	block, record, err := w.AwaitTransaction(context.Background(), sub, "0xABCD")
	require.NoError(err)
	require.Equal(uint64(2), block.Height)
	require.Equal("abcd", record.TxID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		block, record, err := w.WaitForTransaction(context.Background(), "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
		if err != nil || block.Height != 3 || record.TxID != "0x02" {
			t.Errorf("unexpected result: %v %v %v", block, record, err)
		}
	}()
	require.Eventually(func() bool {
		return testutil.ToFloat64(m.pendingWaiters) == 1
	}, 5*time.Second, 5*time.Millisecond)
	b.ObserveStacksBlock(sourceObserver, stacksBlock(3, 102, "0x02"))
	<-done
}
