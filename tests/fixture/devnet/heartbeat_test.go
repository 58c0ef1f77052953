// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/utils/logging"
)

func TestHeartbeatFeedsBurnHeight(t *testing.T) {
	require := require.New(t)

	bus, _ := newTestBus(t)
	var height atomic.Uint64
	h := startHeartbeat(logging.NoLog{}, bus, func(context.Context) (*NodeInfo, error) {
		return &NodeInfo{BurnBlockHeight: height.Add(1)}, nil
	}, 10*time.Millisecond, 1)
	defer h.Stop()

	require.Eventually(func() bool {
		return bus.BurnHeight() >= 3
	}, 5*time.Second, 10*time.Millisecond)
	require.False(bus.Degraded())
}

func TestHeartbeatFailsBusAfterThreshold(t *testing.T) {
	require := require.New(t)

	bus, _ := newTestBus(t)
	sub, err := bus.Subscribe("never", func(ChainEvent) bool { return false }, nil)
	require.NoError(err)

	var calls atomic.Int32
	unreachable := errors.New("connection refused")
	h := startHeartbeat(logging.NoLog{}, bus, func(context.Context) (*NodeInfo, error) {
		// A success between failures resets the count
		if calls.Add(1) == 2 {
			return &NodeInfo{}, nil
		}
		return nil, unreachable
	}, 10*time.Millisecond, 2)
	defer h.Stop()

	_, err = sub.Wait(context.Background())
	require.ErrorIs(err, ErrConnectionLost)
	require.ErrorIs(err, unreachable)
	require.ErrorContains(err, "after 2 attempts")
	require.GreaterOrEqual(calls.Load(), int32(4))
	require.True(bus.Degraded())
}
