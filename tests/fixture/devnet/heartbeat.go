// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stacks-network/stacks-devnet/utils/logging"
)

const heartbeatRequestTimeout = 5 * time.Second

// heartbeat polls the stacks-node API. Reachable polls feed the burn
// height to the bus; [threshold] consecutive failures fail the bus.
type heartbeat struct {
	log       logging.Logger
	bus       *Bus
	getInfo   func(context.Context) (*NodeInfo, error)
	interval  time.Duration
	threshold int

	cancel context.CancelFunc
	done   chan struct{}
}

func startHeartbeat(
	log logging.Logger,
	bus *Bus,
	getInfo func(context.Context) (*NodeInfo, error),
	interval time.Duration,
	threshold int,
) *heartbeat {
	ctx, cancel := context.WithCancel(context.Background())
	h := &heartbeat{
		log:       log,
		bus:       bus,
		getInfo:   getInfo,
		interval:  interval,
		threshold: threshold,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go h.run(ctx)
	return h
}

func (h *heartbeat) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := h.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			failures = 0
			continue
		}

		failures++
		h.log.Warn("heartbeat failed",
			zap.Int("consecutiveFailures", failures),
			zap.Int("threshold", h.threshold),
			zap.Error(err),
		)
		if failures >= h.threshold {
			h.bus.Fail(fmt.Errorf("stacks-node unreachable after %d attempts: %w", failures, err))
			return
		}
	}
}

func (h *heartbeat) poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, heartbeatRequestTimeout)
	defer cancel()

	info, err := h.getInfo(ctx)
	if err != nil {
		return err
	}
	if info.BurnBlockHeight > 0 {
		h.bus.ObserveBurnBlock(sourceHeartbeat, BurnBlock{Height: info.BurnBlockHeight})
	}
	return nil
}

// Stop ends polling and waits for the poller to exit.
func (h *heartbeat) Stop() {
	h.cancel()
	<-h.done
}
