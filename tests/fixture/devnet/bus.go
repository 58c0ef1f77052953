// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/stacks-network/stacks-devnet/utils/logging"
)

// Predicate selects the events a waiter resolves on.
type Predicate func(ChainEvent) bool

// CatchUp inspects the chain state at registration and returns an event
// that already satisfies a waiter, if any.
type CatchUp func(ChainState) (ChainEvent, bool)

// ChainState is the latest state known to the bus.
type ChainState struct {
	Epochs EpochConfig
	// HasBurn is false until the first bitcoin block is observed.
	HasBurn    bool
	BurnHeight uint64
	// LastStacksBlock is nil until the first stacks block is observed.
	LastStacksBlock *StacksBlock
}

type waitResult struct {
	event ChainEvent
	err   error
}

type waiter struct {
	what    string
	match   Predicate
	catchUp CatchUp
	// Buffered so the loop never blocks on delivery
	result chan waitResult
}

type cancelRequest struct {
	w       *waiter
	outcome string
}

type observation struct {
	source string
	burn   *BurnBlock
	stacks *StacksBlock
}

// Bus classifies block observations into chain events and resolves
// waiters. Registration, cancellation, observations, failure and shutdown
// are all serialized through a single loop goroutine.
type Bus struct {
	log     logging.Logger
	epochs  EpochConfig
	journal *Journal
	metrics *Metrics

	register chan *waiter
	cancel   chan cancelRequest
	observe  chan observation
	fail     chan error

	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	// Closed by the loop when the bus degrades
	failed chan struct{}

	burnHeight   atomic.Uint64
	stacksHeight atomic.Uint64
	epoch        atomic.Value // Epoch
	degraded     atomic.Bool

	// Owned by the loop. failErr may be read once done is closed.
	waiters map[*waiter]struct{}
	state   ChainState
	failErr error
}

// NewBus starts the loop of a bus classifying against [epochs]. [journal]
// may be nil.
func NewBus(log logging.Logger, epochs EpochConfig, journal *Journal, metrics *Metrics) *Bus {
	b := &Bus{
		log:      log,
		epochs:   epochs,
		journal:  journal,
		metrics:  metrics,
		register: make(chan *waiter),
		cancel:   make(chan cancelRequest),
		observe:  make(chan observation),
		fail:     make(chan error),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		failed:   make(chan struct{}),
		waiters:  make(map[*waiter]struct{}),
		state:    ChainState{Epochs: epochs},
	}
	b.epoch.Store(Epoch10)
	go b.loop()
	return b
}

// ObserveBurnBlock reports a bitcoin block seen by [source].
func (b *Bus) ObserveBurnBlock(source string, blk BurnBlock) {
	b.send(observation{source: source, burn: &blk})
}

// ObserveStacksBlock reports a stacks block seen by [source].
func (b *Bus) ObserveStacksBlock(source string, blk StacksBlock) {
	b.send(observation{source: source, stacks: &blk})
}

func (b *Bus) send(obs observation) {
	select {
	case b.observe <- obs:
	case <-b.done:
	}
}

// Fail moves the bus to the degraded state: every pending and future
// waiter resolves with a *ConnectionLostError wrapping [err].
func (b *Bus) Fail(err error) {
	select {
	case b.fail <- err:
	case <-b.done:
	}
}

// Failed is closed once the bus degrades.
func (b *Bus) Failed() <-chan struct{} {
	return b.failed
}

// Err returns the failure that degraded the bus, or nil.
func (b *Bus) Err() error {
	select {
	case <-b.failed:
		return b.failErr
	default:
		return nil
	}
}

// Close resolves every pending waiter with a *ConnectionLostError and
// stops the loop. Safe to call more than once.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.closeCh)
	})
	<-b.done
}

// Degraded reports whether the connection to the network was lost.
func (b *Bus) Degraded() bool {
	return b.degraded.Load()
}

// BurnHeight is the height of the last bitcoin block published.
func (b *Bus) BurnHeight() uint64 {
	return b.burnHeight.Load()
}

// StacksHeight is the height of the last stacks block published.
func (b *Bus) StacksHeight() uint64 {
	return b.stacksHeight.Load()
}

// CurrentEpoch is the epoch active at BurnHeight.
func (b *Bus) CurrentEpoch() Epoch {
	return b.epoch.Load().(Epoch)
}

// Subscribe registers a waiter. Once Subscribe returns, no event published
// afterwards can be missed. [catchUp] may be nil.
func (b *Bus) Subscribe(what string, match Predicate, catchUp CatchUp) (*Subscription, error) {
	w := &waiter{
		what:    what,
		match:   match,
		catchUp: catchUp,
		result:  make(chan waitResult, 1),
	}
	select {
	case b.register <- w:
	case <-b.done:
		return nil, b.closedErr()
	}
	return &Subscription{
		bus:     b,
		w:       w,
		created: time.Now(),
	}, nil
}

// WaitFor subscribes and waits in one call.
func (b *Bus) WaitFor(ctx context.Context, what string, match Predicate, catchUp CatchUp) (ChainEvent, error) {
	sub, err := b.Subscribe(what, match, catchUp)
	if err != nil {
		return ChainEvent{}, err
	}
	return sub.Wait(ctx)
}

func (b *Bus) closedErr() error {
	if b.failErr != nil {
		return &ConnectionLostError{Cause: b.failErr}
	}
	return &ConnectionLostError{Cause: errBusClosed}
}

// Subscription is a registered waiter.
type Subscription struct {
	bus     *Bus
	w       *waiter
	created time.Time
}

// Wait blocks until the waiter resolves. When [ctx] expires first, the
// waiter is removed and a *TimeoutError is returned; when [ctx] is
// cancelled, ctx.Err() is returned.
func (s *Subscription) Wait(ctx context.Context) (ChainEvent, error) {
	select {
	case r := <-s.w.result:
		return r.event, r.err
	case <-ctx.Done():
	}

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	outcome := outcomeCancelled
	if timedOut {
		outcome = outcomeTimeout
	}
	s.cancel(outcome)

	// The waiter may have resolved before the loop saw the cancellation.
	select {
	case r := <-s.w.result:
		return r.event, r.err
	default:
	}

	if !timedOut {
		return ChainEvent{}, ctx.Err()
	}
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = deadline.Sub(s.created).Round(time.Millisecond)
	}
	return ChainEvent{}, &TimeoutError{
		Waiting: s.w.what,
		Timeout: timeout,
	}
}

// Cancel removes the waiter. A result already delivered is discarded.
func (s *Subscription) Cancel() {
	s.cancel(outcomeCancelled)
}

func (s *Subscription) cancel(outcome string) {
	select {
	case s.bus.cancel <- cancelRequest{w: s.w, outcome: outcome}:
	case <-s.bus.done:
	}
}

func (b *Bus) loop() {
	defer close(b.done)

	for {
		select {
		case w := <-b.register:
			b.handleRegister(w)
		case req := <-b.cancel:
			if _, ok := b.waiters[req.w]; ok {
				delete(b.waiters, req.w)
				b.metrics.pendingWaiters.Dec()
				b.metrics.waiterOutcomes.WithLabelValues(req.outcome).Inc()
			}
		case obs := <-b.observe:
			b.handleObservation(obs)
		case err := <-b.fail:
			b.handleFailure(err)
		case <-b.closeCh:
			cause := b.failErr
			if cause == nil {
				cause = errBusClosed
			}
			b.resolveAll(cause)
			b.log.Debug("event bus closed")
			return
		}
	}
}

func (b *Bus) handleRegister(w *waiter) {
	if b.failErr != nil {
		b.resolve(w, waitResult{err: &ConnectionLostError{Cause: b.failErr}}, outcomeConnectionLost)
		return
	}
	if w.catchUp != nil {
		if event, ok := w.catchUp(b.state); ok {
			b.resolve(w, waitResult{event: event}, outcomeMatched)
			return
		}
	}
	b.waiters[w] = struct{}{}
	b.metrics.pendingWaiters.Inc()
}

func (b *Bus) resolve(w *waiter, r waitResult, outcome string) {
	w.result <- r
	b.metrics.waiterOutcomes.WithLabelValues(outcome).Inc()
}

func (b *Bus) resolveAll(cause error) {
	for w := range b.waiters {
		b.resolve(w, waitResult{err: &ConnectionLostError{Cause: cause}}, outcomeConnectionLost)
		delete(b.waiters, w)
	}
	b.metrics.pendingWaiters.Set(0)
}

func (b *Bus) handleFailure(err error) {
	if b.failErr != nil {
		return
	}
	if err == nil {
		err = ErrConnectionLost
	}
	b.failErr = err
	close(b.failed)
	b.degraded.Store(true)
	b.metrics.degraded.Set(1)
	b.log.Error("connection to the network lost",
		zap.Int("pendingWaiters", len(b.waiters)),
		zap.Error(err),
	)
	b.resolveAll(err)
}

func (b *Bus) handleObservation(obs observation) {
	if b.failErr != nil {
		return
	}
	switch {
	case obs.burn != nil:
		b.observeBurn(obs.source, *obs.burn)
	case obs.stacks != nil:
		b.observeStacks(obs.source, obs.stacks)
	}
}

func (b *Bus) observeBurn(source string, blk BurnBlock) {
	if b.state.HasBurn && blk.Height <= b.state.BurnHeight {
		b.metrics.observationsDropped.WithLabelValues(source).Inc()
		return
	}
	prev := b.state.BurnHeight
	b.state.HasBurn = true
	b.state.BurnHeight = blk.Height

	b.burnHeight.Store(blk.Height)
	b.metrics.burnHeight.Set(float64(blk.Height))
	epoch := b.epochs.EpochAt(blk.Height)
	b.epoch.Store(epoch)

	b.publish(ChainEvent{
		Kind:       KindNewBitcoinBlock,
		BurnHeight: blk.Height,
		Epoch:      epoch,
		BurnBlock:  &blk,
	})
	for _, eh := range b.epochs.Scheduled() {
		if eh.Height > prev && eh.Height <= blk.Height {
			b.log.Info("epoch boundary crossed",
				zap.String("epoch", string(eh.Epoch)),
				zap.Uint64("activationHeight", eh.Height),
				zap.Uint64("burnHeight", blk.Height),
			)
			b.publish(ChainEvent{
				Kind:       KindEpochBoundaryCrossed,
				BurnHeight: blk.Height,
				Epoch:      eh.Epoch,
			})
		}
	}
}

func (b *Bus) observeStacks(source string, blk *StacksBlock) {
	if last := b.state.LastStacksBlock; last != nil && blk.Height <= last.Height {
		if blk.Height == last.Height && blk.Hash == last.Hash {
			b.metrics.observationsDropped.WithLabelValues(source).Inc()
			return
		}
		// A different block at a height already published belongs to a
		// fork. Its transactions are not delivered to waiters.
		b.metrics.staleStacksBlocks.Inc()
		b.log.Warn("dropping stacks block from a fork",
			zap.String("source", source),
			zap.Uint64("height", blk.Height),
			zap.String("hash", blk.Hash),
			zap.Uint64("tipHeight", last.Height),
			zap.String("tipHash", last.Hash),
			zap.Int("numTxs", len(blk.Transactions)),
		)
		return
	}
	// The burn block a stacks block is anchored to was observed, even if
	// its own notification has not arrived yet.
	if !b.state.HasBurn || blk.BurnHeight > b.state.BurnHeight {
		b.observeBurn(source, BurnBlock{Height: blk.BurnHeight, Hash: blk.BurnHash})
	}
	b.state.LastStacksBlock = blk

	b.stacksHeight.Store(blk.Height)
	b.metrics.stacksHeight.Set(float64(blk.Height))
	b.publish(ChainEvent{
		Kind:        KindNewStacksBlock,
		BurnHeight:  blk.BurnHeight,
		Epoch:       b.epochs.EpochAt(blk.BurnHeight),
		StacksBlock: blk,
	})
}

func (b *Bus) publish(event ChainEvent) {
	b.metrics.eventsPublished.WithLabelValues(string(event.Kind)).Inc()
	if b.journal != nil {
		if err := b.journal.Append(event); err != nil {
			b.log.Warn("failed to journal event",
				zap.Stringer("event", event),
				zap.Error(err),
			)
		}
	}
	b.log.Debug("publishing event",
		zap.Stringer("event", event),
		zap.Int("waiters", len(b.waiters)),
	)
	for w := range b.waiters {
		if w.match(event) {
			delete(b.waiters, w)
			b.metrics.pendingWaiters.Dec()
			b.resolve(w, waitResult{event: event}, outcomeMatched)
		}
	}
}
