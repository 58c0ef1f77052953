// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/logging"
)

var (
	errAlreadyStarted = errors.New("network already started")
	errUnknownAccount = errors.New("unknown account")
)

type networkOptions struct {
	log         logging.Logger
	w           io.Writer
	builder     TxBuilder
	broadcaster Broadcaster
	registry    *prometheus.Registry
}

// NetworkOption configures a Network.
type NetworkOption func(*networkOptions)

// WithLogger sets the structured logger. Defaults to discarding.
func WithLogger(log logging.Logger) NetworkOption {
	return func(o *networkOptions) {
		o.log = log
	}
}

// WithOutput sets where human-readable progress is written. Defaults to
// discarding.
func WithOutput(w io.Writer) NetworkOption {
	return func(o *networkOptions) {
		o.w = w
	}
}

// WithTxBuilder replaces the in-process transaction builder.
func WithTxBuilder(builder TxBuilder) NetworkOption {
	return func(o *networkOptions) {
		o.builder = builder
	}
}

// WithBroadcaster replaces broadcasting to the stacks-node API.
func WithBroadcaster(broadcaster Broadcaster) NetworkOption {
	return func(o *networkOptions) {
		o.broadcaster = broadcaster
	}
}

// WithRegistry sets the registry metrics are registered with. Defaults to
// a registry private to the network.
func WithRegistry(registry *prometheus.Registry) NetworkOption {
	return func(o *networkOptions) {
		o.registry = registry
	}
}

// Network is a running devnet: bitcoind, stacks-node, and the machinery
// observing them. The synchronization API and the contract helper are
// promoted from the embedded ChainWatcher and Contracts.
type Network struct {
	*ChainWatcher
	*Contracts

	Config *NetworkConfig

	log      logging.Logger
	w        io.Writer
	registry *prometheus.Registry

	journal    *Journal
	bus        *Bus
	supervisor *Supervisor
	observer   *observer
	miner      *miner
	bitcoind   *BitcoindClient
	stacks     *StacksClient

	lock      sync.Mutex
	started   bool
	heartbeat *heartbeat

	terminateOnce sync.Once
	terminateErr  error
	terminated    chan struct{}
}

// NewNetwork prepares a network for [config] without launching anything.
// The network owns the namespace reserved by [config] from now on.
func NewNetwork(config *NetworkConfig, opts ...NetworkOption) (*Network, error) {
	o := &networkOptions{
		log:     logging.NoLog{},
		w:       io.Discard,
		builder: stacks.Builder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	log := o.log.With(zap.Uint32("networkID", config.NetworkID))

	m, err := NewMetrics(o.registry)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to register metrics: %w", err), config.Release())
	}
	journal, err := OpenJournal(config.EventsDBPath())
	if err != nil {
		return nil, errors.Join(err, config.Release())
	}

	bus := NewBus(log, config.Epochs, journal, m)
	stacksClient := NewStacksClient(config.StacksURL())
	bitcoindClient := NewBitcoindClient(config.BitcoindURL(), DefaultBitcoindUser, DefaultBitcoindPassword)
	broadcaster := o.broadcaster
	if broadcaster == nil {
		broadcaster = stacksClient
	}
	watcher := NewChainWatcher(bus, config.Epochs, config.Timing.WaitTimeout)

	return &Network{
		ChainWatcher: watcher,
		Contracts:    NewContracts(log, watcher, stacksClient, o.builder, broadcaster),
		Config:       config,
		log:          log,
		w:            o.w,
		registry:     o.registry,
		journal:      journal,
		bus:          bus,
		supervisor: NewSupervisor(log, config.Dir, config.Timing.StopTimeout, m, func(name string, err error) {
			bus.Fail(err)
		}),
		observer:   newObserver(log, bus),
		miner:      newMiner(log, bus, bitcoindClient, config.MinerAddress),
		bitcoind:   bitcoindClient,
		stacks:     stacksClient,
		terminated: make(chan struct{}),
	}, nil
}

// StartNetwork builds, creates and starts a network in one call. On
// failure nothing is left running and the namespace is released.
func StartNetwork(ctx context.Context, opts ConfigOptions, netOpts ...NetworkOption) (*Network, error) {
	config, err := BuildNetworkConfig(opts)
	if err != nil {
		return nil, err
	}
	network, err := NewNetwork(config, netOpts...)
	if err != nil {
		return nil, err
	}
	if err := network.Start(ctx); err != nil {
		return nil, err
	}
	return network, nil
}

// Start launches bitcoind, mines up to the block before epoch 2.0,
// launches stacks-node and begins block production. Any failure
// terminates the network before returning.
func (n *Network) Start(ctx context.Context) (err error) {
	n.lock.Lock()
	if n.started {
		n.lock.Unlock()
		return errAlreadyStarted
	}
	n.started = true
	n.lock.Unlock()

	defer func() {
		if err != nil {
			n.log.Error("network failed to start", zap.Error(err))
			if terminateErr := n.Terminate(context.WithoutCancel(ctx)); terminateErr != nil {
				err = errors.Join(err, terminateErr)
			}
		}
	}()

	if _, err := fmt.Fprintf(n.w, "Starting network %s (network id: %d, UUID: %s)\n", n.Config.Dir, n.Config.NetworkID, n.Config.UUID); err != nil {
		return err
	}

	bitcoind := n.Config.Bitcoind
	err = n.supervisor.Start(ctx, ProcessSpec{
		Name:         string(RoleBitcoind),
		Path:         bitcoind.Path,
		Args:         bitcoind.Args,
		Env:          bitcoind.Env,
		Dir:          bitcoind.DataDir,
		Ready:        n.bitcoind.isReady,
		StartTimeout: n.Config.Timing.StartTimeout,
	})
	if err != nil {
		return err
	}
	if err := n.bitcoind.EnsureWallet(ctx, DefaultWalletName); err != nil {
		return err
	}
	// Watching the miner address is a convenience for inspecting balances
	if err := n.bitcoind.ImportAddress(ctx, n.Config.MinerAddress); err != nil {
		n.log.Warn("failed to watch miner address",
			zap.String("address", n.Config.MinerAddress),
			zap.Error(err),
		)
	}
	if err := n.miner.MineTo(ctx, n.Config.Epochs.Epoch20-1); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(n.w, "Mined bitcoin blocks up to height %d\n", n.bus.BurnHeight()); err != nil {
		return err
	}

	if err := n.observer.Start(n.Config.ObserverAddress()); err != nil {
		return err
	}

	stacksNode := n.Config.StacksNode
	err = n.supervisor.Start(ctx, ProcessSpec{
		Name:         string(RoleStacksNode),
		Path:         stacksNode.Path,
		Args:         stacksNode.Args,
		Env:          stacksNode.Env,
		Dir:          stacksNode.DataDir,
		Ready:        n.stacks.isReady,
		StartTimeout: n.Config.Timing.StartTimeout,
	})
	if err != nil {
		return err
	}

	n.lock.Lock()
	n.heartbeat = startHeartbeat(
		n.log,
		n.bus,
		n.stacks.GetInfo,
		n.Config.Timing.HeartbeatInterval,
		n.Config.Timing.HeartbeatFailureThreshold,
	)
	n.lock.Unlock()
	if !n.Config.Timing.ManualMining {
		n.miner.start(n.Config.Timing.BlockTime)
	}
	go n.terminateOnFailure()

	_, err = fmt.Fprintf(n.w, "Started network %s\n  bitcoind: %s\n  stacks-node: %s\n", n.Config.Dir, n.Config.BitcoindURL(), n.Config.StacksURL())
	return err
}

// Terminate resolves every pending wait with a *ConnectionLostError,
// stops every process and releases the namespace. Safe to call more than
// once, including after a failed Start; later calls return the result of
// the first.
func (n *Network) Terminate(ctx context.Context) error {
	n.terminateOnce.Do(func() {
		n.log.Info("terminating network")
		n.bus.Close()

		var errs []error
		n.miner.stop()
		n.lock.Lock()
		if n.heartbeat != nil {
			n.heartbeat.Stop()
		}
		n.lock.Unlock()
		if err := n.observer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := n.supervisor.Terminate(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := n.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event journal: %w", err))
		}
		if err := n.Config.Release(); err != nil {
			errs = append(errs, err)
		}
		n.terminateErr = errors.Join(errs...)
		if n.terminateErr == nil {
			_, _ = fmt.Fprintf(n.w, "Terminated network %s\n", n.Config.Dir)
		}
		close(n.terminated)
	})
	return n.terminateErr
}

// Failed is closed once the connection to the network is lost. The
// network then terminates itself.
func (n *Network) Failed() <-chan struct{} {
	return n.bus.Failed()
}

// Err returns the failure that degraded the network, or nil.
func (n *Network) Err() error {
	return n.bus.Err()
}

// Terminated is closed once Terminate has completed.
func (n *Network) Terminated() <-chan struct{} {
	return n.terminated
}

// terminateOnFailure tears the network down when the connection to it is
// lost, so no process outlives a degraded network.
func (n *Network) terminateOnFailure() {
	select {
	case <-n.bus.Failed():
	case <-n.terminated:
		return
	}
	n.log.Error("terminating network after losing connection",
		zap.Error(n.bus.Err()),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 2*n.Config.Timing.StopTimeout)
	defer cancel()
	if err := n.Terminate(ctx); err != nil {
		n.log.Warn("failed to terminate network", zap.Error(err))
	}
}

// MineBitcoinBlocks produces [count] bitcoin blocks immediately and
// returns the new burn height.
func (n *Network) MineBitcoinBlocks(ctx context.Context, count uint64) (uint64, error) {
	return n.miner.Mine(ctx, count)
}

// Account returns the pre-funded account named [name].
func (n *Network) Account(name string) (*Account, error) {
	for _, account := range n.Config.Accounts {
		if account.Name == name {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errUnknownAccount, name)
}

// GetAccount returns the balance and next nonce of [principal].
func (n *Network) GetAccount(ctx context.Context, principal string) (*AccountInfo, error) {
	return n.stacks.GetAccount(ctx, principal)
}

// GetPoxInfo returns the PoX state reported by stacks-node.
func (n *Network) GetPoxInfo(ctx context.Context) (*PoxInfo, error) {
	return n.stacks.GetPoxInfo(ctx)
}

// Registry is the registry holding the metrics of the network.
func (n *Network) Registry() *prometheus.Registry {
	return n.registry
}

// Journal returns every event published so far.
func (n *Network) Journal() ([]JournalEntry, error) {
	return n.journal.Entries()
}

// Output returns the retained output tail of a node process.
func (n *Network) Output(role NodeRole) string {
	return n.supervisor.Output(string(role))
}
