// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import "time"

const (
	// Constants defining the names of shell variables whose value can
	// configure network orchestration.
	RootDirEnvName        = "DEVNET_ROOT_DIR"
	NetworkDirEnvName     = "DEVNET_NETWORK_DIR"
	BitcoindPathEnvName   = "DEVNET_BITCOIND_PATH"
	StacksNodePathEnvName = "DEVNET_STACKS_NODE_PATH"

	DefaultWaitTimeout       = 2 * time.Minute
	DefaultStartTimeout      = time.Minute
	DefaultStopTimeout       = 10 * time.Second
	DefaultBlockTime         = time.Second
	DefaultHeartbeatInterval = 500 * time.Millisecond
	DefaultRequestTimeout    = 30 * time.Second

	// Consecutive failed heartbeats tolerated before the network is
	// considered lost.
	DefaultHeartbeatFailureThreshold = 1

	DefaultBitcoindUser     = "devnet"
	DefaultBitcoindPassword = "devnet"
	DefaultWalletName       = "devnet"

	// Default activation heights, matching the devnet defaults of the
	// Clarinet toolchain.
	DefaultEpoch20Height        = 100
	DefaultEpoch205Height       = 102
	DefaultEpoch21Height        = 106
	DefaultPox2ActivationHeight = 109

	DefaultDeployFee = 10_000
	DefaultCallFee   = 2_000

	basePort     = 20000
	portSlots    = 4000
	portsPerSlot = 10

	bitcoindRPCPortOffset   = 0
	bitcoindP2PPortOffset   = 1
	stacksRPCPortOffset     = 2
	stacksP2PPortOffset     = 3
	observerPortOffset      = 4
	reservedPortsPerNetwork = 5

	readinessCheckInterval = 100 * time.Millisecond

	networkConfigFilename = "network.json"
	stacksConfigFilename  = "Config.toml"
	eventsDBDirname       = "events"
	locksDirname          = "locks"
)

// DefaultBitcoindFlags are the bitcoind settings a devnet needs. Ports,
// credentials and the data dir are set per network.
func DefaultBitcoindFlags() FlagsMap {
	return FlagsMap{
		"regtest":        1,
		"server":         1,
		"txindex":        1,
		"listen":         1,
		"discover":       0,
		"dnsseed":        0,
		"listenonion":    0,
		"fallbackfee":    "0.00001",
		"rpcbind":        "127.0.0.1",
		"rpcallowip":     "127.0.0.1",
		"printtoconsole": 1,
		"rpcworkqueue":   100,
		"rpcthreads":     16,
		"maxconnections": 8,
		"persistmempool": 0,
	}
}
