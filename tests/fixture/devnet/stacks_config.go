// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/stacks-network/stacks-devnet/utils/perms"
)

// stacksNodeConfig is the subset of the stacks-node Config.toml a devnet
// sets.
type stacksNodeConfig struct {
	Node           stacksNodeSection     `toml:"node"`
	Burnchain      burnchainSection      `toml:"burnchain"`
	UstxBalance    []ustxBalance         `toml:"ustx_balance"`
	EventsObserver []eventObserverConfig `toml:"events_observer"`
}

type stacksNodeSection struct {
	WorkingDir             string `toml:"working_dir"`
	RPCBind                string `toml:"rpc_bind"`
	P2PBind                string `toml:"p2p_bind"`
	Miner                  bool   `toml:"miner"`
	Seed                   string `toml:"seed"`
	LocalPeerSeed          string `toml:"local_peer_seed"`
	WaitTimeForMicroblocks uint64 `toml:"wait_time_for_microblocks"`
}

type burnchainSection struct {
	Chain          string       `toml:"chain"`
	Mode           string       `toml:"mode"`
	PeerHost       string       `toml:"peer_host"`
	Username       string       `toml:"username"`
	Password       string       `toml:"password"`
	RPCPort        uint16       `toml:"rpc_port"`
	PeerPort       uint16       `toml:"peer_port"`
	Pox2Activation uint64       `toml:"pox_2_activation,omitempty"`
	Epochs         []epochEntry `toml:"epochs"`
}

type epochEntry struct {
	EpochName   string `toml:"epoch_name"`
	StartHeight uint64 `toml:"start_height"`
}

type ustxBalance struct {
	Address string `toml:"address"`
	Amount  uint64 `toml:"amount"`
}

type eventObserverConfig struct {
	Endpoint   string   `toml:"endpoint"`
	EventsKeys []string `toml:"events_keys"`
}

func newStacksNodeConfig(c *NetworkConfig) *stacksNodeConfig {
	cfg := &stacksNodeConfig{
		Node: stacksNodeSection{
			WorkingDir:    c.StacksNode.DataDir,
			RPCBind:       "127.0.0.1:" + strconv.Itoa(int(c.Ports.StacksRPC)),
			P2PBind:       "127.0.0.1:" + strconv.Itoa(int(c.Ports.StacksP2P)),
			Miner:         true,
			Seed:          c.MinerKey,
			LocalPeerSeed: c.MinerKey,
		},
		Burnchain: burnchainSection{
			Chain:          "bitcoin",
			Mode:           "krypton",
			PeerHost:       "127.0.0.1",
			Username:       DefaultBitcoindUser,
			Password:       DefaultBitcoindPassword,
			RPCPort:        c.Ports.BitcoindRPC,
			PeerPort:       c.Ports.BitcoindP2P,
			Pox2Activation: c.Epochs.Pox2Activation,
		},
		EventsObserver: []eventObserverConfig{{
			Endpoint:   c.ObserverAddress(),
			EventsKeys: []string{"*"},
		}},
	}
	for _, eh := range c.Epochs.Scheduled() {
		cfg.Burnchain.Epochs = append(cfg.Burnchain.Epochs, epochEntry{
			EpochName:   string(eh.Epoch),
			StartHeight: eh.Height,
		})
	}
	for _, account := range c.Accounts {
		cfg.UstxBalance = append(cfg.UstxBalance, ustxBalance{
			Address: account.Address,
			Amount:  account.Balance,
		})
	}
	return cfg
}

// StacksConfigPath is the path of the rendered stacks-node Config.toml.
func (c *NetworkConfig) StacksConfigPath() string {
	return filepath.Join(c.Dir, stacksConfigFilename)
}

func (c *NetworkConfig) writeStacksConfig() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(newStacksNodeConfig(c)); err != nil {
		return fmt.Errorf("failed to encode stacks-node config: %w", err)
	}
	if err := os.WriteFile(c.StacksConfigPath(), buf.Bytes(), perms.ReadWrite); err != nil {
		return fmt.Errorf("failed to write stacks-node config: %w", err)
	}
	return nil
}
