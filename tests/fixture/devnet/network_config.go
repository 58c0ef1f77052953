// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
	"github.com/stacks-network/stacks-devnet/utils/formatting"
	"github.com/stacks-network/stacks-devnet/utils/perms"
)

// NodeRole distinguishes the two processes of a network.
type NodeRole string

const (
	RoleBitcoind   NodeRole = "bitcoind"
	RoleStacksNode NodeRole = "stacks-node"

	defaultBitcoindCmd   = "bitcoind"
	defaultStacksNodeCmd = "stacks-node"
)

// ConfigOptions are the inputs to BuildNetworkConfig. Zero values select
// defaults.
type ConfigOptions struct {
	// IsolationKey identifies the test run. Defaults to a random UUID.
	IsolationKey string
	// RootDir holds network dirs and slot locks. Defaults to
	// $DEVNET_ROOT_DIR or ~/.stacks-devnet/networks.
	RootDir string
	// Epochs may be partial.
	Epochs EpochConfig

	// Default to $DEVNET_BITCOIND_PATH and $DEVNET_STACKS_NODE_PATH, then
	// to the command name resolved through PATH.
	BitcoindPath   string
	StacksNodePath string
	// Env is appended to the environment of both processes.
	Env []string

	// Accounts funded at genesis. Defaults to DefaultAccounts.
	Accounts []*Account
	// MinerKey is the hex key of the stacks miner. Defaults to the
	// deployer key.
	MinerKey string

	BitcoindFlags FlagsMap

	// BlockTime is the interval of automatic bitcoin block production.
	BlockTime time.Duration
	// ManualMining disables automatic block production.
	ManualMining bool

	WaitTimeout               time.Duration
	StartTimeout              time.Duration
	StopTimeout               time.Duration
	HeartbeatInterval         time.Duration
	HeartbeatFailureThreshold int
}

// NodeConfig describes one process of the network.
type NodeConfig struct {
	Role    NodeRole `json:"role"`
	Path    string   `json:"path"`
	Args    []string `json:"args"`
	Env     []string `json:"env,omitempty"`
	DataDir string   `json:"dataDir"`
	RPCPort uint16   `json:"rpcPort"`
	P2PPort uint16   `json:"p2pPort"`
}

// Timing collects the intervals and bounds of a network.
type Timing struct {
	BlockTime                 time.Duration `json:"blockTime"`
	ManualMining              bool          `json:"manualMining,omitempty"`
	WaitTimeout               time.Duration `json:"waitTimeout"`
	StartTimeout              time.Duration `json:"startTimeout"`
	StopTimeout               time.Duration `json:"stopTimeout"`
	HeartbeatInterval         time.Duration `json:"heartbeatInterval"`
	HeartbeatFailureThreshold int           `json:"heartbeatFailureThreshold"`
}

// NetworkConfig is the validated topology of a network. It is not modified
// after BuildNetworkConfig returns.
type NetworkConfig struct {
	IsolationKey string `json:"isolationKey"`
	NetworkID    uint32 `json:"networkID"`
	UUID         string `json:"uuid"`

	// Path where the network configuration and data are stored
	Dir string `json:"-"`

	Epochs EpochConfig `json:"epochs"`
	Slot   uint32      `json:"slot"`
	Ports  Ports       `json:"ports"`

	Bitcoind   NodeConfig `json:"bitcoind"`
	StacksNode NodeConfig `json:"stacksNode"`

	Accounts []*Account `json:"accounts"`
	MinerKey string     `json:"minerKey"`
	// Bitcoin address that receives the coinbase of every mined block
	MinerAddress string `json:"minerAddress"`

	Timing Timing `json:"timing"`

	ns *namespace
}

// BuildNetworkConfig validates [opts], reserves a namespace and writes the
// network dir. Every validation failure is a *ConfigError and happens
// before anything is written.
func BuildNetworkConfig(opts ConfigOptions) (*NetworkConfig, error) {
	epochs := opts.Epochs.WithDefaults()
	if err := epochs.Validate(); err != nil {
		return nil, err
	}

	minerKeyHex := opts.MinerKey
	if len(minerKeyHex) == 0 {
		minerKeyHex = DeployerKeyHex
	}
	minerKey, err := secp256k1.ParsePrivateKeyHex(minerKeyHex)
	if err != nil {
		return nil, &ConfigError{Field: "miner_key", Reason: "invalid key", Err: err}
	}

	accounts := opts.Accounts
	if len(accounts) == 0 {
		accounts = DefaultAccounts()
	}
	for _, account := range accounts {
		if _, err := account.Key(); err != nil {
			return nil, &ConfigError{Field: "accounts", Reason: "invalid account", Err: err}
		}
	}

	isolationKey := opts.IsolationKey
	if len(isolationKey) == 0 {
		isolationKey = uuid.NewString()
	}

	rootDir := opts.RootDir
	if len(rootDir) == 0 {
		rootDir, err = getDefaultRootNetworkDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(rootDir, perms.ReadWriteExecute); err != nil {
		return nil, fmt.Errorf("failed to create root network dir: %w", err)
	}

	networkID := NetworkIDForKey(isolationKey)
	ns, err := reserveNamespace(rootDir, networkID)
	if err != nil {
		return nil, err
	}

	c := &NetworkConfig{
		IsolationKey: isolationKey,
		NetworkID:    networkID,
		UUID:         uuid.NewString(),
		Epochs:       epochs,
		Slot:         ns.slot,
		Ports:        ns.ports,
		Accounts:     accounts,
		MinerKey:     minerKeyHex,
		MinerAddress: formatting.BitcoinAddress(minerKey.Address()),
		Timing:       newTiming(opts),
		ns:           ns,
	}
	if err := c.create(rootDir, opts); err != nil {
		return nil, errors.Join(err, c.Release())
	}
	return c, nil
}

func newTiming(opts ConfigOptions) Timing {
	t := Timing{
		BlockTime:                 opts.BlockTime,
		ManualMining:              opts.ManualMining,
		WaitTimeout:               opts.WaitTimeout,
		StartTimeout:              opts.StartTimeout,
		StopTimeout:               opts.StopTimeout,
		HeartbeatInterval:         opts.HeartbeatInterval,
		HeartbeatFailureThreshold: opts.HeartbeatFailureThreshold,
	}
	if t.BlockTime <= 0 {
		t.BlockTime = DefaultBlockTime
	}
	if t.WaitTimeout <= 0 {
		t.WaitTimeout = DefaultWaitTimeout
	}
	if t.StartTimeout <= 0 {
		t.StartTimeout = DefaultStartTimeout
	}
	if t.StopTimeout <= 0 {
		t.StopTimeout = DefaultStopTimeout
	}
	if t.HeartbeatInterval <= 0 {
		t.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if t.HeartbeatFailureThreshold <= 0 {
		t.HeartbeatFailureThreshold = DefaultHeartbeatFailureThreshold
	}
	return t
}

// create lays out the network dir and writes its configuration.
func (c *NetworkConfig) create(rootDir string, opts ConfigOptions) error {
	// A time-based name ensures consistent directory ordering
	dirName := time.Now().Format("20060102-150405.999999") + "-" + strconv.FormatUint(uint64(c.NetworkID), 10)
	networkDir := filepath.Join(rootDir, dirName)
	if err := os.MkdirAll(networkDir, perms.ReadWriteExecute); err != nil {
		return fmt.Errorf("failed to create network dir: %w", err)
	}
	canonicalDir, err := toCanonicalDir(networkDir)
	if err != nil {
		return err
	}
	c.Dir = canonicalDir

	bitcoindDir := filepath.Join(c.Dir, string(RoleBitcoind))
	stacksDir := filepath.Join(c.Dir, string(RoleStacksNode))
	for _, dir := range []string{bitcoindDir, stacksDir} {
		if err := os.MkdirAll(dir, perms.ReadWriteExecute); err != nil {
			return fmt.Errorf("failed to create node dir: %w", err)
		}
	}

	flags := FlagsMap{}
	flags.SetDefaults(opts.BitcoindFlags)
	flags.SetDefaults(DefaultBitcoindFlags())
	flags["datadir"] = bitcoindDir
	flags["rpcport"] = c.Ports.BitcoindRPC
	flags["port"] = c.Ports.BitcoindP2P
	flags["rpcuser"] = DefaultBitcoindUser
	flags["rpcpassword"] = DefaultBitcoindPassword
	args, err := flags.Args()
	if err != nil {
		return &ConfigError{Field: "bitcoind_flags", Reason: "invalid flag value", Err: err}
	}

	c.Bitcoind = NodeConfig{
		Role:    RoleBitcoind,
		Path:    pathWithDefault(opts.BitcoindPath, BitcoindPathEnvName, defaultBitcoindCmd),
		Args:    args,
		Env:     opts.Env,
		DataDir: bitcoindDir,
		RPCPort: c.Ports.BitcoindRPC,
		P2PPort: c.Ports.BitcoindP2P,
	}
	c.StacksNode = NodeConfig{
		Role:    RoleStacksNode,
		Path:    pathWithDefault(opts.StacksNodePath, StacksNodePathEnvName, defaultStacksNodeCmd),
		Args:    []string{"start", "--config", c.StacksConfigPath()},
		Env:     opts.Env,
		DataDir: stacksDir,
		RPCPort: c.Ports.StacksRPC,
		P2PPort: c.Ports.StacksP2P,
	}

	if err := c.writeStacksConfig(); err != nil {
		return err
	}
	return c.Write()
}

// Write persists the configuration as network.json.
func (c *NetworkConfig) Write() error {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal network config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.Dir, networkConfigFilename), bytes, perms.ReadWrite); err != nil {
		return fmt.Errorf("failed to write network config: %w", err)
	}
	return nil
}

// ReadNetworkConfig reads the configuration of the network in [dir]. The
// result holds no reservation.
func ReadNetworkConfig(dir string) (*NetworkConfig, error) {
	canonicalDir, err := toCanonicalDir(dir)
	if err != nil {
		return nil, err
	}
	bytes, err := os.ReadFile(filepath.Join(canonicalDir, networkConfigFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read network config: %w", err)
	}
	c := &NetworkConfig{}
	if err := json.Unmarshal(bytes, c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal network config: %w", err)
	}
	c.Dir = canonicalDir
	return c, nil
}

// Release frees the namespace reserved by BuildNetworkConfig. Safe to call
// more than once.
func (c *NetworkConfig) Release() error {
	if c.ns == nil {
		return nil
	}
	return c.ns.release()
}

func (c *NetworkConfig) BitcoindURL() string {
	return "http://127.0.0.1:" + strconv.Itoa(int(c.Ports.BitcoindRPC))
}

func (c *NetworkConfig) StacksURL() string {
	return "http://127.0.0.1:" + strconv.Itoa(int(c.Ports.StacksRPC))
}

// ObserverAddress is the host:port stacks-node posts events to.
func (c *NetworkConfig) ObserverAddress() string {
	return "127.0.0.1:" + strconv.Itoa(int(c.Ports.Observer))
}

// EventsDBPath is the path of the event journal.
func (c *NetworkConfig) EventsDBPath() string {
	return filepath.Join(c.Dir, eventsDBDirname)
}

// Ensure a real and absolute network dir so that configuration embedding
// the path keeps working regardless of symlinks and working directory.
func toCanonicalDir(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(absDir)
}

func getDefaultRootNetworkDir() (string, error) {
	if dir := os.Getenv(RootDirEnvName); len(dir) > 0 {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".stacks-devnet", "networks"), nil
}

func pathWithDefault(path string, envName string, defaultCmd string) string {
	if len(path) > 0 {
		return path
	}
	if envPath := os.Getenv(envName); len(envPath) > 0 {
		return envPath
	}
	return defaultCmd
}
