// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildNetworkConfig(t *testing.T) {
	require := require.New(t)

	rootDir := t.TempDir()
	c, err := BuildNetworkConfig(ConfigOptions{
		IsolationKey:   t.Name(),
		RootDir:        rootDir,
		Epochs:         EpochConfig{Epoch21: 120, Pox2Activation: 122},
		BitcoindPath:   "/opt/bitcoind",
		StacksNodePath: "/opt/stacks-node",
		Env:            []string{"RUST_BACKTRACE=1"},
		BitcoindFlags:  FlagsMap{"rpcthreads": 4},
		BlockTime:      250 * time.Millisecond,
	})
	require.NoError(err)
	defer func() {
		require.NoError(c.Release())
	}()

	require.Equal(NetworkIDForKey(t.Name()), c.NetworkID)
	require.Equal(PortsForSlot(c.Slot), c.Ports)
	require.Equal(uint64(120), c.Epochs.Epoch21)
	require.Equal(uint64(DefaultEpoch20Height), c.Epochs.Epoch20)
	require.Equal(250*time.Millisecond, c.Timing.BlockTime)
	require.Equal(DefaultWaitTimeout, c.Timing.WaitTimeout)
	require.Len(c.Accounts, 4)
	require.NotEmpty(c.UUID)
	require.NotEmpty(c.MinerAddress)

	require.Equal("/opt/bitcoind", c.Bitcoind.Path)
	require.Contains(c.Bitcoind.Args, "-rpcthreads=4")
	require.Contains(c.Bitcoind.Args, "-regtest=1")
	require.Contains(c.Bitcoind.Args, "-datadir="+c.Bitcoind.DataDir)
	require.Equal([]string{"RUST_BACKTRACE=1"}, c.StacksNode.Env)
	require.Equal([]string{"start", "--config", c.StacksConfigPath()}, c.StacksNode.Args)
	require.FileExists(c.StacksConfigPath())

	read, err := ReadNetworkConfig(c.Dir)
	require.NoError(err)
	require.Equal(c.NetworkID, read.NetworkID)
	require.Equal(c.Ports, read.Ports)
	require.Equal(c.Timing, read.Timing)
	require.Equal(c.Accounts[0].Address, read.Accounts[0].Address)
	require.NoError(read.Release())

	// The namespace stays reserved until released
	_, err = BuildNetworkConfig(ConfigOptions{IsolationKey: t.Name(), RootDir: rootDir})
	require.ErrorIs(err, errNamespaceHeld)
}

func TestBuildNetworkConfigInvalid(t *testing.T) {
	tests := []struct {
		name  string
		opts  ConfigOptions
		field string
	}{
		{
			name:  "epochs out of order",
			opts:  ConfigOptions{Epochs: EpochConfig{Epoch20: 100, Epoch205: 90}},
			field: "epoch_2_05",
		},
		{
			name:  "miner key",
			opts:  ConfigOptions{MinerKey: "not-hex"},
			field: "miner_key",
		},
		{
			name:  "account key",
			opts:  ConfigOptions{Accounts: []*Account{{Name: "broken", PrivateKey: "00"}}},
			field: "accounts",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			rootDir := filepath.Join(t.TempDir(), "root")
			test.opts.RootDir = rootDir
			test.opts.IsolationKey = t.Name()

			_, err := BuildNetworkConfig(test.opts)
			var configErr *ConfigError
			require.ErrorAs(err, &configErr)
			require.Equal(test.field, configErr.Field)

			// Nothing is written before validation passes
			_, err = os.Stat(rootDir)
			require.ErrorIs(err, os.ErrNotExist)
		})
	}
}
