// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet/flags"
)

func TestApplyViper(t *testing.T) {
	require := require.New(t)

	configFile := filepath.Join(t.TempDir(), "devnet.json")
	require.NoError(os.WriteFile(configFile, []byte(`{"block-time": "2s", "epoch-2-1": 120, "isolation-key": "from-file"}`), 0o600))
	t.Setenv("DEVNET_ISOLATION_KEY", "from-env")

	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	networkVars := flags.NewNetworkFlagSetVars(flagSet)
	require.NoError(flagSet.Parse([]string{"--manual-mining"}))

	require.NoError(applyViper(flagSet, configFile))

	require.Equal("from-env", networkVars.IsolationKey)
	require.Equal(2*time.Second, networkVars.BlockTime)
	require.True(networkVars.ManualMining)
	require.Equal(uint64(120), networkVars.Epochs().Epoch21)
}

func TestApplyViperCommandLineWins(t *testing.T) {
	require := require.New(t)

	t.Setenv("DEVNET_BLOCK_TIME", "5s")

	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	networkVars := flags.NewNetworkFlagSetVars(flagSet)
	require.NoError(flagSet.Parse([]string{"--block-time=100ms"}))

	require.NoError(applyViper(flagSet, ""))
	require.Equal(100*time.Millisecond, networkVars.BlockTime)
}

func TestApplyViperInvalidValue(t *testing.T) {
	t.Setenv("DEVNET_WAIT_TIMEOUT", "soon")

	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_ = flags.NewNetworkFlagSetVars(flagSet)
	require.NoError(t, flagSet.Parse(nil))

	require.ErrorContains(t, applyViper(flagSet, ""), "--wait-timeout")
}
