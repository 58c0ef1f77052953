// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package e2e

import (
	"fmt"
	"os"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet/fakenode"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet/flags"

	ginkgo "github.com/onsi/ginkgo/v2"
)

// Env is used to access the shared test fixture. Intended to be
// initialized from BeforeSuite.
var env *TestEnvironment

type TestEnvironment struct {
	Network *devnet.Network
}

// Retrieve the shared test environment.
func GetEnv() *TestEnvironment {
	require.NotNil(ginkgo.GinkgoT(), env, "env not initialized")
	return env
}

// Activation heights used when the command line schedules no epoch. Epoch
// 2.05 lasts long enough to broadcast and confirm transactions in it.
func DefaultSuiteEpochs() devnet.EpochConfig {
	return devnet.EpochConfig{
		Epoch20:        100,
		Epoch205:       102,
		Epoch21:        120,
		Pox2Activation: 122,
	}
}

// InitSharedTestEnvironment starts the network shared by the specs of the
// suite. Without binary paths, the network runs the fakes of the test
// binary, which must call fakenode.MainIfRequested from TestMain.
func InitSharedTestEnvironment(flagVars *flags.NetworkVars) {
	require := require.New(ginkgo.GinkgoT())
	require.Nil(env, "env already initialized")

	if flagVars.Epochs() == (devnet.EpochConfig{}) {
		flagVars.SetEpochs(DefaultSuiteEpochs())
	}
	opts, err := flagVars.ConfigOptions()
	require.NoError(err)

	if len(opts.IsolationKey) == 0 {
		opts.IsolationKey = fmt.Sprintf("e2e-%d-%d", os.Getpid(), ginkgo.GinkgoParallelProcess())
	}
	if len(opts.BitcoindPath) == 0 && len(opts.StacksNodePath) == 0 {
		binDir, err := os.MkdirTemp("", "fakenode")
		require.NoError(err)
		ginkgo.DeferCleanup(func() {
			require.NoError(os.RemoveAll(binDir))
		})
		paths, err := fakenode.Install(binDir)
		require.NoError(err)
		opts.BitcoindPath = paths.Bitcoind
		opts.StacksNodePath = paths.StacksNode
	}

	env = &TestEnvironment{
		Network: StartNetwork(opts),
	}
}
