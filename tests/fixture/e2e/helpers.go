// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package e2e

import (
	"context"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/tests"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet"

	ginkgo "github.com/onsi/ginkgo/v2"
)

const (
	// A long default timeout used to timeout failed operations but
	// unlikely to induce flaking due to unexpected resource
	// contention.
	DefaultTimeout = 2 * time.Minute

	DefaultPollingInterval = 100 * time.Millisecond
)

// Helper simplifying use of a timed context by canceling the context on ginkgo teardown.
func ContextWithTimeout(duration time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	ginkgo.DeferCleanup(cancel)
	return ctx
}

// Helper simplifying use of a timed context configured with the default timeout.
func DefaultContext() context.Context {
	return ContextWithTimeout(DefaultTimeout)
}

// Re-implementation of testify/require.Eventually that is compatible with ginkgo. testify's
// version calls the condition function with a goroutine and ginkgo assertions don't work
// properly in goroutines.
func Eventually(condition func() bool, waitFor time.Duration, tick time.Duration, msg string) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	for !condition() {
		select {
		case <-ctx.Done():
			require.Fail(ginkgo.GinkgoT(), msg)
		case <-ticker.C:
		}
	}
}

// StartNetwork starts a network for [opts] and terminates it on ginkgo
// teardown. Terminate is called twice to check that it is idempotent.
func StartNetwork(opts devnet.ConfigOptions) *devnet.Network {
	require := require.New(ginkgo.GinkgoT())

	network, err := devnet.StartNetwork(
		DefaultContext(),
		opts,
		devnet.WithLogger(tests.NewDefaultLogger("devnet")),
		devnet.WithOutput(ginkgo.GinkgoWriter),
	)
	require.NoError(err)

	ginkgo.DeferCleanup(func() {
		tests.Outf("Shutting down network\n")
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		require.NoError(network.Terminate(ctx))
		require.NoError(network.Terminate(ctx))
	})

	tests.Outf("{{green}}Successfully started network{{/}} %s\n", network.Config.Dir)
	return network
}

// DeployContract deploys [source] as [name] from [account] and requires
// the transaction to be included.
func DeployContract(network *devnet.Network, account *devnet.Account, name string, source string) *devnet.ContractResult {
	tests.Outf("{{blue}} deploying contract %s.%s {{/}}\n", account.Address, name)
	result, err := network.DeployContract(DefaultContext(), account, name, source, devnet.DeployOptions{})
	require.NoError(ginkgo.GinkgoT(), err)
	tests.Outf(" included transaction %s in stacks block %d: %s\n", result.TxID, result.Block.Height, result.Tx.Result)
	return result
}
