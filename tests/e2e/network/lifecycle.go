// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/tests"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet"
	"github.com/stacks-network/stacks-devnet/tests/fixture/e2e"

	ginkgo "github.com/onsi/ginkgo/v2"
)

var _ = e2e.DescribeNetwork("chain synchronization", func() {
	require := require.New(ginkgo.GinkgoT())

	ginkgo.It("publishes blocks in order", func() {
		network := e2e.GetEnv().Network

		var first, second devnet.ChainEvent
		ginkgo.By("waiting for two stacks blocks", func() {
			var err error
			first, err = network.WaitForNextStacksBlock(e2e.DefaultContext())
			require.NoError(err)
			second, err = network.WaitForNextStacksBlock(e2e.DefaultContext())
			require.NoError(err)
		})
		require.Greater(second.StacksBlock.Height, first.StacksBlock.Height)
		require.GreaterOrEqual(second.BurnHeight, first.BurnHeight)

		ginkgo.By("checking the event journal", func() {
			entries, err := network.Journal()
			require.NoError(err)
			for i := 1; i < len(entries); i++ {
				require.Equal(entries[i-1].Seq+1, entries[i].Seq)
			}
			tests.Outf(" journal holds %d events\n", len(entries))
		})
	})

	ginkgo.It("serves the funded accounts", func() {
		network := e2e.GetEnv().Network

		for _, account := range network.Config.Accounts {
			info, err := network.GetAccount(e2e.DefaultContext(), account.Address)
			require.NoError(err)
			balance, err := info.BalanceValue()
			require.NoError(err)
			require.Positive(balance.Sign())
		}
	})

	ginkgo.It("resolves waits for targets already reached", func() {
		network := e2e.GetEnv().Network

		event, err := network.WaitForChainUpdate(e2e.DefaultContext(), devnet.AtEpoch(devnet.Epoch20))
		require.NoError(err)
		require.Equal(devnet.KindNewStacksBlock, event.Kind)
		require.GreaterOrEqual(event.BurnHeight, network.Config.Epochs.Epoch20)
	})
})
