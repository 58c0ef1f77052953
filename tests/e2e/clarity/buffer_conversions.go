// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clarity

import (
	"github.com/onsi/gomega"
	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/tests"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet"
	"github.com/stacks-network/stacks-devnet/tests/fixture/e2e"

	ginkgo "github.com/onsi/ginkgo/v2"
)

const (
	contractName = "test-buff-to-uint"

	// buff-to-uint-be is a Clarity 2 native, unknown to the Clarity 1
	// analysis applied to unversioned deployments before epoch 2.1.
	contractSource = `
(define-public (test-1) (ok (buff-to-uint-be 0x0001)))
(define-public (test-2) (ok (buff-to-uint-be 0xffffffffffffffffffffffffffffffff)))
(define-public (test-3) (ok (buff-to-uint-be 0x)))
`
)

var _ = e2e.DescribeClarity("buff-to-uint-be", ginkgo.Ordered, func() {
	var (
		network  *devnet.Network
		deployer *devnet.Account
	)

	ginkgo.BeforeAll(func() {
		network = e2e.GetEnv().Network

		var err error
		deployer, err = network.Account("deployer")
		require.NoError(ginkgo.GinkgoT(), err)
	})

	ginkgo.It("cannot be deployed in epoch 2.05", func() {
		require := require.New(ginkgo.GinkgoT())

		ginkgo.By("waiting for epoch 2.05", func() {
			event, err := network.WaitForChainUpdate(e2e.DefaultContext(), devnet.AtEpoch(devnet.Epoch205))
			require.NoError(err)
			tests.Outf("{{blue}} reached %s at burn height %d {{/}}\n", event.Epoch, event.BurnHeight)
		})
		if network.CurrentEpoch() != devnet.Epoch205 {
			ginkgo.Skip("epoch 2.05 ended before the deployment could be sent")
		}

		ginkgo.By("deploying with the default Clarity version", func() {
			result := e2e.DeployContract(network, deployer, contractName, contractSource)
			require.False(result.OK())
			require.Equal(devnet.Epoch205, network.Config.Epochs.EpochAt(result.Block.BurnHeight))
		})

		ginkgo.By("deploying as Clarity 2", func() {
			_, err := network.DeployVersionedContract(
				e2e.DefaultContext(),
				deployer,
				contractName,
				contractSource,
				stacks.Clarity2,
				devnet.DeployOptions{},
			)
			var rejected *devnet.BroadcastRejected
			require.ErrorAs(err, &rejected)
			tests.Outf(" rejected: %s\n", rejected.Reason)
		})
	})

	ginkgo.It("converts big-endian buffers in epoch 2.1", func() {
		require := require.New(ginkgo.GinkgoT())

		ginkgo.By("waiting for epoch 2.1", func() {
			_, err := network.WaitForChainUpdate(e2e.DefaultContext(), devnet.AtEpoch(devnet.Epoch21))
			require.NoError(err)
		})

		ginkgo.By("deploying with the default Clarity version", func() {
			result := e2e.DeployContract(network, deployer, contractName, contractSource)
			require.True(result.OK())
		})

		contract := deployer.Address + "." + contractName
		for _, call := range []struct {
			function string
			expected string
		}{
			{function: "test-1", expected: "(ok u1)"},
			{function: "test-2", expected: "(ok u340282366920938463463374607431768211455)"},
			{function: "test-3", expected: "(ok u0)"},
		} {
			ginkgo.By("calling "+call.function, func() {
				result, err := network.CallContract(e2e.DefaultContext(), deployer, contract, call.function, nil, devnet.CallOptions{})
				require.NoError(err)
				gomega.Expect(result.Tx.Result).To(gomega.Equal(call.expected))
				require.True(result.OK())
			})
		}
	})
})
