// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clarity

import (
	"github.com/onsi/gomega"
	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/tests"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet"
	"github.com/stacks-network/stacks-devnet/tests/fixture/e2e"

	ginkgo "github.com/onsi/ginkgo/v2"
)

const (
	mathTraitName    = "math-trait"
	useMathTraitName = "use-math-trait"
	transitiveName   = "use-math-trait-transitive-name"
	mathImplName     = "math-impl"

	mathTraitSource = `
(define-trait math
  ((add (uint uint) (response uint uint))
   (sub (uint uint) (response uint uint))))
`
	useMathTraitSource = `
(use-trait math-alias .math-trait.math)
(define-public (add-call (math-contract <math-alias>) (x uint) (y uint))
  (contract-call? math-contract add x y))
(define-public (sub-call (math-contract <math-alias>) (x uint) (y uint))
  (contract-call? math-contract sub x y))
`
	// Imports math through use-math-trait, which only re-exports it when
	// deployed as Clarity 1.
	transitiveSource = `
(use-trait math-alias .use-math-trait.math)
(define-public (add-call (math-contract <math-alias>) (x uint) (y uint))
  (contract-call? math-contract add x y))
(define-public (sub-call (math-contract <math-alias>) (x uint) (y uint))
  (contract-call? math-contract sub x y))
`
	mathImplSource = `
(define-public (add (x uint) (y uint)) (ok (+ x y)))
(define-public (sub (x uint) (y uint)) (ok (- x y)))
`
)

var _ = e2e.DescribeClarity("use-trait of a transitively imported name", ginkgo.Ordered, func() {
	var network *devnet.Network

	ginkgo.BeforeAll(func() {
		network = e2e.GetEnv().Network
	})

	account := func(name string) *devnet.Account {
		a, err := network.Account(name)
		require.NoError(ginkgo.GinkgoT(), err)
		return a
	}

	deployVersioned := func(a *devnet.Account, name string, source string, version stacks.ClarityVersion) *devnet.ContractResult {
		tests.Outf("{{blue}} deploying contract %s.%s as %s {{/}}\n", a.Address, name, version)
		result, err := network.DeployVersionedContract(e2e.DefaultContext(), a, name, source, version, devnet.DeployOptions{})
		require.NoError(ginkgo.GinkgoT(), err)
		tests.Outf(" included transaction %s in stacks block %d: %s\n", result.TxID, result.Block.Height, result.Tx.Result)
		return result
	}

	ginkgo.It("resolves in epoch 2.05", func() {
		require := require.New(ginkgo.GinkgoT())

		ginkgo.By("waiting for epoch 2.05", func() {
			_, err := network.WaitForChainUpdate(e2e.DefaultContext(), devnet.AtEpoch(devnet.Epoch205))
			require.NoError(err)
		})
		if network.CurrentEpoch() != devnet.Epoch205 {
			ginkgo.Skip("epoch 2.05 ended before the deployments could be sent")
		}

		deployer := account("deployer")
		ginkgo.By("deploying with the default Clarity version", func() {
			require.True(e2e.DeployContract(network, deployer, mathTraitName, mathTraitSource).OK())

			result := e2e.DeployContract(network, deployer, useMathTraitName, useMathTraitSource)
			require.True(result.OK())
			if network.Config.Epochs.EpochAt(result.Block.BurnHeight) != devnet.Epoch205 {
				ginkgo.Skip("epoch 2.05 ended before the importing contract was included")
			}

			require.True(e2e.DeployContract(network, deployer, transitiveName, transitiveSource).OK())
		})
	})

	ginkgo.It("resolves in epoch 2.1 through a Clarity 1 contract", func() {
		require := require.New(ginkgo.GinkgoT())

		ginkgo.By("waiting for epoch 2.1", func() {
			_, err := network.WaitForChainUpdate(e2e.DefaultContext(), devnet.AtEpoch(devnet.Epoch21))
			require.NoError(err)
		})

		wallet := account("wallet_1")
		ginkgo.By("deploying the trait and its importer as Clarity 1", func() {
			require.True(deployVersioned(wallet, mathTraitName, mathTraitSource, stacks.Clarity1).OK())
			require.True(deployVersioned(wallet, useMathTraitName, useMathTraitSource, stacks.Clarity1).OK())
		})

		ginkgo.By("deploying the transitive importer as Clarity 2", func() {
			require.True(deployVersioned(wallet, transitiveName, transitiveSource, stacks.Clarity2).OK())
		})

		ginkgo.By("calling through the imported trait", func() {
			require.True(deployVersioned(wallet, mathImplName, mathImplSource, stacks.Clarity2).OK())

			impl, err := clarity.ParseContractPrincipal(wallet.Address + "." + mathImplName)
			require.NoError(err)
			result, err := network.CallContract(
				e2e.DefaultContext(),
				wallet,
				wallet.Address+"."+transitiveName,
				"add-call",
				[]clarity.Value{impl, clarity.NewUInt(2), clarity.NewUInt(3)},
				devnet.CallOptions{},
			)
			require.NoError(err)
			gomega.Expect(result.Tx.Result).To(gomega.Equal("(ok u5)"))
		})
	})

	ginkgo.It("does not resolve in epoch 2.1 through a Clarity 2 contract", func() {
		require := require.New(ginkgo.GinkgoT())

		wallet := account("wallet_2")
		ginkgo.By("deploying every contract with the default Clarity version", func() {
			require.True(e2e.DeployContract(network, wallet, mathTraitName, mathTraitSource).OK())
			require.True(e2e.DeployContract(network, wallet, useMathTraitName, useMathTraitSource).OK())

			result := e2e.DeployContract(network, wallet, transitiveName, transitiveSource)
			require.False(result.OK())
			require.Equal(devnet.Epoch21, network.Config.Epochs.EpochAt(result.Block.BurnHeight))
		})
	})
})
