// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package e2e_test

import (
	"os"
	"testing"

	"github.com/onsi/gomega"

	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet/fakenode"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet/flags"
	"github.com/stacks-network/stacks-devnet/tests/fixture/e2e"

	// ensure test packages are scanned by ginkgo
	_ "github.com/stacks-network/stacks-devnet/tests/e2e/clarity"
	_ "github.com/stacks-network/stacks-devnet/tests/e2e/network"

	ginkgo "github.com/onsi/ginkgo/v2"
)

func TestMain(m *testing.M) {
	// Serve as bitcoind or stacks-node when re-executed under their name
	fakenode.MainIfRequested()
	os.Exit(m.Run())
}

func TestE2E(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "stacks-devnet e2e test suites")
}

var flagVars *flags.NetworkVars

func init() {
	flagVars = flags.NewNetworkFlagVars()
}

var _ = ginkgo.BeforeSuite(func() {
	e2e.InitSharedTestEnvironment(flagVars)
})
