// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package flags

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet"
)

const (
	RootDirFlag        = "root-dir"
	IsolationKeyFlag   = "isolation-key"
	BitcoindPathFlag   = "bitcoind-path"
	StacksNodePathFlag = "stacks-node-path"
	BlockTimeFlag      = "block-time"
	ManualMiningFlag   = "manual-mining"
	WaitTimeoutFlag    = "wait-timeout"
	StartTimeoutFlag   = "start-timeout"

	Epoch20Flag        = "epoch-2-0"
	Epoch205Flag       = "epoch-2-05"
	Epoch21Flag        = "epoch-2-1"
	Epoch22Flag        = "epoch-2-2"
	Epoch23Flag        = "epoch-2-3"
	Epoch24Flag        = "epoch-2-4"
	Pox2ActivationFlag = "pox-2-activation"

	epochDocPrefix = "[epochs] "
)

// NetworkVars holds the flag-configurable inputs of a devnet. The same
// vars can be registered with stdlib flag (for ginkgo suites) or with a
// pflag.FlagSet (for cobra commands).
type NetworkVars struct {
	RootDir        string
	IsolationKey   string
	BitcoindPath   string
	StacksNodePath string
	BlockTime      time.Duration
	ManualMining   bool
	WaitTimeout    time.Duration
	StartTimeout   time.Duration

	// A zero height leaves the epoch to its default or unscheduled.
	epochs devnet.EpochConfig
}

// NewNetworkFlagVars registers the vars with the global flag set.
func NewNetworkFlagVars() *NetworkVars {
	v := &NetworkVars{}
	v.register(flag.StringVar, flag.BoolVar, flag.Uint64Var, flag.DurationVar)
	return v
}

// NewNetworkFlagSetVars registers the vars with [flagSet].
func NewNetworkFlagSetVars(flagSet *pflag.FlagSet) *NetworkVars {
	v := &NetworkVars{}
	v.register(flagSet.StringVar, flagSet.BoolVar, flagSet.Uint64Var, flagSet.DurationVar)
	return v
}

func (v *NetworkVars) register(
	stringVar varFunc[string],
	boolVar varFunc[bool],
	uint64Var varFunc[uint64],
	durationVar varFunc[time.Duration],
) {
	stringVar(
		&v.RootDir,
		RootDirFlag,
		os.Getenv(devnet.RootDirEnvName),
		fmt.Sprintf("The directory holding network dirs and namespace locks. Also possible to configure via the %s env variable.", devnet.RootDirEnvName),
	)
	stringVar(
		&v.IsolationKey,
		IsolationKeyFlag,
		"",
		"The key isolating this network from concurrent ones. Defaults to a random UUID.",
	)
	stringVar(
		&v.BitcoindPath,
		BitcoindPathFlag,
		os.Getenv(devnet.BitcoindPathEnvName),
		fmt.Sprintf("The bitcoind executable path. Also possible to configure via the %s env variable.", devnet.BitcoindPathEnvName),
	)
	stringVar(
		&v.StacksNodePath,
		StacksNodePathFlag,
		os.Getenv(devnet.StacksNodePathEnvName),
		fmt.Sprintf("The stacks-node executable path. Also possible to configure via the %s env variable.", devnet.StacksNodePathEnvName),
	)
	durationVar(
		&v.BlockTime,
		BlockTimeFlag,
		devnet.DefaultBlockTime,
		"The interval between automatically mined bitcoin blocks",
	)
	boolVar(
		&v.ManualMining,
		ManualMiningFlag,
		false,
		"Whether to disable automatic bitcoin block production",
	)
	durationVar(
		&v.WaitTimeout,
		WaitTimeoutFlag,
		devnet.DefaultWaitTimeout,
		"The bound applied to chain waits that carry no deadline",
	)
	durationVar(
		&v.StartTimeout,
		StartTimeoutFlag,
		devnet.DefaultStartTimeout,
		"The time allowed for each process to become ready",
	)

	uint64Var(&v.epochs.Epoch20, Epoch20Flag, 0, epochDocPrefix+fmt.Sprintf("Burn height of epoch 2.0 (default %d)", devnet.DefaultEpoch20Height))
	uint64Var(&v.epochs.Epoch205, Epoch205Flag, 0, epochDocPrefix+fmt.Sprintf("Burn height of epoch 2.05 (default %d)", devnet.DefaultEpoch205Height))
	uint64Var(&v.epochs.Epoch21, Epoch21Flag, 0, epochDocPrefix+fmt.Sprintf("Burn height of epoch 2.1 (default %d)", devnet.DefaultEpoch21Height))
	uint64Var(&v.epochs.Epoch22, Epoch22Flag, 0, epochDocPrefix+"Burn height of epoch 2.2 (unscheduled if unset)")
	uint64Var(&v.epochs.Epoch23, Epoch23Flag, 0, epochDocPrefix+"Burn height of epoch 2.3 (unscheduled if unset)")
	uint64Var(&v.epochs.Epoch24, Epoch24Flag, 0, epochDocPrefix+"Burn height of epoch 2.4 (unscheduled if unset)")
	uint64Var(&v.epochs.Pox2Activation, Pox2ActivationFlag, 0, epochDocPrefix+fmt.Sprintf("Burn height of PoX 2 activation (default %d)", devnet.DefaultPox2ActivationHeight))
}

// Epochs returns the epoch heights given on the command line.
func (v *NetworkVars) Epochs() devnet.EpochConfig {
	return v.epochs
}

// SetEpochs overrides the epoch heights, e.g. with values a suite requires.
func (v *NetworkVars) SetEpochs(epochs devnet.EpochConfig) {
	v.epochs = epochs
}

// ConfigOptions converts the vars into options for BuildNetworkConfig.
// Epochs are validated so flag errors surface before a network is built.
func (v *NetworkVars) ConfigOptions() (devnet.ConfigOptions, error) {
	epochs := v.epochs.WithDefaults()
	if err := epochs.Validate(); err != nil {
		return devnet.ConfigOptions{}, err
	}
	if v.BlockTime < 0 {
		return devnet.ConfigOptions{}, fmt.Errorf("--%s must not be negative", BlockTimeFlag)
	}
	return devnet.ConfigOptions{
		IsolationKey:   v.IsolationKey,
		RootDir:        v.RootDir,
		Epochs:         v.epochs,
		BitcoindPath:   v.BitcoindPath,
		StacksNodePath: v.StacksNodePath,
		BlockTime:      v.BlockTime,
		ManualMining:   v.ManualMining,
		WaitTimeout:    v.WaitTimeout,
		StartTimeout:   v.StartTimeout,
	}, nil
}
