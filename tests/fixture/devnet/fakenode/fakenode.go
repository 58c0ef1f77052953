// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fakenode provides in-process stand-ins for the bitcoind and
// stacks-node binaries so devnet orchestration can be tested without them.
//
// A test binary calls MainIfRequested first thing in TestMain and points
// the devnet at the symlinks created by Install. When the test binary is
// re-executed through one of those symlinks it runs the fake instead of
// the tests.
package fakenode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/stacks-network/stacks-devnet/utils/logging"
	"github.com/stacks-network/stacks-devnet/utils/perms"
)

const (
	BitcoindName   = "bitcoind"
	StacksNodeName = "stacks-node"

	// FailRoleEnvName names a fake (bitcoind or stacks-node) that should
	// exit with an error right after start.
	FailRoleEnvName = "FAKENODE_FAIL_ROLE"
)

var errRequestedFailure = errors.New("failing on request")

// Paths of the installed fake binaries.
type Paths struct {
	Bitcoind   string
	StacksNode string
}

// MainIfRequested runs the fake named by the executable's base name and
// exits. It returns without doing anything when the binary was invoked
// under any other name.
func MainIfRequested() {
	var run func([]string) error
	switch filepath.Base(os.Args[0]) {
	case BitcoindName:
		run = runBitcoind
	case StacksNodeName:
		run = runStacksNode
	default:
		return
	}
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(os.Args[0]), err)
		os.Exit(1)
	}
	os.Exit(0)
}

// Install links the fakes into [dir], pointing at the running executable.
func Install(dir string) (Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return Paths{}, fmt.Errorf("failed to locate executable: %w", err)
	}
	if err := os.MkdirAll(dir, perms.ReadWriteExecute); err != nil {
		return Paths{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	paths := Paths{
		Bitcoind:   filepath.Join(dir, BitcoindName),
		StacksNode: filepath.Join(dir, StacksNodeName),
	}
	for _, link := range []string{paths.Bitcoind, paths.StacksNode} {
		if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Paths{}, err
		}
		if err := os.Symlink(exe, link); err != nil {
			return Paths{}, fmt.Errorf("failed to link %s: %w", link, err)
		}
	}
	return paths, nil
}

func failIfRequested(log logging.Logger, role string) error {
	if os.Getenv(FailRoleEnvName) != role {
		return nil
	}
	log.Error("startup failed",
		zap.String("reason", "requested by "+FailRoleEnvName),
	)
	return errRequestedFailure
}

func warmupFromEnv() (time.Duration, error) {
	value, ok := os.LookupEnv(WarmupEnvName)
	if !ok {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", WarmupEnvName, err)
	}
	return d, nil
}
