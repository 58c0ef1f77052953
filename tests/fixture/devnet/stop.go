// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/stacks-network/stacks-devnet/utils/logging"
)

// StopNetwork stops the processes of the network in [dir] left running by
// an orchestrator that exited without terminating it. Processes are found
// through their PID files.
func StopNetwork(ctx context.Context, log logging.Logger, dir string) error {
	config, err := ReadNetworkConfig(dir)
	if err != nil {
		return err
	}

	var errs []error
	// Stop dependents first
	for _, role := range []NodeRole{RoleStacksNode, RoleBitcoind} {
		if err := stopOrphan(ctx, log, string(role), filepath.Join(config.Dir, string(role)+".pid"), config.Timing.StopTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func stopOrphan(ctx context.Context, log logging.Logger, name string, pidPath string, stopTimeout time.Duration) error {
	proc, err := processFromPIDFile(name, pidPath)
	if err != nil {
		return err
	}
	if proc == nil {
		log.Info("process not running",
			zap.String("process", name),
		)
		return clearStalePIDFile(log, name, pidPath)
	}

	log.Info("sending SIGTERM to process group",
		zap.String("process", name),
		zap.Int("pid", proc.Pid),
	)
	if err := stopProcessGroup(proc.Pid); err != nil {
		return err
	}

	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	err = pollUntilContextCancel(
		stopCtx,
		func(_ context.Context) (bool, error) {
			p, err := getProcess(proc.Pid)
			if err != nil {
				return false, fmt.Errorf("failed to retrieve process: %w", err)
			}
			return p == nil, nil
		},
	)
	if err != nil {
		log.Warn("process did not stop in time, sending SIGKILL",
			zap.String("process", name),
			zap.Int("pid", proc.Pid),
			zap.Error(err),
		)
	}
	if err := killProcessGroup(proc.Pid); err != nil {
		return err
	}
	log.Info("process stopped",
		zap.String("process", name),
		zap.Int("pid", proc.Pid),
	)
	return clearStalePIDFile(log, name, pidPath)
}

// processFromPIDFile attempts to retrieve a running process from the specified PID file.
func processFromPIDFile(name string, pidPath string) (*os.Process, error) {
	pid, err := getPID(name, pidPath)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, nil
	}
	return getProcess(pid)
}

// getPID attempts to read the PID of a process from a PID file.
func getPID(name string, pidPath string) (int, error) {
	pidData, err := os.ReadFile(pidPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("failed to read %s PID file %s: %w", name, pidPath, err)
	}
	if len(pidData) == 0 {
		return 0, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s PID: %w", name, err)
	}
	return pid, nil
}

// clearStalePIDFile remove an existing pid file to avoid conflicting with a new process.
func clearStalePIDFile(log logging.Logger, name string, pidPath string) error {
	if err := os.Remove(pidPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale pid file: %w", err)
		}
	} else {
		log.Debug("deleted pid file",
			zap.String("process", name),
			zap.String("path", pidPath),
		)
	}
	return nil
}

func pollUntilContextCancel(ctx context.Context, condition wait.ConditionWithContextFunc) error {
	return wait.PollUntilContextCancel(ctx, readinessCheckInterval, true /* immediate */, condition)
}
