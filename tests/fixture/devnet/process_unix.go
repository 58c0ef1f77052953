// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build unix

package devnet

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the process in its own group so that
// signals reach every descendant.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// stopProcessGroup asks every process of the group led by [pid] to exit.
func stopProcessGroup(pid int) error {
	return signalProcessGroup(pid, syscall.SIGTERM)
}

// killProcessGroup forcibly ends every process of the group led by [pid].
func killProcessGroup(pid int) error {
	return signalProcessGroup(pid, syscall.SIGKILL)
}

// sweepProcessGroup kills whatever remains of the group of a leader that
// was just reaped.
func sweepProcessGroup(pid int) error {
	return killProcessGroup(pid)
}

func signalProcessGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to send %s to process group %d: %w", sig, pid, err)
	}
	return nil
}

// getProcess retrieves the process if it is running, and nil otherwise.
func getProcess(pid int) (*os.Process, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to find process: %w", err)
	}
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil, errors.Is(err, syscall.EPERM):
		return proc, nil
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to determine process status: %w", err)
	}
}
