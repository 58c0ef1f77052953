// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build windows

package devnet

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Windows has no graceful equivalent of SIGTERM for console-less children.
func stopProcessGroup(pid int) error {
	return killProcessGroup(pid)
}

func killProcessGroup(pid int) error {
	proc, err := getProcess(pid)
	if err != nil || proc == nil {
		return err
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}

// Children are not tracked as a group, and the pid of a reaped process
// may already belong to another one.
func sweepProcessGroup(int) error {
	return nil
}

func getProcess(pid int) (*os.Process, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		// FindProcess fails on windows when the process does not exist
		return nil, nil
	}
	return proc, nil
}
