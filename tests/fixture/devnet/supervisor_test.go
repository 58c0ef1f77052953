// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build unix

package devnet

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/utils/logging"
)

const shellPath = "/bin/sh"

func newTestSupervisor(t *testing.T, onExit ExitHandler) (*Supervisor, *Metrics) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	s := NewSupervisor(logging.NoLog{}, t.TempDir(), 200*time.Millisecond, m, onExit)
	t.Cleanup(func() {
		require.NoError(t, s.Terminate(context.Background()))
	})
	return s, m
}

func shellSpec(name string, script string) ProcessSpec {
	return ProcessSpec{
		Name:         name,
		Path:         shellPath,
		Args:         []string{"-c", script},
		StartTimeout: 5 * time.Second,
	}
}

func TestSupervisorStartupFailure(t *testing.T) {
	require := require.New(t)

	s, m := newTestSupervisor(t, nil)
	spec := shellSpec("broken", "echo booting; echo missing datadir >&2; exit 3")
	spec.Ready = func(context.Context) (bool, error) {
		return false, nil
	}

	err := s.Start(context.Background(), spec)
	var startupErr *StartupError
	require.ErrorAs(err, &startupErr)
	require.Equal("broken", startupErr.Process)
	require.ErrorIs(err, errProcessExited)
	require.Contains(startupErr.Output, "booting")
	require.Contains(startupErr.Output, "missing datadir")
	require.Contains(err.Error(), "--- output ---")

	require.Empty(s.Running())
	requireMetric(t, 1, m.processExits.WithLabelValues("broken", "expected"))
}

func TestSupervisorReadinessTimeout(t *testing.T) {
	require := require.New(t)

	s, _ := newTestSupervisor(t, nil)
	spec := shellSpec("slow", "echo waiting; sleep 30")
	spec.StartTimeout = 300 * time.Millisecond
	spec.Ready = func(context.Context) (bool, error) {
		return false, nil
	}

	err := s.Start(context.Background(), spec)
	var startupErr *StartupError
	require.ErrorAs(err, &startupErr)
	require.ErrorIs(err, context.DeadlineExceeded)
	require.Contains(startupErr.Output, "waiting")
	require.Empty(s.Running())
}

func TestSupervisorTerminateEscalates(t *testing.T) {
	require := require.New(t)

	s, _ := newTestSupervisor(t, nil)
	// Both the shell and its children ignore SIGTERM
	require.NoError(s.Start(context.Background(), shellSpec("stubborn", `trap "" TERM; while true; do sleep 0.1; done`)))
	require.Equal([]string{"stubborn"}, s.Running())

	pidPath := filepath.Join(s.dir, "stubborn.pid")
	pidBytes, err := os.ReadFile(pidPath)
	require.NoError(err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	require.NoError(err)
	require.Positive(pid)

	start := time.Now()
	require.NoError(s.Terminate(context.Background()))
	require.GreaterOrEqual(time.Since(start), 200*time.Millisecond)
	require.Empty(s.Running())
	require.NoFileExists(pidPath)

	// Later calls return the first result
	require.NoError(s.Terminate(context.Background()))

	err = s.Start(context.Background(), shellSpec("late", "sleep 1"))
	require.ErrorIs(err, errSupervisorTerminated)
}

func TestSupervisorUnexpectedExit(t *testing.T) {
	require := require.New(t)

	exits := make(chan string, 1)
	s, m := newTestSupervisor(t, func(name string, err error) {
		require.ErrorContains(err, name+" exited")
		exits <- name
	})
	require.NoError(s.Start(context.Background(), shellSpec("short", "sleep 0.3")))

	select {
	case name := <-exits:
		require.Equal("short", name)
	case <-time.After(5 * time.Second):
		require.FailNow("exit was not reported")
	}
	requireMetric(t, 1, m.processExits.WithLabelValues("short", "unexpected"))
	require.Equal(float64(1), testutil.ToFloat64(m.processStarts.WithLabelValues("short")))
}

func TestSupervisorSweepsGroupOnExit(t *testing.T) {
	require := require.New(t)

	s, _ := newTestSupervisor(t, nil)
	childPIDPath := filepath.Join(t.TempDir(), "child.pid")
	require.NoError(s.Start(context.Background(), shellSpec("leader", "sleep 30 >/dev/null 2>&1 & echo $! > "+childPIDPath+"; sleep 0.3")))

	var childPID int
	require.Eventually(func() bool {
		b, err := os.ReadFile(childPIDPath)
		if err != nil {
			return false
		}
		childPID, err = strconv.Atoi(strings.TrimSpace(string(b)))
		return err == nil && childPID > 0
	}, 5*time.Second, 10*time.Millisecond)

	// The leader exits on its own and its background child goes with it
	require.Eventually(func() bool {
		return len(s.Running()) == 0 && !processAlive(childPID)
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(s.Terminate(context.Background()))
}

// processAlive reports whether [pid] is running. Zombies awaiting a
// parent that never reaps them count as stopped.
func processAlive(pid int) bool {
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		if _, procErr := os.Stat("/proc/self/stat"); procErr == nil {
			return false
		}
		return syscall.Kill(pid, 0) == nil
	}
	// The state follows the parenthesized command name
	rest := string(stat[strings.LastIndexByte(string(stat), ')')+1:])
	fields := strings.Fields(rest)
	return len(fields) > 0 && fields[0] != "Z"
}

func TestSupervisorDuplicateName(t *testing.T) {
	require := require.New(t)

	s, _ := newTestSupervisor(t, nil)
	require.NoError(s.Start(context.Background(), shellSpec("node", "sleep 30")))

	err := s.Start(context.Background(), shellSpec("node", "sleep 30"))
	require.ErrorIs(err, errDuplicateProcess)
	require.Equal([]string{"node"}, s.Running())
}

func TestSupervisorOutput(t *testing.T) {
	require := require.New(t)

	s, _ := newTestSupervisor(t, nil)
	require.NoError(s.Start(context.Background(), shellSpec("chatty", "echo hello; sleep 30")))
	require.Eventually(func() bool {
		return strings.Contains(s.Output("chatty"), "hello")
	}, 5*time.Second, 10*time.Millisecond)
	require.Empty(s.Output("unknown"))

	require.NoError(s.Terminate(context.Background()))
	logBytes, err := os.ReadFile(filepath.Join(s.dir, "chatty.log"))
	require.NoError(err)
	require.Contains(string(logBytes), "hello")
}

func TestTailBuffer(t *testing.T) {
	require := require.New(t)

	tail := newTailBuffer(8)
	_, err := tail.Write([]byte("abc"))
	require.NoError(err)
	require.Equal("abc", tail.String())

	_, err = tail.Write([]byte("defghi"))
	require.NoError(err)
	require.Equal("bcdefghi", tail.String())

	n, err := tail.Write([]byte("0123456789"))
	require.NoError(err)
	require.Equal(10, n)
	require.Equal("23456789", tail.String())
}
