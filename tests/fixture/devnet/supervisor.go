// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stacks-network/stacks-devnet/utils/logging"
	"github.com/stacks-network/stacks-devnet/utils/perms"
)

const (
	// Bytes of combined output retained for startup diagnostics
	outputTailSize = 16 * 1024

	maxLogFileSizeMB = 16
	maxLogBackups    = 3
)

var (
	errSupervisorTerminated = errors.New("supervisor is terminated")
	errProcessExited        = errors.New("process exited")
	errDuplicateProcess     = errors.New("process already started")
)

// ReadinessCheck reports whether a process is ready to serve. Errors are
// treated as not ready.
type ReadinessCheck func(ctx context.Context) (bool, error)

// ProcessSpec describes a process to supervise.
type ProcessSpec struct {
	Name string
	Path string
	Args []string
	// Env is appended to the environment of the orchestrator.
	Env []string
	// Dir is the working directory of the process.
	Dir   string
	Ready ReadinessCheck
	// StartTimeout bounds the wait for readiness. Defaults to
	// DefaultStartTimeout.
	StartTimeout time.Duration
}

// ExitHandler is notified when a ready process exits without having been
// asked to.
type ExitHandler func(name string, err error)

// Supervisor starts processes in their own process groups and tears them
// down as a unit.
type Supervisor struct {
	log         logging.Logger
	dir         string
	stopTimeout time.Duration
	metrics     *Metrics
	onExit      ExitHandler

	lock      sync.Mutex
	processes []*process

	terminating   atomic.Bool
	terminateOnce sync.Once
	terminateErr  error
}

// NewSupervisor returns a supervisor writing PID files and logs to [dir].
func NewSupervisor(
	log logging.Logger,
	dir string,
	stopTimeout time.Duration,
	metrics *Metrics,
	onExit ExitHandler,
) *Supervisor {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Supervisor{
		log:         log,
		dir:         dir,
		stopTimeout: stopTimeout,
		metrics:     metrics,
		onExit:      onExit,
	}
}

type process struct {
	name    string
	cmd     *exec.Cmd
	pidPath string
	logPath string
	tail    *tailBuffer
	logFile *lumberjack.Logger

	ready   atomic.Bool
	done    chan struct{}
	exitErr error
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Start launches [spec] and blocks until it is ready. On failure the
// process is stopped and a *StartupError carrying its output is returned.
func (s *Supervisor) Start(ctx context.Context, spec ProcessSpec) error {
	p, err := s.launch(spec)
	if err != nil {
		return &StartupError{Process: spec.Name, Err: err}
	}

	if err := s.waitForReadiness(ctx, spec, p); err != nil {
		stopErr := s.stopProcess(context.WithoutCancel(ctx), p)
		if stopErr != nil {
			s.log.Warn("failed to stop process after startup failure",
				zap.String("process", spec.Name),
				zap.Error(stopErr),
			)
		}
		return &StartupError{
			Process: spec.Name,
			Output:  p.tail.String(),
			Err:     err,
		}
	}
	p.ready.Store(true)
	s.log.Info("process ready",
		zap.String("process", spec.Name),
		zap.Int("pid", p.cmd.Process.Pid),
	)
	return nil
}

func (s *Supervisor) launch(spec ProcessSpec) (*process, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.terminating.Load() {
		return nil, errSupervisorTerminated
	}
	for _, existing := range s.processes {
		if existing.name == spec.Name {
			return nil, fmt.Errorf("%w: %s", errDuplicateProcess, spec.Name)
		}
	}

	pidPath := filepath.Join(s.dir, spec.Name+".pid")
	if err := clearStalePIDFile(s.log, spec.Name, pidPath); err != nil {
		return nil, err
	}

	p := &process{
		name:    spec.Name,
		pidPath: pidPath,
		logPath: filepath.Join(s.dir, spec.Name+".log"),
		tail:    newTailBuffer(outputTailSize),
		done:    make(chan struct{}),
	}
	p.logFile = &lumberjack.Logger{
		Filename:   p.logPath,
		MaxSize:    maxLogFileSizeMB,
		MaxBackups: maxLogBackups,
	}
	output := io.MultiWriter(p.logFile, p.tail)

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = output
	cmd.Stderr = output
	// Output copying must not outlive a killed process whose descendants
	// still hold the pipe.
	cmd.WaitDelay = s.stopTimeout
	configureProcessGroup(cmd)

	s.log.Info("starting process",
		zap.String("process", spec.Name),
		zap.String("path", spec.Path),
		zap.Strings("args", spec.Args),
		zap.String("logPath", p.logPath),
	)
	if err := cmd.Start(); err != nil {
		_ = p.logFile.Close()
		return nil, fmt.Errorf("failed to start %s: %w", spec.Path, err)
	}
	p.cmd = cmd

	pid := strconv.Itoa(cmd.Process.Pid)
	if err := os.WriteFile(pidPath, []byte(pid), perms.ReadWrite); err != nil {
		s.log.Warn("failed to write PID file",
			zap.String("process", spec.Name),
			zap.String("pidPath", pidPath),
			zap.Error(err),
		)
	}

	s.processes = append(s.processes, p)
	s.metrics.processStarts.WithLabelValues(spec.Name).Inc()
	go s.reap(p)
	return p, nil
}

// reap waits for the process to exit and reports unexpected exits.
func (s *Supervisor) reap(p *process) {
	err := p.cmd.Wait()
	// The group id may be reused once the group is empty, so descendants
	// are swept now rather than at Terminate.
	if sweepErr := sweepProcessGroup(p.cmd.Process.Pid); sweepErr != nil {
		s.log.Warn("failed to sweep process group",
			zap.String("process", p.name),
			zap.Error(sweepErr),
		)
	}
	p.exitErr = err
	close(p.done)

	_ = p.logFile.Close()
	if err := clearStalePIDFile(s.log, p.name, p.pidPath); err != nil {
		s.log.Warn("failed to remove PID file",
			zap.String("process", p.name),
			zap.Error(err),
		)
	}

	expected := s.terminating.Load() || !p.ready.Load()
	outcome := "expected"
	if !expected {
		outcome = "unexpected"
	}
	s.metrics.processExits.WithLabelValues(p.name, outcome).Inc()

	if expected {
		s.log.Debug("process exited",
			zap.String("process", p.name),
			zap.Error(err),
		)
		return
	}
	s.log.Error("process exited unexpectedly",
		zap.String("process", p.name),
		zap.Error(err),
	)
	if s.onExit != nil {
		if err == nil {
			err = errProcessExited
		}
		s.onExit(p.name, fmt.Errorf("%s exited: %w", p.name, err))
	}
}

func (s *Supervisor) waitForReadiness(ctx context.Context, spec ProcessSpec, p *process) error {
	timeout := spec.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.log.Info("waiting for process readiness",
		zap.String("process", spec.Name),
		zap.Duration("timeout", timeout),
	)
	err := pollUntilContextCancel(
		ctx,
		func(ctx context.Context) (bool, error) {
			if p.exited() {
				if p.exitErr != nil {
					return false, fmt.Errorf("%w: %w", errProcessExited, p.exitErr)
				}
				return false, errProcessExited
			}
			if spec.Ready == nil {
				return true, nil
			}
			ready, err := spec.Ready(ctx)
			if err != nil {
				s.log.Debug("readiness check failed",
					zap.String("process", spec.Name),
					zap.Error(err),
				)
				return false, nil
			}
			return ready, nil
		},
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("not ready after %s: %w", timeout, err)
		}
		return err
	}
	return nil
}

// Terminate stops every process: SIGTERM to each group, then SIGKILL to
// the groups still running after the stop timeout. Safe to call more than
// once and concurrently; later calls return the result of the first.
func (s *Supervisor) Terminate(ctx context.Context) error {
	s.terminateOnce.Do(func() {
		s.lock.Lock()
		s.terminating.Store(true)
		processes := slices.Clone(s.processes)
		s.lock.Unlock()

		// Stop dependents first
		slices.Reverse(processes)
		var eg errgroup.Group
		for _, p := range processes {
			eg.Go(func() error {
				return s.stopProcess(ctx, p)
			})
		}
		s.terminateErr = eg.Wait()
	})
	return s.terminateErr
}

func (s *Supervisor) stopProcess(ctx context.Context, p *process) error {
	pid := p.cmd.Process.Pid
	if !p.exited() {
		s.log.Info("sending SIGTERM to process group",
			zap.String("process", p.name),
			zap.Int("pid", pid),
		)
		if err := stopProcessGroup(pid); err != nil {
			return err
		}

		timer := time.NewTimer(s.stopTimeout)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			s.log.Warn("process did not stop in time, sending SIGKILL",
				zap.String("process", p.name),
				zap.Int("pid", pid),
				zap.Duration("stopTimeout", s.stopTimeout),
			)
		case <-ctx.Done():
			s.log.Warn("stop cancelled, sending SIGKILL",
				zap.String("process", p.name),
				zap.Int("pid", pid),
			)
		}
	}

	// Once reaped, the group was already swept
	if !p.exited() {
		if err := killProcessGroup(pid); err != nil {
			return err
		}
	}
	<-p.done
	s.log.Info("process stopped",
		zap.String("process", p.name),
		zap.Int("pid", pid),
	)
	return nil
}

// Output returns the retained tail of the output of [name].
func (s *Supervisor) Output(name string) string {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, p := range s.processes {
		if p.name == name {
			return p.tail.String()
		}
	}
	return ""
}

// Running returns the names of the processes that have not exited.
func (s *Supervisor) Running() []string {
	s.lock.Lock()
	defer s.lock.Unlock()

	var names []string
	for _, p := range s.processes {
		if !p.exited() {
			names = append(names, p.name)
		}
	}
	return names
}

// tailBuffer retains the last bytes written to it.
type tailBuffer struct {
	lock sync.Mutex
	size int
	buf  []byte
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{
		size: size,
		buf:  make([]byte, 0, size),
	}
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	n := len(b)
	if n >= t.size {
		t.buf = append(t.buf[:0], b[n-t.size:]...)
		return n, nil
	}
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.size; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return string(t.buf)
}
