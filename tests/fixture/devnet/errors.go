// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConnectionLost matches every *ConnectionLostError.
	ErrConnectionLost = errors.New("connection to the network lost")
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("timed out")

	errBusClosed = errors.New("network terminated")
)

// ConfigError reports an invalid topology. It is always returned before any
// process is launched.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func newConfigError(field, reason string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(reason, args...)}
}

func (e *ConfigError) Error() string {
	msg := "invalid network config"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StartupError reports a process that failed to become ready. Output holds
// the tail of its combined stdout and stderr.
type StartupError struct {
	Process string
	Output  string
	Err     error
}

func (e *StartupError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s failed to start: %v", e.Process, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		sb.WriteString("\n--- output ---\n")
		sb.WriteString(out)
	}
	return sb.String()
}

func (e *StartupError) Unwrap() error { return e.Err }

// ConnectionLostError is delivered to every pending waiter once the network
// becomes unusable.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return ErrConnectionLost.Error()
	}
	return fmt.Sprintf("%s: %v", ErrConnectionLost, e.Cause)
}

func (e *ConnectionLostError) Is(target error) bool { return target == ErrConnectionLost }

func (e *ConnectionLostError) Unwrap() error { return e.Cause }

// TimeoutError reports a wait whose predicate never matched.
type TimeoutError struct {
	Waiting string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Waiting)
	}
	return "timed out waiting for " + e.Waiting
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// BroadcastRejected reports a transaction the node refused before inclusion.
type BroadcastRejected struct {
	TxID       string          `json:"txid"`
	Reason     string          `json:"reason"`
	ReasonData json.RawMessage `json:"reason_data,omitempty"`
	Message    string          `json:"error"`
}

func (e *BroadcastRejected) Error() string {
	msg := fmt.Sprintf("transaction %s rejected: %s", e.TxID, e.Reason)
	if len(e.ReasonData) > 0 {
		msg += " " + string(e.ReasonData)
	}
	return msg
}
