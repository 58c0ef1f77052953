// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tests

import (
	"os"

	"github.com/stacks-network/stacks-devnet/utils/logging"
)

func NewDefaultLogger(prefix string) logging.Logger {
	log, err := LoggerForFormat(prefix, logging.AutoString)
	if err != nil {
		// This should never happen since auto is a valid log format
		panic(err)
	}
	return log
}

// LoggerForFormat returns a debug-level logger writing to stdout in the
// named format.
func LoggerForFormat(prefix string, rawLogFormat string) (logging.Logger, error) {
	writeCloser := os.Stdout
	logFormat, err := logging.ToFormat(rawLogFormat, writeCloser.Fd())
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(prefix, logging.NewWrappedCore(logging.Debug, writeCloser, logFormat.ConsoleEncoder())), nil
}
