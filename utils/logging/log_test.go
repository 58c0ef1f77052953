// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type bufferCloser struct {
	bytes.Buffer
}

func (*bufferCloser) Close() error {
	return nil
}

func TestLog(t *testing.T) {
	log := NewLogger("", NewWrappedCore(Info, Discard, Plain.ConsoleEncoder()))

	recovered := new(bool)
	panicFunc := func() {
		panic("DON'T PANIC!")
	}
	exitFunc := func() {
		*recovered = true
	}
	log.RecoverAndExit(panicFunc, exitFunc)

	require.True(t, *recovered)
}

func TestLogLevels(t *testing.T) {
	require := require.New(t)

	buf := &bufferCloser{}
	log := NewLogger("devnet", NewWrappedCore(Info, buf, JSON.ConsoleEncoder()))

	log.Debug("hidden")
	require.Zero(buf.Len())

	log.Info("shown", zap.Uint64("height", 101))
	require.Contains(buf.String(), `"msg":"shown"`)
	require.Contains(buf.String(), `"height":101`)
	require.Contains(buf.String(), `"level":"INFO"`)
	require.Contains(buf.String(), `"logger":"devnet"`)

	buf.Reset()
	log.SetLevel(Debug)
	require.True(log.Enabled(Debug))
	require.False(log.Enabled(Verbo))
	log.Debug("now shown")
	require.Contains(buf.String(), "now shown")

	buf.Reset()
	log.With(zap.String("process", "bitcoind")).Warn("exited")
	require.Contains(buf.String(), `"process":"bitcoind"`)
}

func TestFatalDoesNotExit(t *testing.T) {
	buf := &bufferCloser{}
	log := NewLogger("", NewWrappedCore(Info, buf, Plain.ConsoleEncoder()))

	log.Fatal("still running")
	require.Contains(t, buf.String(), "FATAL")
}

func TestToLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected Level
	}{
		{in: "off", expected: Off},
		{in: "FATAL", expected: Fatal},
		{in: "error", expected: Error},
		{in: "Warn", expected: Warn},
		{in: "info", expected: Info},
		{in: "trace", expected: Trace},
		{in: "debug", expected: Debug},
		{in: "verbo", expected: Verbo},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			require := require.New(t)

			level, err := ToLevel(test.in)
			require.NoError(err)
			require.Equal(test.expected, level)

			roundTripped, err := ToLevel(level.String())
			require.NoError(err)
			require.Equal(level, roundTripped)
		})
	}

	_, err := ToLevel("loud")
	require.ErrorContains(t, err, "unknown log level")
}

func TestLevelJSON(t *testing.T) {
	require := require.New(t)

	b, err := Warn.MarshalJSON()
	require.NoError(err)
	require.Equal(`"WARN"`, string(b))

	var level Level
	require.NoError(level.UnmarshalJSON([]byte(`"debug"`)))
	require.Equal(Debug, level)
}

func TestToFormat(t *testing.T) {
	require := require.New(t)

	for _, format := range []Format{Plain, Colors, JSON} {
		parsed, err := ToFormat(format.String(), 0)
		require.NoError(err)
		require.Equal(format, parsed)
	}

	_, err := ToFormat("fancy", 0)
	require.ErrorContains(err, "unknown log format")
}
