// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Format modes available
const (
	Plain Format = iota
	Colors
	JSON

	termTimeFormat = "[01-02|15:04:05.000]"

	AutoString        = "auto"
	plainString       = "plain"
	colorsString      = "colors"
	jsonString        = "json"
	FormatDescription = "The log format. Options are auto, plain, colors and json. Auto picks colors when writing to a terminal and plain otherwise."
)

// Format to apply to logs
type Format int

// ToFormat chooses a log format from its name. [fd] is consulted to
// resolve "auto".
func ToFormat(h string, fd uintptr) (Format, error) {
	switch strings.ToLower(h) {
	case plainString:
		return Plain, nil
	case colorsString:
		return Colors, nil
	case jsonString:
		return JSON, nil
	case AutoString:
		if !term.IsTerminal(int(fd)) {
			return Plain, nil
		}
		return Colors, nil
	default:
		return Plain, fmt.Errorf("unknown log format: %q", h)
	}
}

func (f Format) String() string {
	switch f {
	case Plain:
		return plainString
	case Colors:
		return colorsString
	case JSON:
		return jsonString
	default:
		return unknownStr
	}
}

func (f Format) ConsoleEncoder() zapcore.Encoder {
	switch f {
	case Colors:
		return zapcore.NewConsoleEncoder(newTermEncoderConfig(consoleColorLevelEncoder))
	case JSON:
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	default:
		return zapcore.NewConsoleEncoder(newTermEncoderConfig(levelEncoder))
	}
}

// FileEncoder never emits color codes.
func (f Format) FileEncoder() zapcore.Encoder {
	if f == JSON {
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	}
	return zapcore.NewConsoleEncoder(newTermEncoderConfig(levelEncoder))
}

func newTermEncoderConfig(lvlEncoder zapcore.LevelEncoder) zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.EncodeLevel = lvlEncoder
	config.EncodeTime = zapcore.TimeEncoderOfLayout(termTimeFormat)
	config.ConsoleSeparator = " "
	return config
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.EncodeLevel = levelEncoder
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	config.EncodeDuration = zapcore.StringDurationEncoder
	return config
}

func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(Level(l).String())
}

func consoleColorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	s, ok := levelToCapitalColorString[Level(l)]
	if !ok {
		s = unknownLevelColor.wrap(unknownStr)
	}
	enc.AppendString(s)
}

var (
	levelToCapitalColorString = func() map[Level]string {
		m := make(map[Level]string, 7)
		for _, level := range []Level{Verbo, Debug, Trace, Info, Warn, Error, Fatal} {
			m[level] = level.color().wrap(level.String())
		}
		return m
	}()
	unknownLevelColor = red
)
