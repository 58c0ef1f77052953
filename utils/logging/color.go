// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

// ANSI escape sequences used to highlight log levels on a terminal.
type color string

const (
	red         color = "\033[0;31m"
	lightGreen  color = "\033[1;32m"
	orange      color = "\033[0;33m"
	yellow      color = "\033[1;33m"
	lightBlue   color = "\033[1;34m"
	lightPurple color = "\033[1;35m"

	reset color = "\033[0;0m"
)

func (c color) wrap(text string) string {
	return string(c) + text + string(reset)
}
