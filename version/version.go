// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import "fmt"

const Client = "stacks-devnet"

// GitCommit is set at link time with
// -ldflags "-X github.com/stacks-network/stacks-devnet/version.GitCommit=<sha>".
var GitCommit string

// Current describes this release of the orchestrator.
var Current = &Application{
	Name:  Client,
	Major: 0,
	Minor: 4,
	Patch: 0,
}

type Application struct {
	Name  string `json:"name"`
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Patch int    `json:"patch"`
}

func (a *Application) String() string {
	return fmt.Sprintf("%s/%d.%d.%d", a.Name, a.Major, a.Minor, a.Patch)
}

// String returns the version line printed by the CLI.
func String(commit string) string {
	if commit == "" {
		return Current.String() + "\n"
	}
	return fmt.Sprintf("%s [commit=%s]\n", Current, commit)
}
