// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package e2e

import (
	ginkgo "github.com/onsi/ginkgo/v2"
)

// DescribeClarity annotates the tests of Clarity language features.
func DescribeClarity(text string, args ...interface{}) bool {
	return ginkgo.Describe("[Clarity] "+text, args...)
}

// DescribeNetwork annotates the tests of network orchestration.
func DescribeNetwork(text string, args ...interface{}) bool {
	return ginkgo.Describe("[Network] "+text, args...)
}
