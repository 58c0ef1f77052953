// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"fmt"
	"net/url"
)

var _ EndpointRequester = (*endpointRequester)(nil)

// EndpointRequester issues JSON-RPC calls against a single endpoint with a
// fixed set of default options (e.g. credentials).
type EndpointRequester interface {
	SendRequest(ctx context.Context, method string, params interface{}, reply interface{}, options ...Option) error
}

type endpointRequester struct {
	uri      string
	defaults []Option
}

func NewEndpointRequester(uri string, defaults ...Option) EndpointRequester {
	return &endpointRequester{
		uri:      uri,
		defaults: defaults,
	}
}

func (e *endpointRequester) SendRequest(
	ctx context.Context,
	method string,
	params interface{},
	reply interface{},
	options ...Option,
) error {
	uri, err := url.Parse(e.uri)
	if err != nil {
		return fmt.Errorf("failed to parse endpoint %q: %w", e.uri, err)
	}
	ops := make([]Option, 0, len(e.defaults)+len(options))
	ops = append(ops, e.defaults...)
	ops = append(ops, options...)
	return SendJSONRequest(ctx, uri, method, params, reply, ops...)
}
