// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	rpc "github.com/gorilla/rpc/v2/json2"
)

// maxErrorBodySize bounds how much of a failed response is read when
// looking for a JSON-RPC error object.
const maxErrorBodySize = 64 * 1024

// CleanlyCloseBody avoids sending unnecessary RST_STREAM and PING frames by
// ensuring the whole body is read before being closed.
// See https://blog.cloudflare.com/go-and-enhance-your-calm/#reading-bodies-in-go-can-be-unintuitive
func CleanlyCloseBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// SendJSONRequest issues a JSON-RPC 2.0 call. A null result leaves [reply]
// untouched, which is how bitcoind answers calls that return nothing. [reply]
// may be nil when the result is not needed.
//
// Errors reported by the server are returned as *json2.Error so callers can
// inspect the code with errors.As.
func SendJSONRequest(
	ctx context.Context,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
	options ...Option,
) error {
	requestBodyBytes, err := rpc.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	ops := NewOptions(options)
	target := *uri
	if len(ops.queryParams) > 0 {
		target.RawQuery = ops.queryParams.Encode()
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		target.String(),
		bytes.NewBuffer(requestBodyBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	request.Header = ops.headers
	request.Header.Set("Content-Type", "application/json")

	//nolint:bodyclose // body is closed via CleanlyCloseBody
	resp, err := http.DefaultClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to issue request: %w", err)
	}
	defer CleanlyCloseBody(resp.Body)

	// Some servers (older bitcoind releases among them) report RPC errors
	// with a non-2xx status and a JSON-RPC error body.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		var rpcErr *rpc.Error
		if err := rpc.DecodeClientResponse(bytes.NewReader(body), &struct{}{}); errors.As(err, &rpcErr) {
			return rpcErr
		}
		return fmt.Errorf("received status code: %d", resp.StatusCode)
	}

	if reply == nil {
		var ignored interface{}
		reply = &ignored
	}
	if err := rpc.DecodeClientResponse(resp.Body, reply); err != nil {
		if errors.Is(err, rpc.ErrNullResult) {
			return nil
		}
		var rpcErr *rpc.Error
		if errors.As(err, &rpcErr) {
			return rpcErr
		}
		return fmt.Errorf("failed to decode client response: %w", err)
	}

	return nil
}
