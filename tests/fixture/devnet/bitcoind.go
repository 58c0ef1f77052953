// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/stacks-network/stacks-devnet/utils/rpc"
)

// bitcoind RPC error codes
const (
	rpcWalletError         = -4
	rpcInWarmup            = -28
	rpcWalletAlreadyLoaded = -35
)

const (
	bitcoindRegtestChain = "regtest"
	importAddressLabel   = "devnet"
)

// BlockchainInfo is the subset of getblockchaininfo a devnet reads.
type BlockchainInfo struct {
	Chain         string `json:"chain"`
	Blocks        uint64 `json:"blocks"`
	Headers       uint64 `json:"headers"`
	BestBlockHash string `json:"bestblockhash"`
}

// BitcoindClient is a JSON-RPC client of a regtest bitcoind.
type BitcoindClient struct {
	requester rpc.EndpointRequester
}

func NewBitcoindClient(uri string, username string, password string) *BitcoindClient {
	return &BitcoindClient{
		requester: rpc.NewEndpointRequester(uri, rpc.WithBasicAuth(username, password)),
	}
}

func (c *BitcoindClient) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	info := &BlockchainInfo{}
	err := c.requester.SendRequest(ctx, "getblockchaininfo", []interface{}{}, info)
	return info, err
}

func (c *BitcoindClient) GetBlockCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := c.requester.SendRequest(ctx, "getblockcount", []interface{}{}, &count)
	return count, err
}

func (c *BitcoindClient) GetBlockHash(ctx context.Context, height uint64) (string, error) {
	var hash string
	err := c.requester.SendRequest(ctx, "getblockhash", []interface{}{height}, &hash)
	return hash, err
}

// GenerateToAddress mines [n] blocks paying [address] and returns their
// hashes.
func (c *BitcoindClient) GenerateToAddress(ctx context.Context, n uint64, address string) ([]string, error) {
	var hashes []string
	err := c.requester.SendRequest(ctx, "generatetoaddress", []interface{}{n, address}, &hashes)
	return hashes, err
}

// EnsureWallet creates and loads [name], tolerating a wallet that already
// exists.
func (c *BitcoindClient) EnsureWallet(ctx context.Context, name string) error {
	// Legacy wallets support importaddress
	params := []interface{}{
		name,
		false, // disable_private_keys
		false, // blank
		"",    // passphrase
		false, // avoid_reuse
		false, // descriptors
	}
	err := c.requester.SendRequest(ctx, "createwallet", params, nil)
	if err == nil || isRPCError(err, rpcWalletError, rpcWalletAlreadyLoaded) {
		return nil
	}
	return fmt.Errorf("failed to create wallet %q: %w", name, err)
}

// ImportAddress adds a watch-only address to the loaded wallet.
func (c *BitcoindClient) ImportAddress(ctx context.Context, address string) error {
	err := c.requester.SendRequest(
		ctx,
		"importaddress",
		[]interface{}{address, importAddressLabel, false /* rescan */},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to import address %s: %w", address, err)
	}
	return nil
}

// isReady reports whether bitcoind serves RPC on the regtest chain.
func (c *BitcoindClient) isReady(ctx context.Context) (bool, error) {
	info, err := c.GetBlockchainInfo(ctx)
	if isRPCError(err, rpcInWarmup) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Chain != bitcoindRegtestChain {
		return false, fmt.Errorf("bitcoind is running chain %q, expected %q", info.Chain, bitcoindRegtestChain)
	}
	return true, nil
}

func isRPCError(err error, codes ...json2.ErrorCode) bool {
	var rpcErr *json2.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	for _, code := range codes {
		if rpcErr.Code == code {
			return true
		}
	}
	return false
}
