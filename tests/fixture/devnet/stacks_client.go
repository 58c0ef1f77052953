// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/holiman/uint256"

	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/rpc"
)

const maxResponseSize = 4 * 1024 * 1024

// NodeInfo is the subset of /v2/info a devnet reads.
type NodeInfo struct {
	PeerVersion     uint32 `json:"peer_version"`
	NetworkID       uint32 `json:"network_id"`
	ServerVersion   string `json:"server_version"`
	BurnBlockHeight uint64 `json:"burn_block_height"`
	StacksTipHeight uint64 `json:"stacks_tip_height"`
	StacksTip       string `json:"stacks_tip"`
}

// PoxInfo is the subset of /v2/pox a devnet reads.
type PoxInfo struct {
	ContractID                  string `json:"contract_id"`
	FirstBurnchainBlockHeight   uint64 `json:"first_burnchain_block_height"`
	CurrentBurnchainBlockHeight uint64 `json:"current_burnchain_block_height"`
	RewardCycleLength           uint64 `json:"reward_cycle_length"`
	RewardCycleID               uint64 `json:"reward_cycle_id"`
	MinAmountUstx               uint64 `json:"min_amount_ustx"`
}

// AccountInfo is the state of an account at the chain tip.
type AccountInfo struct {
	// Balance is hex encoded, as served by the node
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// BalanceValue decodes the uSTX balance.
func (a *AccountInfo) BalanceValue() (*uint256.Int, error) {
	s := strings.TrimPrefix(a.Balance, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balance %q: %w", a.Balance, err)
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("balance %q overflows 256 bits", a.Balance)
	}
	return new(uint256.Int).SetBytes(b), nil
}

// StacksClient is a client of the stacks-node RPC API. Requests are
// bounded by [DefaultRequestTimeout] in addition to their context.
type StacksClient struct {
	uri    string
	client *http.Client
}

func NewStacksClient(uri string) *StacksClient {
	return &StacksClient{
		uri:    strings.TrimSuffix(uri, "/"),
		client: &http.Client{Timeout: DefaultRequestTimeout},
	}
}

func (c *StacksClient) GetInfo(ctx context.Context) (*NodeInfo, error) {
	info := &NodeInfo{}
	return info, c.get(ctx, "/v2/info", info)
}

func (c *StacksClient) GetPoxInfo(ctx context.Context) (*PoxInfo, error) {
	info := &PoxInfo{}
	return info, c.get(ctx, "/v2/pox", info)
}

// GetAccount returns the balance and next nonce of [principal].
func (c *StacksClient) GetAccount(ctx context.Context, principal string) (*AccountInfo, error) {
	info := &AccountInfo{}
	return info, c.get(ctx, "/v2/accounts/"+url.PathEscape(principal)+"?proof=0", info)
}

// Broadcast submits [tx]. A refusal by the node is returned as
// *BroadcastRejected.
func (c *StacksClient) Broadcast(ctx context.Context, tx *stacks.Transaction) (stacks.TxID, error) {
	raw, err := stacks.Marshal(tx)
	if err != nil {
		return stacks.TxID{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri+"/v2/transactions", bytes.NewReader(raw))
	if err != nil {
		return stacks.TxID{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	//nolint:bodyclose // body is closed via CleanlyCloseBody
	resp, err := c.client.Do(req)
	if err != nil {
		return stacks.TxID{}, fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	defer rpc.CleanlyCloseBody(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return stacks.TxID{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		rejected := &BroadcastRejected{}
		if err := json.Unmarshal(body, rejected); err != nil || len(rejected.Reason) == 0 {
			return stacks.TxID{}, fmt.Errorf("broadcast failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		}
		if len(rejected.TxID) == 0 {
			if txID, err := tx.ID(); err == nil {
				rejected.TxID = txID.String()
			}
		}
		return stacks.TxID{}, rejected
	}

	var txIDStr string
	if err := json.Unmarshal(body, &txIDStr); err != nil {
		return stacks.TxID{}, fmt.Errorf("failed to decode broadcast response: %w", err)
	}
	return stacks.ParseTxID(txIDStr)
}

// isReady reports whether the node serves its RPC API.
func (c *StacksClient) isReady(ctx context.Context) (bool, error) {
	if _, err := c.GetInfo(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c *StacksClient) get(ctx context.Context, path string, reply interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	//nolint:bodyclose // body is closed via CleanlyCloseBody
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer rpc.CleanlyCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return fmt.Errorf("GET %s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(reply); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
