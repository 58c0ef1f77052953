// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stacks

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
)

var (
	errMissingKey  = errors.New("missing sender key")
	errMissingName = errors.New("missing name")
	errMemoTooLong = errors.New("memo too long")
)

// TxOptions are the fields shared by every builder.
type TxOptions struct {
	Nonce uint64
	Fee   uint64
	// Network defaults to TestnetNetwork.
	Network Network
	// AnchorMode defaults to AnchorModeAny.
	AnchorMode AnchorMode
	// PostConditionMode defaults to PostConditionModeAllow.
	PostConditionMode PostConditionMode
	PostConditions    []PostCondition
}

type ContractDeployParams struct {
	SenderKey      *secp256k1.PrivateKey
	Name           string
	Code           string
	ClarityVersion ClarityVersion
	TxOptions
}

type ContractCallParams struct {
	SenderKey *secp256k1.PrivateKey
	Contract  clarity.ContractPrincipal
	Function  string
	Args      []clarity.Value
	TxOptions
}

type TokenTransferParams struct {
	SenderKey *secp256k1.PrivateKey
	Recipient clarity.Value
	Amount    uint64
	Memo      string
	TxOptions
}

// Builder builds and signs single-sig transactions in process.
type Builder struct{}

func (Builder) MakeContractDeploy(_ context.Context, params ContractDeployParams) (*Transaction, error) {
	return MakeContractDeploy(params)
}

func (Builder) MakeContractCall(_ context.Context, params ContractCallParams) (*Transaction, error) {
	return MakeContractCall(params)
}

func MakeContractDeploy(params ContractDeployParams) (*Transaction, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("%w: contract", errMissingName)
	}
	return makeSigned(params.SenderKey, params.TxOptions, &SmartContract{
		Name:           params.Name,
		Code:           params.Code,
		ClarityVersion: params.ClarityVersion,
	})
}

func MakeContractCall(params ContractCallParams) (*Transaction, error) {
	if params.Function == "" {
		return nil, fmt.Errorf("%w: function", errMissingName)
	}
	return makeSigned(params.SenderKey, params.TxOptions, &ContractCall{
		Contract: params.Contract,
		Function: params.Function,
		Args:     params.Args,
	})
}

func MakeTokenTransfer(params TokenTransferParams) (*Transaction, error) {
	if len(params.Memo) > MemoLen {
		return nil, fmt.Errorf("%w: %d bytes", errMemoTooLong, len(params.Memo))
	}
	payload := &TokenTransfer{
		Recipient: params.Recipient,
		Amount:    params.Amount,
	}
	copy(payload.Memo[:], params.Memo)
	return makeSigned(params.SenderKey, params.TxOptions, payload)
}

func makeSigned(sk *secp256k1.PrivateKey, opts TxOptions, payload Payload) (*Transaction, error) {
	if sk == nil {
		return nil, errMissingKey
	}
	network := opts.Network
	if network.ChainID == 0 {
		network = TestnetNetwork
	}
	anchorMode := opts.AnchorMode
	if anchorMode == 0 {
		anchorMode = AnchorModeAny
	}
	postConditionMode := opts.PostConditionMode
	if postConditionMode == 0 {
		postConditionMode = PostConditionModeAllow
	}

	tx := &Transaction{
		Version: network.Version,
		ChainID: network.ChainID,
		Auth: Authorization{
			Type: AuthStandard,
			Origin: SpendingCondition{
				HashMode: HashModeP2PKH,
				Signer:   sk.Address(),
				Nonce:    opts.Nonce,
				Fee:      opts.Fee,
			},
		},
		AnchorMode:        anchorMode,
		PostConditionMode: postConditionMode,
		PostConditions:    opts.PostConditions,
		Payload:           payload,
	}
	if err := tx.SignOrigin(sk); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}
