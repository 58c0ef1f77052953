// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"fmt"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
)

// DefaultAccountBalance is the uSTX balance of every default account.
const DefaultAccountBalance = 100_000_000_000_000

// Keys of the well-known devnet accounts shipped with Clarinet.
const (
	DeployerKeyHex = "753b7cc01a1a2e86221266a154af739463fce51219d97e4f856cd7200c3bd2a601"
	Wallet1KeyHex  = "7287ba251d44a4d3fd9276c88ce34c5c52a038955511cccaf77e61068649c17801"
	Wallet2KeyHex  = "530d9f61984c888536871c6573073bdfc0058896dc1adfe9a6a10dfacadc209101"
	Wallet3KeyHex  = "d655b2523bcd65e34889725c73064feb17ceb796831c0e111ba1a552b0f31b3901"
)

// Account is a pre-funded testnet account.
type Account struct {
	Name       string `json:"name"`
	PrivateKey string `json:"privateKey"`
	Address    string `json:"address"`
	Balance    uint64 `json:"balance"`

	key *secp256k1.PrivateKey
}

// NewAccount derives the testnet address of a hex-encoded key.
func NewAccount(name string, keyHex string, balance uint64) (*Account, error) {
	sk, err := secp256k1.ParsePrivateKeyHex(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key for account %q: %w", name, err)
	}
	return &Account{
		Name:       name,
		PrivateKey: keyHex,
		Address:    stacks.TestnetNetwork.PrincipalForKey(sk.PublicKey()).Address(),
		Balance:    balance,
		key:        sk,
	}, nil
}

// Key returns the signing key of the account.
func (a *Account) Key() (*secp256k1.PrivateKey, error) {
	if a.key != nil {
		return a.key, nil
	}
	sk, err := secp256k1.ParsePrivateKeyHex(a.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid key for account %q: %w", a.Name, err)
	}
	a.key = sk
	return sk, nil
}

// Principal returns the account as a Clarity value.
func (a *Account) Principal() (clarity.StandardPrincipal, error) {
	return clarity.ParseStandardPrincipal(a.Address)
}

// DefaultAccounts returns the deployer and wallet_1 to wallet_3.
func DefaultAccounts() []*Account {
	accounts := make([]*Account, 0, 4)
	for _, a := range []struct {
		name string
		key  string
	}{
		{name: "deployer", key: DeployerKeyHex},
		{name: "wallet_1", key: Wallet1KeyHex},
		{name: "wallet_2", key: Wallet2KeyHex},
		{name: "wallet_3", key: Wallet3KeyHex},
	} {
		account, err := NewAccount(a.name, a.key, DefaultAccountBalance)
		if err != nil {
			panic(err)
		}
		accounts = append(accounts, account)
	}
	return accounts
}
