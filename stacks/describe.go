// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stacks

import (
	"fmt"
	"strings"

	"github.com/stacks-network/stacks-devnet/clarity"
)

func (t PayloadType) String() string {
	switch t {
	case PayloadTokenTransfer:
		return "token_transfer"
	case PayloadSmartContract:
		return "smart_contract"
	case PayloadContractCall:
		return "contract_call"
	case PayloadPoisonMicroblock:
		return "poison_microblock"
	case PayloadCoinbase:
		return "coinbase"
	case PayloadCoinbaseToAltRecipient:
		return "coinbase_to_alt_recipient"
	case PayloadVersionedSmartContract:
		return "versioned_smart_contract"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Describe renders the one line summary devnet reports for a transaction:
//
//	deployed: ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.counter
//	invoked: ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.counter::increment(u1)
//	transferred: 100 uSTX to ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5
//	coinbase
func Describe(tx *Transaction) string {
	switch payload := tx.Payload.(type) {
	case *SmartContract:
		contract := clarity.ContractPrincipal{Issuer: tx.Sender(), Name: payload.Name}
		return "deployed: " + contract.ID()
	case *ContractCall:
		args := make([]string, len(payload.Args))
		for i, arg := range payload.Args {
			args[i] = arg.String()
		}
		return fmt.Sprintf("invoked: %s::%s(%s)", payload.Contract.ID(), payload.Function, strings.Join(args, ", "))
	case *TokenTransfer:
		return fmt.Sprintf("transferred: %d uSTX to %s", payload.Amount, principalID(payload.Recipient))
	case *Coinbase:
		return "coinbase"
	case nil:
		return "unknown"
	default:
		return payload.Type().String()
	}
}

func principalID(v clarity.Value) string {
	switch v := v.(type) {
	case clarity.StandardPrincipal:
		return v.Address()
	case clarity.ContractPrincipal:
		return v.ID()
	default:
		return fmt.Sprint(v)
	}
}
