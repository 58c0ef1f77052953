// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package stacks implements the Stacks transaction wire format, single-sig
// signing and the builders used by the devnet contract helper.
package stacks

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
	"github.com/stacks-network/stacks-devnet/utils/formatting"
	"github.com/stacks-network/stacks-devnet/utils/hashing"
)

type TransactionVersion byte

const (
	Mainnet TransactionVersion = 0x00
	Testnet TransactionVersion = 0x80
)

const (
	ChainIDMainnet uint32 = 0x00000001
	ChainIDTestnet uint32 = 0x80000000
)

type AuthType byte

const (
	AuthStandard  AuthType = 0x04
	AuthSponsored AuthType = 0x05
)

type HashMode byte

const (
	HashModeP2PKH  HashMode = 0x00
	HashModeP2SH   HashMode = 0x01
	HashModeP2WPKH HashMode = 0x02
	HashModeP2WSH  HashMode = 0x03
)

func (m HashMode) singleSig() bool {
	return m == HashModeP2PKH || m == HashModeP2WPKH
}

type KeyEncoding byte

const (
	KeyEncodingCompressed   KeyEncoding = 0x00
	KeyEncodingUncompressed KeyEncoding = 0x01
)

// AuthFieldType tags the entries of a multisig spending condition.
type AuthFieldType byte

const (
	AuthFieldPublicKeyCompressed   AuthFieldType = 0x00
	AuthFieldPublicKeyUncompressed AuthFieldType = 0x01
	AuthFieldSignatureCompressed   AuthFieldType = 0x02
	AuthFieldSignatureUncompressed AuthFieldType = 0x03
)

type AnchorMode byte

const (
	AnchorModeOnChainOnly  AnchorMode = 0x01
	AnchorModeOffChainOnly AnchorMode = 0x02
	AnchorModeAny          AnchorMode = 0x03
)

type PostConditionMode byte

const (
	PostConditionModeAllow PostConditionMode = 0x01
	PostConditionModeDeny  PostConditionMode = 0x02
)

type PayloadType byte

const (
	PayloadTokenTransfer          PayloadType = 0x00
	PayloadSmartContract          PayloadType = 0x01
	PayloadContractCall           PayloadType = 0x02
	PayloadPoisonMicroblock       PayloadType = 0x03
	PayloadCoinbase               PayloadType = 0x04
	PayloadCoinbaseToAltRecipient PayloadType = 0x05
	PayloadVersionedSmartContract PayloadType = 0x06
)

// ClarityVersion is the language version a contract is deployed with. Zero
// means the node picks the default of the current epoch.
type ClarityVersion byte

const (
	ClarityUnversioned ClarityVersion = 0
	Clarity1           ClarityVersion = 1
	Clarity2           ClarityVersion = 2
)

func (v ClarityVersion) String() string {
	switch v {
	case ClarityUnversioned:
		return "default"
	case Clarity1:
		return "clarity1"
	case Clarity2:
		return "clarity2"
	default:
		return fmt.Sprintf("clarity(%d)", byte(v))
	}
}

const (
	MemoLen           = 34
	CoinbaseBufferLen = 32
)

var (
	ErrUnsupportedPayload = errors.New("unsupported payload type")
	errInvalidTxIDLen     = errors.New("invalid txid length")
)

// Network selects the transaction version, chain id and address versions.
type Network struct {
	Version TransactionVersion
	ChainID uint32
}

var (
	MainnetNetwork = Network{Version: Mainnet, ChainID: ChainIDMainnet}
	TestnetNetwork = Network{Version: Testnet, ChainID: ChainIDTestnet}
)

// SingleSigAddressVersion is the c32 version of single-sig addresses on [n].
func (n Network) SingleSigAddressVersion() byte {
	if n.Version == Mainnet {
		return formatting.MainnetSingleSig
	}
	return formatting.TestnetSingleSig
}

// MultiSigAddressVersion is the c32 version of multisig addresses on [n].
func (n Network) MultiSigAddressVersion() byte {
	if n.Version == Mainnet {
		return formatting.MainnetMultiSig
	}
	return formatting.TestnetMultiSig
}

// PrincipalForKey returns the single-sig principal that [pk] signs for.
func (n Network) PrincipalForKey(pk *secp256k1.PublicKey) clarity.StandardPrincipal {
	return clarity.StandardPrincipal{Version: n.SingleSigAddressVersion(), Hash: pk.Address()}
}

type AuthField struct {
	Type AuthFieldType
	// 33 byte public key or 65 byte signature.
	Data []byte
}

// SpendingCondition authorizes the origin (or sponsor) of a transaction.
// Single-sig conditions use KeyEncoding and Signature; multisig ones use
// Fields and SignaturesRequired.
type SpendingCondition struct {
	HashMode HashMode
	Signer   hashing.Hash160
	Nonce    uint64
	Fee      uint64

	KeyEncoding KeyEncoding
	Signature   [secp256k1.SignatureLen]byte

	Fields             []AuthField
	SignaturesRequired uint16
}

type Authorization struct {
	Type    AuthType
	Origin  SpendingCondition
	Sponsor *SpendingCondition
}

type PostConditionType byte

const (
	PostConditionSTX         PostConditionType = 0x00
	PostConditionFungible    PostConditionType = 0x01
	PostConditionNonFungible PostConditionType = 0x02
)

type AssetInfo struct {
	Contract clarity.ContractPrincipal
	Name     string
}

// PostCondition constrains the assets a transaction may move. A nil
// Principal stands for the transaction origin.
type PostCondition struct {
	Type       PostConditionType
	Principal  clarity.Value
	Asset      AssetInfo
	AssetValue clarity.Value
	Code       byte
	Amount     uint64
}

type Payload interface {
	Type() PayloadType
}

type TokenTransfer struct {
	// Recipient is a clarity.StandardPrincipal or clarity.ContractPrincipal.
	Recipient clarity.Value
	Amount    uint64
	Memo      [MemoLen]byte
}

func (*TokenTransfer) Type() PayloadType { return PayloadTokenTransfer }

type SmartContract struct {
	Name string
	Code string
	// ClarityVersion is encoded only for versioned deploys.
	ClarityVersion ClarityVersion
}

func (s *SmartContract) Type() PayloadType {
	if s.ClarityVersion != ClarityUnversioned {
		return PayloadVersionedSmartContract
	}
	return PayloadSmartContract
}

type ContractCall struct {
	Contract clarity.ContractPrincipal
	Function string
	Args     []clarity.Value
}

func (*ContractCall) Type() PayloadType { return PayloadContractCall }

type Coinbase struct {
	Buffer [CoinbaseBufferLen]byte
	// Recipient is set only for coinbase-to-alt-recipient.
	Recipient clarity.Value
}

func (c *Coinbase) Type() PayloadType {
	if c.Recipient != nil {
		return PayloadCoinbaseToAltRecipient
	}
	return PayloadCoinbase
}

type Transaction struct {
	Version           TransactionVersion
	ChainID           uint32
	Auth              Authorization
	AnchorMode        AnchorMode
	PostConditionMode PostConditionMode
	PostConditions    []PostCondition
	Payload           Payload
}

// Network returns the network the transaction was built for.
func (tx *Transaction) Network() Network {
	return Network{Version: tx.Version, ChainID: tx.ChainID}
}

// Sender returns the origin principal.
func (tx *Transaction) Sender() clarity.StandardPrincipal {
	version := tx.Network().SingleSigAddressVersion()
	if !tx.Auth.Origin.HashMode.singleSig() {
		version = tx.Network().MultiSigAddressVersion()
	}
	return clarity.StandardPrincipal{Version: version, Hash: tx.Auth.Origin.Signer}
}

// TxID is the sha512/256 digest of the serialized transaction.
type TxID hashing.Hash256

// ParseTxID accepts hex with or without the 0x prefix.
func ParseTxID(s string) (TxID, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return TxID{}, fmt.Errorf("failed to decode txid: %w", err)
	}
	if len(b) != hashing.HashLen {
		return TxID{}, fmt.Errorf("%w: %d", errInvalidTxIDLen, len(b))
	}
	var id TxID
	copy(id[:], b)
	return id, nil
}

// String returns the 0x-prefixed hex form used in node events.
func (id TxID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id TxID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TxID) UnmarshalText(text []byte) error {
	parsed, err := ParseTxID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
