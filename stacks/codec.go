// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stacks

import (
	"errors"
	"fmt"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
	"github.com/stacks-network/stacks-devnet/utils/hashing"
	"github.com/stacks-network/stacks-devnet/utils/wrappers"
)

const (
	// MaxTransactionSize bounds a serialized transaction.
	MaxTransactionSize = 2 * 1024 * 1024

	maxNameLen     = 128
	maxCodeBodyLen = MaxTransactionSize

	principalOrigin   = 0x01
	principalStandard = 0x02
	principalContract = 0x03
)

var (
	ErrInvalidAuthType      = errors.New("invalid authorization type")
	ErrInvalidHashMode      = errors.New("invalid hash mode")
	ErrTrailingBytes        = errors.New("trailing bytes after transaction")
	errInvalidPrincipal     = errors.New("invalid principal")
	errInvalidAuthField     = errors.New("invalid auth field")
	errNameTooLong          = errors.New("name too long")
	errMissingPayload       = errors.New("missing payload")
	errInvalidPostCondition = errors.New("invalid post-condition type")
)

// Marshal returns the wire encoding of [tx].
func Marshal(tx *Transaction) ([]byte, error) {
	p := wrappers.Packer{MaxSize: MaxTransactionSize}
	packTransaction(&p, tx)
	return p.Bytes, p.Err
}

// Unmarshal parses a complete transaction.
func Unmarshal(b []byte) (*Transaction, error) {
	p := wrappers.Packer{Bytes: b}
	tx := unpackTransaction(&p)
	if p.Err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", p.Err)
	}
	if p.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, p.Remaining())
	}
	return tx, nil
}

// ID returns the txid of [tx].
func (tx *Transaction) ID() (TxID, error) {
	b, err := Marshal(tx)
	if err != nil {
		return TxID{}, err
	}
	return TxID(hashing.ComputeSha512_256(b)), nil
}

func packTransaction(p *wrappers.Packer, tx *Transaction) {
	p.PackByte(byte(tx.Version))
	p.PackInt(tx.ChainID)
	packAuthorization(p, &tx.Auth)
	p.PackByte(byte(tx.AnchorMode))
	p.PackByte(byte(tx.PostConditionMode))
	p.PackInt(uint32(len(tx.PostConditions)))
	for i := range tx.PostConditions {
		packPostCondition(p, &tx.PostConditions[i])
	}
	packPayload(p, tx.Payload)
}

func unpackTransaction(p *wrappers.Packer) *Transaction {
	tx := &Transaction{
		Version: TransactionVersion(p.UnpackByte()),
		ChainID: p.UnpackInt(),
	}
	tx.Auth = unpackAuthorization(p)
	tx.AnchorMode = AnchorMode(p.UnpackByte())
	tx.PostConditionMode = PostConditionMode(p.UnpackByte())
	n := p.UnpackInt()
	if p.Errored() {
		return nil
	}
	if int(n) > p.Remaining() {
		p.Add(wrappers.ErrInsufficientLength)
		return nil
	}
	for i := uint32(0); i < n && !p.Errored(); i++ {
		tx.PostConditions = append(tx.PostConditions, unpackPostCondition(p))
	}
	tx.Payload = unpackPayload(p)
	return tx
}

func packAuthorization(p *wrappers.Packer, auth *Authorization) {
	p.PackByte(byte(auth.Type))
	packSpendingCondition(p, &auth.Origin)
	switch auth.Type {
	case AuthStandard:
	case AuthSponsored:
		if auth.Sponsor == nil {
			p.Add(fmt.Errorf("%w: sponsored without sponsor", ErrInvalidAuthType))
			return
		}
		packSpendingCondition(p, auth.Sponsor)
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", ErrInvalidAuthType, byte(auth.Type)))
	}
}

func unpackAuthorization(p *wrappers.Packer) Authorization {
	auth := Authorization{Type: AuthType(p.UnpackByte())}
	auth.Origin = unpackSpendingCondition(p)
	switch auth.Type {
	case AuthStandard:
	case AuthSponsored:
		sponsor := unpackSpendingCondition(p)
		auth.Sponsor = &sponsor
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", ErrInvalidAuthType, byte(auth.Type)))
	}
	return auth
}

func packSpendingCondition(p *wrappers.Packer, c *SpendingCondition) {
	p.PackByte(byte(c.HashMode))
	p.PackFixedBytes(c.Signer[:])
	p.PackLong(c.Nonce)
	p.PackLong(c.Fee)
	switch c.HashMode {
	case HashModeP2PKH, HashModeP2WPKH:
		p.PackByte(byte(c.KeyEncoding))
		p.PackFixedBytes(c.Signature[:])
	case HashModeP2SH, HashModeP2WSH:
		p.PackInt(uint32(len(c.Fields)))
		for _, f := range c.Fields {
			if len(f.Data) != authFieldLen(f.Type) {
				p.Add(fmt.Errorf("%w: type 0x%02x with %d bytes", errInvalidAuthField, byte(f.Type), len(f.Data)))
				return
			}
			p.PackByte(byte(f.Type))
			p.PackFixedBytes(f.Data)
		}
		p.PackShort(c.SignaturesRequired)
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", ErrInvalidHashMode, byte(c.HashMode)))
	}
}

func unpackSpendingCondition(p *wrappers.Packer) SpendingCondition {
	c := SpendingCondition{HashMode: HashMode(p.UnpackByte())}
	copy(c.Signer[:], p.UnpackFixedBytes(hashing.AddrLen))
	c.Nonce = p.UnpackLong()
	c.Fee = p.UnpackLong()
	if p.Errored() {
		return c
	}
	switch c.HashMode {
	case HashModeP2PKH, HashModeP2WPKH:
		c.KeyEncoding = KeyEncoding(p.UnpackByte())
		copy(c.Signature[:], p.UnpackFixedBytes(secp256k1.SignatureLen))
	case HashModeP2SH, HashModeP2WSH:
		n := p.UnpackInt()
		if p.Errored() {
			return c
		}
		if int(n) > p.Remaining() {
			p.Add(wrappers.ErrInsufficientLength)
			return c
		}
		for i := uint32(0); i < n && !p.Errored(); i++ {
			fieldType := AuthFieldType(p.UnpackByte())
			size := authFieldLen(fieldType)
			if size == 0 {
				p.Add(fmt.Errorf("%w: type 0x%02x", errInvalidAuthField, byte(fieldType)))
				return c
			}
			data := p.UnpackFixedBytes(size)
			c.Fields = append(c.Fields, AuthField{Type: fieldType, Data: append([]byte(nil), data...)})
		}
		c.SignaturesRequired = p.UnpackShort()
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", ErrInvalidHashMode, byte(c.HashMode)))
	}
	return c
}

func authFieldLen(t AuthFieldType) int {
	switch t {
	case AuthFieldPublicKeyCompressed, AuthFieldPublicKeyUncompressed:
		return secp256k1.PublicKeyLen
	case AuthFieldSignatureCompressed, AuthFieldSignatureUncompressed:
		return secp256k1.SignatureLen
	default:
		return 0
	}
}

func packPostCondition(p *wrappers.Packer, pc *PostCondition) {
	p.PackByte(byte(pc.Type))
	packPostConditionPrincipal(p, pc.Principal)
	switch pc.Type {
	case PostConditionSTX:
		p.PackByte(pc.Code)
		p.PackLong(pc.Amount)
	case PostConditionFungible:
		packAssetInfo(p, &pc.Asset)
		p.PackByte(pc.Code)
		p.PackLong(pc.Amount)
	case PostConditionNonFungible:
		packAssetInfo(p, &pc.Asset)
		clarity.Pack(p, pc.AssetValue)
		p.PackByte(pc.Code)
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", errInvalidPostCondition, byte(pc.Type)))
	}
}

func unpackPostCondition(p *wrappers.Packer) PostCondition {
	pc := PostCondition{Type: PostConditionType(p.UnpackByte())}
	pc.Principal = unpackPostConditionPrincipal(p)
	switch pc.Type {
	case PostConditionSTX:
		pc.Code = p.UnpackByte()
		pc.Amount = p.UnpackLong()
	case PostConditionFungible:
		pc.Asset = unpackAssetInfo(p)
		pc.Code = p.UnpackByte()
		pc.Amount = p.UnpackLong()
	case PostConditionNonFungible:
		pc.Asset = unpackAssetInfo(p)
		pc.AssetValue = clarity.Unpack(p)
		pc.Code = p.UnpackByte()
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", errInvalidPostCondition, byte(pc.Type)))
	}
	return pc
}

func packPostConditionPrincipal(p *wrappers.Packer, principal clarity.Value) {
	switch principal := principal.(type) {
	case nil:
		p.PackByte(principalOrigin)
	case clarity.StandardPrincipal:
		p.PackByte(principalStandard)
		packAddress(p, principal)
	case clarity.ContractPrincipal:
		p.PackByte(principalContract)
		packAddress(p, principal.Issuer)
		packName(p, principal.Name)
	default:
		p.Add(fmt.Errorf("%w: %T", errInvalidPrincipal, principal))
	}
}

func unpackPostConditionPrincipal(p *wrappers.Packer) clarity.Value {
	switch kind := p.UnpackByte(); kind {
	case principalOrigin:
		return nil
	case principalStandard:
		return unpackAddress(p)
	case principalContract:
		issuer := unpackAddress(p)
		return clarity.ContractPrincipal{Issuer: issuer, Name: unpackName(p)}
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", errInvalidPrincipal, kind))
		return nil
	}
}

func packAssetInfo(p *wrappers.Packer, a *AssetInfo) {
	packAddress(p, a.Contract.Issuer)
	packName(p, a.Contract.Name)
	packName(p, a.Name)
}

func unpackAssetInfo(p *wrappers.Packer) AssetInfo {
	issuer := unpackAddress(p)
	contract := unpackName(p)
	return AssetInfo{
		Contract: clarity.ContractPrincipal{Issuer: issuer, Name: contract},
		Name:     unpackName(p),
	}
}

func packPayload(p *wrappers.Packer, payload Payload) {
	if payload == nil {
		p.Add(errMissingPayload)
		return
	}
	p.PackByte(byte(payload.Type()))
	switch payload := payload.(type) {
	case *TokenTransfer:
		packPrincipalValue(p, payload.Recipient)
		p.PackLong(payload.Amount)
		p.PackFixedBytes(payload.Memo[:])
	case *SmartContract:
		if payload.ClarityVersion != ClarityUnversioned {
			p.PackByte(byte(payload.ClarityVersion))
		}
		packName(p, payload.Name)
		if len(payload.Code) > maxCodeBodyLen {
			p.Add(fmt.Errorf("code body too large: %d bytes", len(payload.Code)))
			return
		}
		p.PackBytes([]byte(payload.Code))
	case *ContractCall:
		packAddress(p, payload.Contract.Issuer)
		packName(p, payload.Contract.Name)
		packName(p, payload.Function)
		p.PackInt(uint32(len(payload.Args)))
		for _, arg := range payload.Args {
			clarity.Pack(p, arg)
		}
	case *Coinbase:
		p.PackFixedBytes(payload.Buffer[:])
		if payload.Recipient != nil {
			packPrincipalValue(p, payload.Recipient)
		}
	default:
		p.Add(fmt.Errorf("%w: %T", ErrUnsupportedPayload, payload))
	}
}

func unpackPayload(p *wrappers.Packer) Payload {
	payloadType := PayloadType(p.UnpackByte())
	if p.Errored() {
		return nil
	}
	switch payloadType {
	case PayloadTokenTransfer:
		payload := &TokenTransfer{Recipient: unpackPrincipalValue(p)}
		payload.Amount = p.UnpackLong()
		copy(payload.Memo[:], p.UnpackFixedBytes(MemoLen))
		return payload
	case PayloadSmartContract, PayloadVersionedSmartContract:
		payload := &SmartContract{}
		if payloadType == PayloadVersionedSmartContract {
			payload.ClarityVersion = ClarityVersion(p.UnpackByte())
		}
		payload.Name = unpackName(p)
		payload.Code = string(p.UnpackLimitedBytes(maxCodeBodyLen))
		return payload
	case PayloadContractCall:
		issuer := unpackAddress(p)
		name := unpackName(p)
		payload := &ContractCall{
			Contract: clarity.ContractPrincipal{Issuer: issuer, Name: name},
			Function: unpackName(p),
		}
		n := p.UnpackInt()
		if p.Errored() {
			return nil
		}
		if int(n) > p.Remaining() {
			p.Add(wrappers.ErrInsufficientLength)
			return nil
		}
		for i := uint32(0); i < n && !p.Errored(); i++ {
			payload.Args = append(payload.Args, clarity.Unpack(p))
		}
		return payload
	case PayloadCoinbase, PayloadCoinbaseToAltRecipient:
		payload := &Coinbase{}
		copy(payload.Buffer[:], p.UnpackFixedBytes(CoinbaseBufferLen))
		if payloadType == PayloadCoinbaseToAltRecipient {
			payload.Recipient = unpackPrincipalValue(p)
		}
		return payload
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", ErrUnsupportedPayload, byte(payloadType)))
		return nil
	}
}

// packPrincipalValue writes a principal as a full Clarity value.
func packPrincipalValue(p *wrappers.Packer, v clarity.Value) {
	switch v.(type) {
	case clarity.StandardPrincipal, clarity.ContractPrincipal:
		clarity.Pack(p, v)
	default:
		p.Add(fmt.Errorf("%w: %T", errInvalidPrincipal, v))
	}
}

func unpackPrincipalValue(p *wrappers.Packer) clarity.Value {
	v := clarity.Unpack(p)
	switch v.(type) {
	case clarity.StandardPrincipal, clarity.ContractPrincipal:
		return v
	default:
		if !p.Errored() {
			p.Add(fmt.Errorf("%w: %T", errInvalidPrincipal, v))
		}
		return nil
	}
}

func packAddress(p *wrappers.Packer, a clarity.StandardPrincipal) {
	p.PackByte(a.Version)
	p.PackFixedBytes(a.Hash[:])
}

func unpackAddress(p *wrappers.Packer) clarity.StandardPrincipal {
	a := clarity.StandardPrincipal{Version: p.UnpackByte()}
	copy(a.Hash[:], p.UnpackFixedBytes(hashing.AddrLen))
	return a
}

func packName(p *wrappers.Packer, name string) {
	if len(name) > maxNameLen {
		p.Add(fmt.Errorf("%w: %q", errNameTooLong, name))
		return
	}
	p.PackByte(byte(len(name)))
	p.PackFixedBytes([]byte(name))
}

func unpackName(p *wrappers.Packer) string {
	n := p.UnpackByte()
	if int(n) > maxNameLen {
		p.Add(fmt.Errorf("%w: %d bytes", errNameTooLong, n))
		return ""
	}
	return string(p.UnpackFixedBytes(int(n)))
}
