// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clarity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/stacks-network/stacks-devnet/utils/hashing"
	"github.com/stacks-network/stacks-devnet/utils/wrappers"
)

const (
	// MaxValueSize bounds a serialized value.
	MaxValueSize = 1024 * 1024
	// MaxDepth bounds the nesting of lists, tuples, optionals and responses.
	MaxDepth = 32

	int128Len = 16
)

var (
	ErrUnknownType   = errors.New("unknown clarity type")
	ErrMaxDepth      = errors.New("exceeded max nesting depth")
	ErrTrailingBytes = errors.New("trailing bytes after value")
)

// Serialize returns the consensus serialization of [v].
func Serialize(v Value) ([]byte, error) {
	p := wrappers.Packer{MaxSize: MaxValueSize}
	Pack(&p, v)
	return p.Bytes, p.Err
}

// SerializeHex is Serialize rendered as 0x-prefixed hex, the form the node
// reports in events.
func SerializeHex(v Value) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// Pack appends [v] to [p].
func Pack(p *wrappers.Packer, v Value) {
	pack(p, v, 0)
}

func pack(p *wrappers.Packer, v Value, depth int) {
	if depth > MaxDepth {
		p.Add(ErrMaxDepth)
		return
	}
	if v == nil {
		p.Add(fmt.Errorf("%w: nil value", ErrUnknownType))
		return
	}
	p.PackByte(byte(v.Type()))
	switch v := v.(type) {
	case *Int:
		b := v.v.Bytes32()
		p.PackFixedBytes(b[32-int128Len:])
	case *UInt:
		b := v.v.Bytes32()
		p.PackFixedBytes(b[32-int128Len:])
	case Buffer:
		p.PackBytes(v)
	case Bool:
	case StandardPrincipal:
		packStandardPrincipal(p, v)
	case ContractPrincipal:
		packStandardPrincipal(p, v.Issuer)
		packName(p, v.Name)
	case Response:
		pack(p, v.Value, depth+1)
	case Optional:
		if v.Value != nil {
			pack(p, v.Value, depth+1)
		}
	case List:
		p.PackInt(uint32(len(v)))
		for _, item := range v {
			pack(p, item, depth+1)
		}
	case Tuple:
		p.PackInt(uint32(len(v)))
		for _, k := range v.Keys() {
			packName(p, k)
			pack(p, v[k], depth+1)
		}
	case StringASCII:
		p.PackBytes([]byte(v))
	case StringUTF8:
		p.PackBytes([]byte(v))
	default:
		p.Add(fmt.Errorf("%w: %T", ErrUnknownType, v))
	}
}

func packStandardPrincipal(p *wrappers.Packer, v StandardPrincipal) {
	p.PackByte(v.Version)
	p.PackFixedBytes(v.Hash[:])
}

func packName(p *wrappers.Packer, name string) {
	if len(name) > MaxContractNameLen {
		p.Add(fmt.Errorf("%w: %q", errNameTooLong, name))
		return
	}
	p.PackByte(byte(len(name)))
	p.PackFixedBytes([]byte(name))
}

// Deserialize parses exactly one value from [b].
func Deserialize(b []byte) (Value, error) {
	p := wrappers.Packer{Bytes: b}
	v := Unpack(&p)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, p.Remaining())
	}
	return v, nil
}

// DeserializeHex accepts hex with or without the 0x prefix.
func DeserializeHex(s string) (Value, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode clarity value hex: %w", err)
	}
	return Deserialize(b)
}

// Unpack reads one value from [p]. Errors are reported through p.Err.
func Unpack(p *wrappers.Packer) Value {
	return unpack(p, 0)
}

func unpack(p *wrappers.Packer, depth int) Value {
	if depth > MaxDepth {
		p.Add(ErrMaxDepth)
		return nil
	}
	typeID := TypeID(p.UnpackByte())
	if p.Errored() {
		return nil
	}
	switch typeID {
	case TypeInt:
		b := p.UnpackFixedBytes(int128Len)
		if p.Errored() {
			return nil
		}
		var word [32]byte
		if b[0]&0x80 != 0 {
			for i := 0; i < 32-int128Len; i++ {
				word[i] = 0xff
			}
		}
		copy(word[32-int128Len:], b)
		v := new(Int)
		v.v.SetBytes32(word[:])
		return v
	case TypeUInt:
		b := p.UnpackFixedBytes(int128Len)
		if p.Errored() {
			return nil
		}
		v := new(UInt)
		v.v.SetBytes(b)
		return v
	case TypeBuffer:
		b := p.UnpackLimitedBytes(MaxValueSize)
		if p.Errored() {
			return nil
		}
		return Buffer(append([]byte(nil), b...))
	case TypeTrue:
		return Bool(true)
	case TypeFalse:
		return Bool(false)
	case TypeStandardPrincipal:
		return unpackStandardPrincipal(p)
	case TypeContractPrincipal:
		issuer := unpackStandardPrincipal(p)
		name := unpackName(p)
		return ContractPrincipal{Issuer: issuer, Name: name}
	case TypeResponseOk, TypeResponseErr:
		inner := unpack(p, depth+1)
		return Response{OK: typeID == TypeResponseOk, Value: inner}
	case TypeNone:
		return None
	case TypeSome:
		return NewSome(unpack(p, depth+1))
	case TypeList:
		n := p.UnpackInt()
		if p.Errored() {
			return nil
		}
		if int(n) > p.Remaining() {
			p.Add(wrappers.ErrInsufficientLength)
			return nil
		}
		list := make(List, 0, n)
		for i := uint32(0); i < n && !p.Errored(); i++ {
			list = append(list, unpack(p, depth+1))
		}
		return list
	case TypeTuple:
		n := p.UnpackInt()
		if p.Errored() {
			return nil
		}
		if int(n) > p.Remaining() {
			p.Add(wrappers.ErrInsufficientLength)
			return nil
		}
		tuple := make(Tuple, n)
		for i := uint32(0); i < n && !p.Errored(); i++ {
			name := unpackName(p)
			tuple[name] = unpack(p, depth+1)
		}
		return tuple
	case TypeStringASCII:
		b := p.UnpackLimitedBytes(MaxValueSize)
		if p.Errored() {
			return nil
		}
		s, err := NewStringASCII(string(b))
		p.Add(err)
		return s
	case TypeStringUTF8:
		b := p.UnpackLimitedBytes(MaxValueSize)
		if p.Errored() {
			return nil
		}
		s, err := NewStringUTF8(string(b))
		p.Add(err)
		return s
	default:
		p.Add(fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(typeID)))
		return nil
	}
}

func unpackStandardPrincipal(p *wrappers.Packer) StandardPrincipal {
	version := p.UnpackByte()
	hash := p.UnpackFixedBytes(hashing.AddrLen)
	if p.Errored() {
		return StandardPrincipal{}
	}
	sp := StandardPrincipal{Version: version}
	copy(sp.Hash[:], hash)
	return sp
}

func unpackName(p *wrappers.Packer) string {
	n := p.UnpackByte()
	if int(n) > MaxContractNameLen {
		p.Add(fmt.Errorf("%w: %d bytes", errNameTooLong, n))
		return ""
	}
	return string(p.UnpackFixedBytes(int(n)))
}
