// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package clarity implements Clarity values: their consensus serialization
// and the repr the node reports for transaction results.
package clarity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/holiman/uint256"

	"github.com/stacks-network/stacks-devnet/utils/formatting"
	"github.com/stacks-network/stacks-devnet/utils/hashing"
)

// TypeID is the leading byte of a serialized value.
type TypeID byte

const (
	TypeInt               TypeID = 0x00
	TypeUInt              TypeID = 0x01
	TypeBuffer            TypeID = 0x02
	TypeTrue              TypeID = 0x03
	TypeFalse             TypeID = 0x04
	TypeStandardPrincipal TypeID = 0x05
	TypeContractPrincipal TypeID = 0x06
	TypeResponseOk        TypeID = 0x07
	TypeResponseErr       TypeID = 0x08
	TypeNone              TypeID = 0x09
	TypeSome              TypeID = 0x0a
	TypeList              TypeID = 0x0b
	TypeTuple             TypeID = 0x0c
	TypeStringASCII       TypeID = 0x0d
	TypeStringUTF8        TypeID = 0x0e

	// MaxContractNameLen is the longest contract name a principal may carry.
	MaxContractNameLen = 128
)

var (
	ErrOutOfRange  = errors.New("value out of range")
	errNotASCII    = errors.New("string is not printable ascii")
	errNameTooLong = errors.New("name too long")
	errInvalidUTF8 = errors.New("string is not valid utf-8")

	maxUInt128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	maxInt128  = new(uint256.Int).Rsh(maxUInt128, 1)
	minInt128  = new(uint256.Int).Not(maxInt128)
)

var (
	_ Value = (*Int)(nil)
	_ Value = (*UInt)(nil)
	_ Value = Buffer(nil)
	_ Value = Bool(false)
	_ Value = StandardPrincipal{}
	_ Value = ContractPrincipal{}
	_ Value = Response{}
	_ Value = Optional{}
	_ Value = List(nil)
	_ Value = Tuple(nil)
	_ Value = StringASCII("")
	_ Value = StringUTF8("")
)

// Value is a Clarity value.
type Value interface {
	Type() TypeID
	// String returns the Clarity repr, e.g. (ok u1).
	String() string
}

// Int is a signed 128 bit integer, kept as a sign-extended 256 bit two's
// complement word.
type Int struct{ v uint256.Int }

func NewInt(i int64) *Int {
	v := new(Int)
	if i < 0 {
		v.v.SetUint64(uint64(-i))
		v.v.Neg(&v.v)
	} else {
		v.v.SetUint64(uint64(i))
	}
	return v
}

// IntFromUint256 interprets [x] as a signed 256 bit word.
func IntFromUint256(x *uint256.Int) (*Int, error) {
	if x.Sign() >= 0 && x.Gt(maxInt128) {
		return nil, fmt.Errorf("%w: int %s", ErrOutOfRange, x.ToBig())
	}
	if x.Sign() < 0 && x.Slt(minInt128) {
		return nil, fmt.Errorf("%w: int %s", ErrOutOfRange, x.ToBig())
	}
	v := new(Int)
	v.v.Set(x)
	return v, nil
}

func (*Int) Type() TypeID { return TypeInt }

func (i *Int) Uint256() *uint256.Int { return new(uint256.Int).Set(&i.v) }

func (i *Int) String() string {
	if i.v.Sign() < 0 {
		abs := new(uint256.Int).Neg(&i.v)
		return "-" + abs.ToBig().String()
	}
	return i.v.ToBig().String()
}

// UInt is an unsigned 128 bit integer.
type UInt struct{ v uint256.Int }

func NewUInt(u uint64) *UInt {
	v := new(UInt)
	v.v.SetUint64(u)
	return v
}

func UIntFromUint256(x *uint256.Int) (*UInt, error) {
	if x.Gt(maxUInt128) {
		return nil, fmt.Errorf("%w: uint %s", ErrOutOfRange, x.ToBig())
	}
	v := new(UInt)
	v.v.Set(x)
	return v, nil
}

func (*UInt) Type() TypeID { return TypeUInt }

func (u *UInt) Uint256() *uint256.Int { return new(uint256.Int).Set(&u.v) }

func (u *UInt) String() string { return "u" + u.v.ToBig().String() }

type Buffer []byte

func (Buffer) Type() TypeID { return TypeBuffer }

func (b Buffer) String() string { return "0x" + hex.EncodeToString(b) }

type Bool bool

func (b Bool) Type() TypeID {
	if b {
		return TypeTrue
	}
	return TypeFalse
}

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// StandardPrincipal is an account principal.
type StandardPrincipal struct {
	Version byte
	Hash    hashing.Hash160
}

// ParseStandardPrincipal reads a c32check address.
func ParseStandardPrincipal(addr string) (StandardPrincipal, error) {
	version, hash, err := formatting.ParseAddress(addr)
	if err != nil {
		return StandardPrincipal{}, err
	}
	return StandardPrincipal{Version: version, Hash: hash}, nil
}

func (StandardPrincipal) Type() TypeID { return TypeStandardPrincipal }

// Address returns the c32check address of the principal.
func (p StandardPrincipal) Address() string {
	addr, err := formatting.FormatAddress(p.Version, p.Hash)
	if err != nil {
		// Versions are 5 bits wide on the wire; only a hand-built value can
		// get here.
		return fmt.Sprintf("<invalid principal version %d>", p.Version)
	}
	return addr
}

func (p StandardPrincipal) String() string { return "'" + p.Address() }

// ContractPrincipal identifies a deployed contract.
type ContractPrincipal struct {
	Issuer StandardPrincipal
	Name   string
}

// ParseContractPrincipal reads ADDRESS.name.
func ParseContractPrincipal(id string) (ContractPrincipal, error) {
	addr, name, ok := strings.Cut(id, ".")
	if !ok || name == "" {
		return ContractPrincipal{}, fmt.Errorf("invalid contract identifier %q", id)
	}
	if len(name) > MaxContractNameLen {
		return ContractPrincipal{}, fmt.Errorf("%w: %q", errNameTooLong, name)
	}
	issuer, err := ParseStandardPrincipal(addr)
	if err != nil {
		return ContractPrincipal{}, err
	}
	return ContractPrincipal{Issuer: issuer, Name: name}, nil
}

func (ContractPrincipal) Type() TypeID { return TypeContractPrincipal }

// ID returns ADDRESS.name.
func (p ContractPrincipal) ID() string { return p.Issuer.Address() + "." + p.Name }

func (p ContractPrincipal) String() string { return "'" + p.ID() }

// Response is (ok v) or (err v).
type Response struct {
	OK    bool
	Value Value
}

func NewOk(v Value) Response  { return Response{OK: true, Value: v} }
func NewErr(v Value) Response { return Response{Value: v} }

func (r Response) Type() TypeID {
	if r.OK {
		return TypeResponseOk
	}
	return TypeResponseErr
}

func (r Response) String() string {
	if r.OK {
		return "(ok " + r.Value.String() + ")"
	}
	return "(err " + r.Value.String() + ")"
}

// Optional is (some v), or none when Value is nil.
type Optional struct {
	Value Value
}

var None = Optional{}

func NewSome(v Value) Optional { return Optional{Value: v} }

func (o Optional) Type() TypeID {
	if o.Value == nil {
		return TypeNone
	}
	return TypeSome
}

func (o Optional) String() string {
	if o.Value == nil {
		return "none"
	}
	return "(some " + o.Value.String() + ")"
}

type List []Value

func (List) Type() TypeID { return TypeList }

func (l List) String() string {
	var sb strings.Builder
	sb.WriteString("(list")
	for _, v := range l {
		sb.WriteByte(' ')
		sb.WriteString(v.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

type Tuple map[string]Value

func (Tuple) Type() TypeID { return TypeTuple }

// Keys returns the field names in serialization order.
func (t Tuple) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteString("(tuple")
	for _, k := range t.Keys() {
		fmt.Fprintf(&sb, " (%s %s)", k, t[k])
	}
	sb.WriteByte(')')
	return sb.String()
}

type StringASCII string

func NewStringASCII(s string) (StringASCII, error) {
	for i := 0; i < len(s); i++ {
		if c := s[i]; (c < 0x20 || c > 0x7e) && c != '\n' && c != '\t' && c != '\r' {
			return "", fmt.Errorf("%w: byte 0x%02x at offset %d", errNotASCII, c, i)
		}
	}
	return StringASCII(s), nil
}

func (StringASCII) Type() TypeID { return TypeStringASCII }

func (s StringASCII) String() string { return `"` + escape(string(s), false) + `"` }

type StringUTF8 string

func NewStringUTF8(s string) (StringUTF8, error) {
	if !utf8.ValidString(s) {
		return "", errInvalidUTF8
	}
	return StringUTF8(s), nil
}

func (StringUTF8) Type() TypeID { return TypeStringUTF8 }

func (s StringUTF8) String() string { return `u"` + escape(string(s), true) + `"` }

func escape(s string, unicode bool) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '"':
			sb.WriteString(`\"`)
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\r':
			sb.WriteString(`\r`)
		case unicode && r > 0x7e:
			fmt.Fprintf(&sb, `\u{%x}`, r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
