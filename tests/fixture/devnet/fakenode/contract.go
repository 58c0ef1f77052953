// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fakenode

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
)

const maxCallDepth = 64

var (
	errRuntime          = errors.New("runtime error")
	errAnalysis         = errors.New("analysis error")
	errNoSuchFunction   = errors.New("no such public function")
	errArgumentCount    = errors.New("wrong number of arguments")
	errNotAResponse     = errors.New("public function did not return a response")
	errCallDepthReached = errors.New("call depth reached")

	twoTo128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
)

type access int

const (
	accessPrivate access = iota
	accessReadOnly
	accessPublic
)

// Forms handled by the evaluator itself rather than as function calls.
var specialForms = map[string]bool{
	"if":       true,
	"let":      true,
	"begin":    true,
	"and":            true,
	"or":             true,
	"asserts!":       true,
	"contract-call?": true,
}

var clarity1Natives = map[string]bool{
	"ok":           true,
	"err":          true,
	"some":         true,
	"is-eq":        true,
	"+":            true,
	"-":            true,
	"*":            true,
	"<":            true,
	">":            true,
	"not":          true,
	"print":        true,
	"unwrap-panic": true,
	"len":          true,
}

// Natives introduced with Clarity 2.
var clarity2Natives = map[string]bool{
	"buff-to-uint-be": true,
	"buff-to-uint-le": true,
	"buff-to-int-be":  true,
	"buff-to-int-le":  true,
}

// Top-level forms accepted and otherwise ignored.
var ignoredDefinitions = map[string]bool{
	"impl-trait": true,
}

type function struct {
	name   string
	params []string
	types  []expr
	body   []expr
	access access
}

// traitRef names a trait as written in use-trait: the contract that
// declares it and the trait's name there.
type traitRef struct {
	contract string
	name     string
}

type constant struct {
	name  string
	value expr
}

// contract is a deployed contract. It supports the subset of Clarity the
// devnet suites exercise.
type contract struct {
	id        string
	issuer    clarity.StandardPrincipal
	version   stacks.ClarityVersion
	functions map[string]*function
	constants map[string]clarity.Value
	traits    map[string]bool
	imports   map[string]traitRef
}

// contractSet holds the deployed contracts by identifier.
type contractSet map[string]*contract

// deployContract analyzes [source] under [version] without any other
// contract deployed.
func deployContract(id string, source string, version stacks.ClarityVersion) (*contract, error) {
	return contractSet(nil).deploy(id, source, version)
}

// deploy analyzes [source] under [version] against the contracts already
// in the set and evaluates its constants. Analysis failures wrap
// errAnalysis. The set itself is not modified.
func (s contractSet) deploy(id string, source string, version stacks.ClarityVersion) (*contract, error) {
	principal, err := clarity.ParseContractPrincipal(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errAnalysis, err)
	}
	program, err := parseProgram(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errAnalysis, err)
	}
	c := &contract{
		id:        id,
		issuer:    principal.Issuer,
		version:   version,
		functions: make(map[string]*function),
		constants: make(map[string]clarity.Value),
		traits:    make(map[string]bool),
		imports:   make(map[string]traitRef),
	}
	var constants []constant
	for _, form := range program {
		name, ok := form.head()
		if !ok {
			return nil, fmt.Errorf("%w: unexpected top-level expression", errAnalysis)
		}
		switch {
		case name == "define-public" || name == "define-read-only" || name == "define-private":
			fn, err := parseFunction(form, name)
			if err != nil {
				return nil, err
			}
			if _, exists := c.functions[fn.name]; exists {
				return nil, fmt.Errorf("%w: function %q defined twice", errAnalysis, fn.name)
			}
			c.functions[fn.name] = fn
		case name == "define-constant":
			if len(form.items) != 3 || form.items[1].kind != atomExpr {
				return nil, fmt.Errorf("%w: malformed define-constant", errAnalysis)
			}
			constants = append(constants, constant{name: form.items[1].text, value: form.items[2]})
		case name == "define-trait":
			if len(form.items) < 2 || form.items[1].kind != atomExpr {
				return nil, fmt.Errorf("%w: malformed define-trait", errAnalysis)
			}
			if c.traits[form.items[1].text] {
				return nil, fmt.Errorf("%w: trait %q defined twice", errAnalysis, form.items[1].text)
			}
			c.traits[form.items[1].text] = true
		case name == "use-trait":
			if len(form.items) != 3 || form.items[1].kind != atomExpr || form.items[2].kind != atomExpr {
				return nil, fmt.Errorf("%w: malformed use-trait", errAnalysis)
			}
			ref, err := c.parseTraitRef(form.items[2].text)
			if err != nil {
				return nil, err
			}
			if err := s.resolveTrait(ref); err != nil {
				return nil, err
			}
			c.imports[form.items[1].text] = ref
		case ignoredDefinitions[name]:
		default:
			return nil, fmt.Errorf("%w: unsupported top-level form %q", errAnalysis, name)
		}
	}

	for _, fn := range c.functions {
		for _, typ := range fn.types {
			if err := c.checkParamType(typ); err != nil {
				return nil, err
			}
		}
		for _, e := range fn.body {
			if err := c.check(e); err != nil {
				return nil, err
			}
		}
	}
	root := &env{}
	for _, k := range constants {
		if err := c.check(k.value); err != nil {
			return nil, err
		}
		v, err := c.eval(k.value, root, &evalContext{})
		if err != nil {
			return nil, err
		}
		c.constants[k.name] = v
	}
	return c, nil
}

func parseFunction(form expr, definer string) (*function, error) {
	if len(form.items) < 3 || form.items[1].kind != listExpr || len(form.items[1].items) == 0 {
		return nil, fmt.Errorf("%w: malformed %s", errAnalysis, definer)
	}
	signature := form.items[1].items
	if signature[0].kind != atomExpr {
		return nil, fmt.Errorf("%w: malformed %s", errAnalysis, definer)
	}
	fn := &function{
		name: signature[0].text,
		body: form.items[2:],
	}
	for _, param := range signature[1:] {
		if param.kind != listExpr || len(param.items) != 2 || param.items[0].kind != atomExpr {
			return nil, fmt.Errorf("%w: malformed parameter of %s", errAnalysis, fn.name)
		}
		fn.params = append(fn.params, param.items[0].text)
		fn.types = append(fn.types, param.items[1])
	}
	switch definer {
	case "define-public":
		fn.access = accessPublic
	case "define-read-only":
		fn.access = accessReadOnly
	default:
		fn.access = accessPrivate
	}
	return fn, nil
}

// parseTraitRef reads .contract.trait or 'ADDRESS.contract.trait.
func (c *contract) parseTraitRef(text string) (traitRef, error) {
	var (
		rest     string
		relative bool
	)
	switch {
	case strings.HasPrefix(text, "."):
		rest, relative = text[1:], true
	case strings.HasPrefix(text, "'"):
		rest = text[1:]
	default:
		return traitRef{}, fmt.Errorf("%w: invalid trait reference %s", errAnalysis, text)
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 || i == len(rest)-1 {
		return traitRef{}, fmt.Errorf("%w: invalid trait reference %s", errAnalysis, text)
	}
	ref := traitRef{contract: rest[:i], name: rest[i+1:]}
	if relative {
		ref.contract = c.issuer.Address() + "." + ref.contract
	}
	return ref, nil
}

func (s contractSet) resolveTrait(ref traitRef) error {
	target, ok := s[ref.contract]
	if !ok {
		return fmt.Errorf("%w: use of unresolved contract '%s'", errAnalysis, ref.contract)
	}
	if !target.exportsTrait(ref.name) {
		return fmt.Errorf("%w: use of undeclared trait <%s>", errAnalysis, ref.name)
	}
	return nil
}

// exportsTrait reports whether other contracts can import [name] from c.
// Clarity 1 contracts also expose the traits they import, under the name
// they have in the declaring contract.
func (c *contract) exportsTrait(name string) bool {
	if c.traits[name] {
		return true
	}
	if c.version != stacks.Clarity1 {
		return false
	}
	for _, ref := range c.imports {
		if ref.name == name {
			return true
		}
	}
	return false
}

// checkParamType reports trait parameters, written <name>, that name
// neither an imported nor a defined trait.
func (c *contract) checkParamType(typ expr) error {
	if typ.kind != atomExpr || !strings.HasPrefix(typ.text, "<") || !strings.HasSuffix(typ.text, ">") {
		return nil
	}
	name := typ.text[1 : len(typ.text)-1]
	if _, ok := c.imports[name]; ok || c.traits[name] {
		return nil
	}
	return fmt.Errorf("%w: use of undeclared trait <%s>", errAnalysis, name)
}

// check reports calls to functions that are neither defined by the
// contract nor native to its Clarity version.
func (c *contract) check(e expr) error {
	if e.kind != listExpr {
		return nil
	}
	name, ok := e.head()
	if !ok {
		return fmt.Errorf("%w: expected a function name", errAnalysis)
	}
	args := e.items[1:]
	if name == "let" {
		if len(args) < 2 || args[0].kind != listExpr {
			return fmt.Errorf("%w: malformed let", errAnalysis)
		}
		for _, binding := range args[0].items {
			if binding.kind != listExpr || len(binding.items) != 2 || binding.items[0].kind != atomExpr {
				return fmt.Errorf("%w: malformed let binding", errAnalysis)
			}
			if err := c.check(binding.items[1]); err != nil {
				return err
			}
		}
		args = args[1:]
	} else if name == "contract-call?" {
		if len(args) < 2 || args[1].kind != atomExpr {
			return fmt.Errorf("%w: malformed contract-call?", errAnalysis)
		}
	} else if !specialForms[name] && !c.isNative(name) {
		if _, ok := c.functions[name]; !ok {
			return fmt.Errorf("%w: use of unresolved function '%s'", errAnalysis, name)
		}
	}
	for _, arg := range args {
		if err := c.check(arg); err != nil {
			return err
		}
	}
	return nil
}

func (c *contract) isNative(name string) bool {
	if clarity1Natives[name] {
		return true
	}
	return c.version >= stacks.Clarity2 && clarity2Natives[name]
}

// call invokes a public or read-only function.
func (c *contract) call(name string, args []clarity.Value, ctx *evalContext) (clarity.Response, error) {
	fn, ok := c.functions[name]
	if !ok || fn.access == accessPrivate {
		return clarity.Response{}, fmt.Errorf("%w: %s", errNoSuchFunction, name)
	}
	result, err := c.invoke(fn, args, ctx)
	if err != nil {
		return clarity.Response{}, err
	}
	response, ok := result.(clarity.Response)
	if !ok {
		return clarity.Response{}, errNotAResponse
	}
	return response, nil
}

func (c *contract) invoke(fn *function, args []clarity.Value, ctx *evalContext) (clarity.Value, error) {
	if len(args) != len(fn.params) {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", errArgumentCount, fn.name, len(fn.params), len(args))
	}
	if ctx.depth >= maxCallDepth {
		return nil, errCallDepthReached
	}
	ctx.depth++
	defer func() { ctx.depth-- }()

	scope := &env{vars: make(map[string]clarity.Value, len(args))}
	for i, param := range fn.params {
		scope.vars[param] = args[i]
	}
	result, err := c.evalSequence(fn.body, scope, ctx)
	var sr *shortReturn
	if errors.As(err, &sr) {
		return sr.value, nil
	}
	return result, err
}

// evalContext is the state of one transaction's execution.
type evalContext struct {
	sender      clarity.StandardPrincipal
	blockHeight uint64
	contracts   contractSet
	depth       int
}

type env struct {
	vars   map[string]clarity.Value
	parent *env
}

func (e *env) lookup(name string) (clarity.Value, bool) {
	for scope := e; scope != nil; scope = scope.parent {
		if v, ok := scope.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// shortReturn unwinds the current function when asserts! fails.
type shortReturn struct {
	value clarity.Value
}

func (*shortReturn) Error() string {
	return "short return"
}

func (c *contract) evalSequence(body []expr, scope *env, ctx *evalContext) (clarity.Value, error) {
	var (
		result clarity.Value
		err    error
	)
	for _, e := range body {
		result, err = c.eval(e, scope, ctx)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *contract) eval(e expr, scope *env, ctx *evalContext) (clarity.Value, error) {
	switch e.kind {
	case stringExpr:
		if e.utf8 {
			return clarity.NewStringUTF8(e.text)
		}
		return clarity.NewStringASCII(e.text)
	case atomExpr:
		return c.evalAtom(e.text, scope, ctx)
	}

	name, _ := e.head()
	args := e.items[1:]
	switch name {
	case "begin":
		return c.evalSequence(args, scope, ctx)
	case "if":
		if len(args) != 3 {
			return nil, arityError(name, 3, len(args))
		}
		cond, err := c.evalBool(args[0], scope, ctx)
		if err != nil {
			return nil, err
		}
		if cond {
			return c.eval(args[1], scope, ctx)
		}
		return c.eval(args[2], scope, ctx)
	case "let":
		inner := &env{vars: make(map[string]clarity.Value), parent: scope}
		for _, binding := range args[0].items {
			v, err := c.eval(binding.items[1], inner, ctx)
			if err != nil {
				return nil, err
			}
			inner.vars[binding.items[0].text] = v
		}
		return c.evalSequence(args[1:], inner, ctx)
	case "and", "or":
		short := name == "or"
		for _, arg := range args {
			b, err := c.evalBool(arg, scope, ctx)
			if err != nil {
				return nil, err
			}
			if b == short {
				return clarity.Bool(short), nil
			}
		}
		return clarity.Bool(!short), nil
	case "asserts!":
		if len(args) != 2 {
			return nil, arityError(name, 2, len(args))
		}
		cond, err := c.evalBool(args[0], scope, ctx)
		if err != nil {
			return nil, err
		}
		if cond {
			return clarity.Bool(true), nil
		}
		thrown, err := c.eval(args[1], scope, ctx)
		if err != nil {
			return nil, err
		}
		return nil, &shortReturn{value: thrown}
	case "contract-call?":
		return c.contractCall(args, scope, ctx)
	}

	values := make([]clarity.Value, len(args))
	for i, arg := range args {
		v, err := c.eval(arg, scope, ctx)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	if fn, ok := c.functions[name]; ok {
		return c.invoke(fn, values, ctx)
	}
	return applyNative(name, values)
}

// contractCall invokes a public function of another contract, given either
// literally or as a trait parameter.
func (c *contract) contractCall(args []expr, scope *env, ctx *evalContext) (clarity.Value, error) {
	callee, err := c.eval(args[0], scope, ctx)
	if err != nil {
		return nil, err
	}
	principal, ok := callee.(clarity.ContractPrincipal)
	if !ok {
		return nil, fmt.Errorf("%w: contract-call? expects a contract, got %s", errRuntime, callee)
	}
	target, ok := ctx.contracts[principal.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: no such contract %s", errRuntime, principal.ID())
	}
	values := make([]clarity.Value, len(args)-2)
	for i, arg := range args[2:] {
		v, err := c.eval(arg, scope, ctx)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	response, err := target.call(args[1].text, values, ctx)
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (c *contract) evalBool(e expr, scope *env, ctx *evalContext) (bool, error) {
	v, err := c.eval(e, scope, ctx)
	if err != nil {
		return false, err
	}
	b, ok := v.(clarity.Bool)
	if !ok {
		return false, fmt.Errorf("%w: expected bool, got %s", errRuntime, v)
	}
	return bool(b), nil
}

func (c *contract) evalAtom(text string, scope *env, ctx *evalContext) (clarity.Value, error) {
	switch {
	case text == "true":
		return clarity.Bool(true), nil
	case text == "false":
		return clarity.Bool(false), nil
	case text == "none":
		return clarity.None, nil
	case text == "tx-sender" || text == "contract-caller":
		return ctx.sender, nil
	case text == "block-height":
		return clarity.NewUInt(ctx.blockHeight), nil
	case strings.HasPrefix(text, "0x"):
		b, err := hex.DecodeString(text[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid buffer literal %s", errRuntime, text)
		}
		return clarity.Buffer(b), nil
	case strings.HasPrefix(text, ".") && len(text) > 1:
		return clarity.ContractPrincipal{Issuer: c.issuer, Name: text[1:]}, nil
	case strings.HasPrefix(text, "'"):
		if strings.Contains(text, ".") {
			return clarity.ParseContractPrincipal(text[1:])
		}
		return clarity.ParseStandardPrincipal(text[1:])
	case len(text) > 1 && text[0] == 'u' && isDigits(text[1:]):
		x, err := uint256.FromDecimal(text[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid uint literal %s", errRuntime, text)
		}
		return clarity.UIntFromUint256(x)
	case isDigits(strings.TrimPrefix(text, "-")):
		x, err := uint256.FromDecimal(strings.TrimPrefix(text, "-"))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid int literal %s", errRuntime, text)
		}
		if strings.HasPrefix(text, "-") {
			x.Neg(x)
		}
		return clarity.IntFromUint256(x)
	}
	if v, ok := scope.lookup(text); ok {
		return v, nil
	}
	if v, ok := c.constants[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: use of unresolved variable '%s'", errRuntime, text)
}

func isDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func arityError(name string, expected int, actual int) error {
	return fmt.Errorf("%w: %s expects %d arguments, got %d", errRuntime, name, expected, actual)
}

func applyNative(name string, args []clarity.Value) (clarity.Value, error) {
	switch name {
	case "ok", "err", "some", "not", "print", "unwrap-panic", "len",
		"buff-to-uint-be", "buff-to-uint-le", "buff-to-int-be", "buff-to-int-le":
		if len(args) != 1 {
			return nil, arityError(name, 1, len(args))
		}
	}

	switch name {
	case "ok":
		return clarity.NewOk(args[0]), nil
	case "err":
		return clarity.NewErr(args[0]), nil
	case "some":
		return clarity.NewSome(args[0]), nil
	case "print":
		return args[0], nil
	case "not":
		b, ok := args[0].(clarity.Bool)
		if !ok {
			return nil, fmt.Errorf("%w: not expects a bool", errRuntime)
		}
		return !b, nil
	case "is-eq":
		if len(args) == 0 {
			return nil, arityError(name, 1, 0)
		}
		first, err := clarity.Serialize(args[0])
		if err != nil {
			return nil, err
		}
		for _, arg := range args[1:] {
			b, err := clarity.Serialize(arg)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(first, b) {
				return clarity.Bool(false), nil
			}
		}
		return clarity.Bool(true), nil
	case "unwrap-panic":
		switch v := args[0].(type) {
		case clarity.Response:
			if v.OK {
				return v.Value, nil
			}
		case clarity.Optional:
			if v.Value != nil {
				return v.Value, nil
			}
		}
		return nil, fmt.Errorf("%w: unwrap-panic of %s", errRuntime, args[0])
	case "len":
		switch v := args[0].(type) {
		case clarity.Buffer:
			return clarity.NewUInt(uint64(len(v))), nil
		case clarity.List:
			return clarity.NewUInt(uint64(len(v))), nil
		case clarity.StringASCII:
			return clarity.NewUInt(uint64(len(v))), nil
		}
		return nil, fmt.Errorf("%w: len of %s", errRuntime, args[0])
	case "+", "-", "*", "<", ">":
		return arithmetic(name, args)
	case "buff-to-uint-be", "buff-to-uint-le", "buff-to-int-be", "buff-to-int-le":
		return bufferToInteger(name, args[0])
	}
	return nil, fmt.Errorf("%w: use of unresolved function '%s'", errRuntime, name)
}

func arithmetic(op string, args []clarity.Value) (clarity.Value, error) {
	if len(args) < 2 {
		return nil, arityError(op, 2, len(args))
	}
	_, signed := args[0].(*clarity.Int)
	operands := make([]*uint256.Int, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case *clarity.Int:
			if !signed {
				return nil, fmt.Errorf("%w: %s mixes int and uint", errRuntime, op)
			}
			operands[i] = v.Uint256()
		case *clarity.UInt:
			if signed {
				return nil, fmt.Errorf("%w: %s mixes int and uint", errRuntime, op)
			}
			operands[i] = v.Uint256()
		default:
			return nil, fmt.Errorf("%w: %s expects integers, got %s", errRuntime, op, arg)
		}
	}

	switch op {
	case "<", ">":
		if len(operands) != 2 {
			return nil, arityError(op, 2, len(operands))
		}
		a, b := operands[0], operands[1]
		if op == ">" {
			a, b = b, a
		}
		if signed {
			return clarity.Bool(a.Slt(b)), nil
		}
		return clarity.Bool(a.Lt(b)), nil
	}

	result := new(uint256.Int).Set(operands[0])
	for _, operand := range operands[1:] {
		switch op {
		case "+":
			result.Add(result, operand)
		case "-":
			if !signed && result.Lt(operand) {
				return nil, fmt.Errorf("%w: arithmetic underflow", errRuntime)
			}
			result.Sub(result, operand)
		case "*":
			result.Mul(result, operand)
		}
		if err := checkRange(result, signed); err != nil {
			return nil, err
		}
	}
	if signed {
		return clarity.IntFromUint256(result)
	}
	return clarity.UIntFromUint256(result)
}

func checkRange(x *uint256.Int, signed bool) error {
	var err error
	if signed {
		_, err = clarity.IntFromUint256(x)
	} else {
		_, err = clarity.UIntFromUint256(x)
	}
	if err != nil {
		return fmt.Errorf("%w: arithmetic overflow", errRuntime)
	}
	return nil
}

// bufferToInteger converts a buffer of at most 16 bytes. Shorter buffers
// are zero extended, so only 16 byte buffers can be negative.
func bufferToInteger(name string, v clarity.Value) (clarity.Value, error) {
	buf, ok := v.(clarity.Buffer)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a buffer", errRuntime, name)
	}
	if len(buf) > 16 {
		return nil, fmt.Errorf("%w: %s expects at most 16 bytes, got %d", errRuntime, name, len(buf))
	}
	b := make([]byte, len(buf))
	copy(b, buf)
	if strings.HasSuffix(name, "-le") {
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}
	x := new(uint256.Int).SetBytes(b)
	if strings.HasPrefix(name, "buff-to-uint") {
		return clarity.UIntFromUint256(x)
	}
	if len(b) == 16 && b[0]&0x80 != 0 {
		x.Sub(x, twoTo128)
	}
	return clarity.IntFromUint256(x)
}
