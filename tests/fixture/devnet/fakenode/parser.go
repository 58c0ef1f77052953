// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fakenode

import (
	"errors"
	"fmt"
	"strings"
)

const maxNestingDepth = 64

var (
	errUnexpectedEOF = errors.New("unexpected end of source")
	errTooDeep       = errors.New("expression nesting too deep")
)

type exprKind int

const (
	atomExpr exprKind = iota
	stringExpr
	listExpr
)

// expr is a node of a parsed contract.
type expr struct {
	kind  exprKind
	text  string
	utf8  bool
	items []expr
}

func (e expr) head() (string, bool) {
	if e.kind != listExpr || len(e.items) == 0 || e.items[0].kind != atomExpr {
		return "", false
	}
	return e.items[0].text, true
}

type parser struct {
	src string
	pos int
}

func parseProgram(src string) ([]expr, error) {
	p := &parser{src: src}
	var exprs []expr
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return exprs, nil
		}
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) parseExpr(depth int) (expr, error) {
	if depth > maxNestingDepth {
		return expr{}, errTooDeep
	}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return expr{}, errUnexpectedEOF
	}
	switch c := p.src[p.pos]; {
	case c == '(':
		p.pos++
		e := expr{kind: listExpr}
		for {
			p.skipSpace()
			if p.pos >= len(p.src) {
				return expr{}, errUnexpectedEOF
			}
			if p.src[p.pos] == ')' {
				p.pos++
				return e, nil
			}
			item, err := p.parseExpr(depth + 1)
			if err != nil {
				return expr{}, err
			}
			e.items = append(e.items, item)
		}
	case c == ')':
		return expr{}, fmt.Errorf("unexpected ')' at offset %d", p.pos)
	case c == '{' || c == '}':
		return expr{}, fmt.Errorf("tuple literals are not supported (offset %d)", p.pos)
	case c == '"':
		return p.parseString(false)
	case c == 'u' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '"':
		p.pos++
		return p.parseString(true)
	default:
		start := p.pos
		for p.pos < len(p.src) && !isDelimiter(p.src[p.pos]) {
			p.pos++
		}
		return expr{kind: atomExpr, text: p.src[start:p.pos]}, nil
	}
}

// parseString reads a string literal starting at the opening quote.
func (p *parser) parseString(utf8 bool) (expr, error) {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '"':
			return expr{kind: stringExpr, text: sb.String(), utf8: utf8}, nil
		case '\\':
			if p.pos >= len(p.src) {
				return expr{}, errUnexpectedEOF
			}
			escaped := p.src[p.pos]
			p.pos++
			switch escaped {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte(escaped)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return expr{}, errUnexpectedEOF
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', ';', '"':
		return true
	default:
		return false
	}
}
