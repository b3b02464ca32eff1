// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package fdtester

import (
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/groupdep/groupdep/pkg/sql/cat"
	"github.com/groupdep/groupdep/pkg/sql/sem/tree"
	"github.com/groupdep/groupdep/pkg/sql/types"
)

// The tester understands a compact expression grammar, enough to describe
// the WHERE/GROUP BY/SELECT shapes the analyzer cares about:
//
//	expr    := cmp (AND cmp)*
//	cmp     := sum ((= | != | < | > | <= | >=) sum)?
//	sum     := term ((+ | -) term)*
//	term    := primary ((* | /) primary)*
//	primary := number | 'string' | name '(' args ')' | [table '.'] column
//	           | '(' expr ')'
//
// Columns resolve against the FROM tables of the block under construction,
// then against enclosing blocks (references to those become correlated
// references).

// nonDeterministicFuncs lists function names the tester builds with the
// deterministic flag cleared.
var nonDeterministicFuncs = map[string]struct{}{
	"rand":    {},
	"random":  {},
	"uuid":    {},
	"sysdate": {},
}

type token struct {
	kind tokenKind
	text string
}

type tokenKind int8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokSymbol
)

func lex(input string) ([]token, error) {
	var toks []token
	s := []rune(input)
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(s) && (unicode.IsLetter(s[j]) || unicode.IsDigit(s[j]) || s[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(s[i:j])})
			i = j
		case unicode.IsDigit(c):
			j := i
			for j < len(s) && (unicode.IsDigit(s[j]) || s[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(s[i:j])})
			i = j
		case c == '\'':
			j := i + 1
			for j < len(s) && s[j] != '\'' {
				j++
			}
			if j == len(s) {
				return nil, errors.Newf("unterminated string in %q", input)
			}
			toks = append(toks, token{kind: tokString, text: string(s[i+1 : j])})
			i = j + 1
		case strings.ContainsRune("=!<>+-*/()., ", c):
			text := string(c)
			if j := i + 1; j < len(s) && (text == "<" || text == ">" || text == "!") && s[j] == '=' {
				text += "="
				i++
			}
			toks = append(toks, token{kind: tokSymbol, text: text})
			i++
		default:
			return nil, errors.Newf("unexpected character %q in %q", c, input)
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

// columnScope resolves column names for one block under construction; outer
// chains to the enclosing block's scope for correlated references.
type columnScope struct {
	tables []*cat.Table
	outer  *columnScope
}

func (sc *columnScope) resolve(qualifier, name string) (*tree.ColumnRef, error) {
	for s := sc; s != nil; s = s.outer {
		for _, tab := range s.tables {
			if qualifier != "" && tab.Name != qualifier {
				continue
			}
			for i := range tab.Columns {
				if tab.Columns[i].Name == name {
					display := name
					if qualifier != "" {
						display = qualifier + "." + name
					}
					return &tree.ColumnRef{Table: tab, Ordinal: i, DisplayName: display}, nil
				}
			}
		}
	}
	if qualifier != "" {
		return nil, errors.Newf("column %q not found in table %q", name, qualifier)
	}
	return nil, errors.Newf("column %q not found", name)
}

type exprParser struct {
	toks  []token
	pos   int
	scope *columnScope
}

// ParseExpr parses one expression against the given scope.
func parseExpr(input string, scope *columnScope) (tree.Expr, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks, scope: scope}
	e, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, errors.Newf("unexpected trailing input %q in %q", p.peek().text, input)
	}
	return e, nil
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) eatSymbol(symbols ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokSymbol {
		return "", false
	}
	for _, s := range symbols {
		if t.text == s {
			p.pos++
			return s, true
		}
	}
	return "", false
}

func (p *exprParser) parseAnd() (tree.Expr, error) {
	first, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	children := []tree.Expr{first}
	for {
		t := p.peek()
		if t.kind != tokIdent || !strings.EqualFold(t.text, "and") {
			break
		}
		p.pos++
		c, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &tree.AndExpr{Children: children}, nil
}

var comparisonOps = map[string]tree.ComparisonOp{
	"=": tree.EQ, "!=": tree.NE, "<": tree.LT, ">": tree.GT, "<=": tree.LE, ">=": tree.GE,
}

func (p *exprParser) parseComparison() (tree.Expr, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	sym, ok := p.eatSymbol("=", "!=", "<", ">", "<=", ">=")
	if !ok {
		return left, nil
	}
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return tree.NewComparison(comparisonOps[sym], left, right), nil
}

func (p *exprParser) parseSum() (tree.Expr, error) {
	return p.parseBinary([]string{"+", "-"}, p.parseTerm)
}

func (p *exprParser) parseTerm() (tree.Expr, error) {
	return p.parseBinary([]string{"*", "/"}, p.parsePrimary)
}

func (p *exprParser) parseBinary(ops []string, operand func() (tree.Expr, error)) (tree.Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		sym, ok := p.eatSymbol(ops...)
		if !ok {
			return left, nil
		}
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &tree.FuncExpr{
			Name:          sym,
			Args:          []tree.Expr{left, right},
			Deterministic: true,
			CmpType:       types.ComparisonFamily(left.CompareType(), right.CompareType()),
		}
	}
}

func (p *exprParser) parsePrimary() (tree.Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		family := types.IntFamily
		if strings.ContainsRune(t.text, '.') {
			family = types.FloatFamily
		}
		return &tree.ConstVal{Value: t.text, Type: family}, nil
	case tokString:
		return &tree.ConstVal{Value: "'" + t.text + "'", Type: types.StringFamily}, nil
	case tokSymbol:
		if t.text == "(" {
			e, err := p.parseAnd()
			if err != nil {
				return nil, err
			}
			if _, ok := p.eatSymbol(")"); !ok {
				return nil, errors.Newf("expected closing parenthesis, found %q", p.peek().text)
			}
			return e, nil
		}
		return nil, errors.Newf("unexpected symbol %q", t.text)
	case tokIdent:
		if _, ok := p.eatSymbol("("); ok {
			return p.parseCall(t.text)
		}
		if _, ok := p.eatSymbol("."); ok {
			col := p.next()
			if col.kind != tokIdent {
				return nil, errors.Newf("expected column name after %q.", t.text)
			}
			return p.scope.resolve(t.text, col.text)
		}
		return p.scope.resolve("", t.text)
	default:
		return nil, errors.New("unexpected end of expression")
	}
}

func (p *exprParser) parseCall(name string) (tree.Expr, error) {
	name = strings.ToLower(name)
	var args []tree.Expr
	if _, ok := p.eatSymbol(")"); !ok {
		for {
			arg, err := p.parseAnd()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if _, ok := p.eatSymbol(","); ok {
				continue
			}
			if _, ok := p.eatSymbol(")"); ok {
				break
			}
			return nil, errors.Newf("expected , or ) in arguments of %s", name)
		}
	}
	_, nonDet := nonDeterministicFuncs[name]
	return &tree.FuncExpr{
		Name:          name,
		Args:          args,
		Deterministic: !nonDet,
		CmpType:       callFamily(name, args),
	}, nil
}

func callFamily(name string, args []tree.Expr) types.Family {
	switch name {
	case "rand", "random":
		return types.FloatFamily
	case "length":
		return types.IntFamily
	case "concat", "upper", "lower", "uuid":
		return types.StringFamily
	case "string":
		return types.StringFamily
	case "float":
		return types.FloatFamily
	case "int":
		return types.IntFamily
	}
	family := types.UnknownFamily
	for _, arg := range args {
		family = types.ComparisonFamily(family, arg.CompareType())
	}
	return family
}
