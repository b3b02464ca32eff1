// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package fdtester implements a datadriven test harness for the
// functional-dependency analyzer. Test files register tables with
// create-table and run the analyzer over block descriptions with check.
package fdtester

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/groupdep/groupdep/pkg/sql/cat"
	"github.com/groupdep/groupdep/pkg/sql/fdcheck"
	"github.com/groupdep/groupdep/pkg/sql/pgwire/pgerror"
	"github.com/groupdep/groupdep/pkg/sql/sem/tree"
	"github.com/groupdep/groupdep/pkg/sql/sessiondata"
	"github.com/groupdep/groupdep/pkg/sql/types"
)

// Tester keeps the tables registered by a test file and runs analysis
// commands against them.
type Tester struct {
	catalog map[string]*cat.Table
}

// New returns a Tester with an empty catalog.
func New() *Tester {
	return &Tester{catalog: make(map[string]*cat.Table)}
}

// RunCommand implements the datadriven command set:
//
//	create-table
//	<name> (<col> <type> [primary] [unique], ..., [primary|unique] (<cols>)) [materialized]
//	----
//	<name>
//
//	check
//	from: t [, u ...]
//	select: <expr> [, <expr> ...]
//	[group-by: <expr> [, <expr> ...]]
//	[where: <expr>]
//	[having: <expr>]
//	----
//	ok / error output, plus the final allowed columns per table
func (tt *Tester) RunCommand(t *testing.T, d *datadriven.TestData) string {
	t.Helper()
	switch d.Cmd {
	case "create-table":
		tab, err := tt.createTable(d.Input)
		if err != nil {
			d.Fatalf(t, "%v", err)
		}
		return tab.Name + "\n"
	case "check":
		out, err := tt.check(d.Input)
		if err != nil {
			d.Fatalf(t, "%v", err)
		}
		return out
	default:
		d.Fatalf(t, "unsupported command: %s", d.Cmd)
		return ""
	}
}

func (tt *Tester) createTable(input string) (*cat.Table, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &tableParser{toks: toks}
	tab, err := p.parse()
	if err != nil {
		return nil, err
	}
	tt.catalog[tab.Name] = tab
	return tab, nil
}

type tableParser struct {
	toks []token
	pos  int
}

func (p *tableParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *tableParser) expectSymbol(sym string) error {
	t := p.next()
	if t.kind != tokSymbol || t.text != sym {
		return errors.Newf("expected %q, found %q", sym, t.text)
	}
	return nil
}

func (p *tableParser) parse() (*cat.Table, error) {
	name := p.next()
	if name.kind != tokIdent {
		return nil, errors.New("expected table name")
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	tab := &cat.Table{Name: name.text}
	// Composite keys may name columns declared later; resolve them once all
	// columns are known.
	type pendingKey struct {
		primary bool
		cols    []string
	}
	var pendingKeys []pendingKey
	for {
		t := p.next()
		if t.kind != tokIdent {
			return nil, errors.Newf("expected column or constraint, found %q", t.text)
		}
		if (t.text == "unique" || t.text == "primary") && p.toks[p.pos].text == "(" {
			p.pos++
			var cols []string
			for {
				c := p.next()
				if c.kind != tokIdent {
					return nil, errors.Newf("expected column name in key, found %q", c.text)
				}
				cols = append(cols, c.text)
				sep := p.next()
				if sep.text == ")" {
					break
				}
				if sep.text != "," {
					return nil, errors.Newf("expected , or ) in key, found %q", sep.text)
				}
			}
			pendingKeys = append(pendingKeys, pendingKey{primary: t.text == "primary", cols: cols})
		} else {
			typTok := p.next()
			if typTok.kind != tokIdent {
				return nil, errors.Newf("expected type for column %q", t.text)
			}
			typ := types.FamilyByName(typTok.text)
			ord := len(tab.Columns)
			tab.Columns = append(tab.Columns, cat.Column{Name: t.text, Ordinal: ord, Type: typ})
			for p.toks[p.pos].kind == tokIdent {
				switch flag := p.next().text; flag {
				case "primary":
					tab.Keys = append(tab.Keys, cat.Key{ColumnOrdinals: []int{ord}, Primary: true, Unique: true})
				case "unique":
					tab.Keys = append(tab.Keys, cat.Key{ColumnOrdinals: []int{ord}, Unique: true})
				default:
					return nil, errors.Newf("unknown column flag %q", flag)
				}
			}
		}
		sep := p.next()
		if sep.text == ")" {
			break
		}
		if sep.text != "," {
			return nil, errors.Newf("expected , or ) after column, found %q", sep.text)
		}
	}
	for _, pk := range pendingKeys {
		key := cat.Key{Primary: pk.primary, Unique: true}
		for _, name := range pk.cols {
			ord := -1
			for i := range tab.Columns {
				if tab.Columns[i].Name == name {
					ord = i
					break
				}
			}
			if ord < 0 {
				return nil, errors.Newf("key references unknown column %q", name)
			}
			key.ColumnOrdinals = append(key.ColumnOrdinals, ord)
		}
		tab.Keys = append(tab.Keys, key)
	}
	if t := p.next(); t.kind == tokIdent {
		if t.text != "materialized" {
			return nil, errors.Newf("unknown table option %q", t.text)
		}
		tab.MaterializedDerived = true
	}
	return tab, nil
}

func (tt *Tester) check(input string) (string, error) {
	block := &tree.SelectBlock{}
	scope := &columnScope{}
	var clauses []struct {
		key, val string
	}
	for _, line := range strings.Split(strings.TrimSpace(input), "\n") {
		key, val, found := strings.Cut(line, ":")
		if !found {
			return "", errors.Newf("expected key: value, found %q", line)
		}
		clauses = append(clauses, struct{ key, val string }{strings.TrimSpace(key), strings.TrimSpace(val)})
	}
	// FROM resolves first so the other clauses can reference its columns.
	for _, cl := range clauses {
		if cl.key != "from" {
			continue
		}
		for _, name := range strings.Split(cl.val, ",") {
			name = strings.TrimSpace(name)
			tab, ok := tt.catalog[name]
			if !ok {
				return "", errors.Newf("unknown table %q", name)
			}
			block.Tables = append(block.Tables, tab)
		}
	}
	scope.tables = block.Tables
	for _, cl := range clauses {
		switch cl.key {
		case "from":
		case "select":
			exprs, err := parseExprList(cl.val, scope)
			if err != nil {
				return "", err
			}
			block.Select = exprs
		case "group-by":
			exprs, err := parseExprList(cl.val, scope)
			if err != nil {
				return "", err
			}
			block.GroupBy = exprs
		case "where":
			e, err := parseExpr(cl.val, scope)
			if err != nil {
				return "", err
			}
			block.Where = e
		case "having":
			e, err := parseExpr(cl.val, scope)
			if err != nil {
				return "", err
			}
			block.Having = e
		default:
			return "", errors.Newf("unknown clause %q", cl.key)
		}
	}

	checker := fdcheck.NewChecker(sessiondata.FullGroupByDependencyChecks)
	var buf strings.Builder
	if err := checker.CheckBlock(block); err != nil {
		fmt.Fprintf(&buf, "error (%s): %v\n", pgerror.GetPGCode(err), err)
		return buf.String(), nil
	}
	buf.WriteString("ok\n")
	for _, tab := range block.Tables {
		var names []string
		for _, ord := range checker.AllowedColumns(tab) {
			names = append(names, tab.Columns[ord].Name)
		}
		fmt.Fprintf(&buf, "allowed: %s(%s)\n", tab.Name, strings.Join(names, ","))
	}
	return buf.String(), nil
}

// parseExprList splits on top-level commas (commas inside parentheses or
// strings belong to the expression) and parses each element.
func parseExprList(input string, scope *columnScope) ([]tree.Expr, error) {
	var exprs []tree.Expr
	depth := 0
	inString := false
	start := 0
	flush := func(end int) error {
		part := strings.TrimSpace(input[start:end])
		if part == "" {
			return errors.Newf("empty expression in list %q", input)
		}
		e, err := parseExpr(part, scope)
		if err != nil {
			return err
		}
		exprs = append(exprs, e)
		return nil
	}
	for i, c := range input {
		switch {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			if err := flush(i); err != nil {
				return nil, err
			}
			start = i + 1
		}
	}
	if err := flush(len(input)); err != nil {
		return nil, err
	}
	return exprs, nil
}
