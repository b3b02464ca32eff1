// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package tree

import "github.com/groupdep/groupdep/pkg/sql/cat"

// SubqueryContext records which clause of its enclosing block a subquery
// expression appears in. The tag decides whether outer-scope column
// references inside the subquery are evaluated under the enclosing block's
// aggregation rules (select list, having) or against pre-grouping row values
// (where).
type SubqueryContext int8

const (
	// CtxNone marks a block that is not a subquery expression, e.g. a
	// materialized derived table in a FROM clause.
	CtxNone SubqueryContext = iota
	CtxSelectList
	CtxWhere
	CtxHaving
)

var subqueryCtxNames = [...]string{
	CtxNone:       "none",
	CtxSelectList: "select-list",
	CtxWhere:      "where",
	CtxHaving:     "having",
}

func (c SubqueryContext) String() string { return subqueryCtxNames[c] }

// SelectBlock is one fully name-resolved query block. The surrounding
// compiler builds the block tree and hands blocks to the analyzer in its
// compilation order: blocks defining materialized derived tables before the
// blocks scanning them, enclosing blocks before their expression subqueries.
type SelectBlock struct {
	// GroupBy, Select, Having and Where are the block's clause expressions,
	// already bound to columns.
	GroupBy []Expr
	Select  []Expr
	Having  Expr
	Where   Expr

	// Tables lists the leaf data sources of the FROM clause.
	Tables []*cat.Table

	// Outer links to the enclosing query block, if any.
	Outer *SelectBlock

	// OuterAggregated is set when the enclosing context is a select with a
	// join tree, i.e. when outer-scope references made from this block are
	// subject to the enclosing block's grouping rules.
	OuterAggregated bool

	// OuterRowTarget is set when this block is a subquery expression whose
	// enclosing context is a row-scoped modification target with no join
	// (a scalar subquery in a single-row UPDATE assignment). References to
	// the target's columns are bound once per row and exempt from grouping
	// analysis.
	OuterRowTarget bool

	// Internal marks placeholder blocks fabricated by the compiler (e.g.
	// fake union parents). The analyzer skips them.
	Internal bool

	// SubqueryCtx is the clause of the enclosing block this block appears
	// in, written by the enclosing block's TagSubqueries pass before this
	// block is analyzed.
	SubqueryCtx SubqueryContext
}

// OwnsTable reports whether tab is one of the block's leaf tables.
func (b *SelectBlock) OwnsTable(tab *cat.Table) bool {
	for _, t := range b.Tables {
		if t == tab {
			return true
		}
	}
	return false
}

// Aggregated reports whether the block groups its rows, i.e. whether
// references to its columns from nested subqueries are subject to grouping
// rules.
func (b *SelectBlock) Aggregated() bool {
	return len(b.GroupBy) > 0 || b.Having != nil
}

// TagSubqueries annotates every subquery expression reachable from the
// block's select list, WHERE and HAVING with its containing clause, and
// propagates the tag to the nested block. Nested blocks tag their own
// subqueries when they are analyzed in turn.
func (b *SelectBlock) TagSubqueries() {
	for _, e := range b.Select {
		tagSubqueries(e, CtxSelectList)
	}
	if b.Where != nil {
		tagSubqueries(b.Where, CtxWhere)
	}
	if b.Having != nil {
		tagSubqueries(b.Having, CtxHaving)
	}
}

func tagSubqueries(e Expr, ctx SubqueryContext) {
	switch t := e.(type) {
	case *Subquery:
		t.Ctx = ctx
		if t.Block != nil {
			t.Block.SubqueryCtx = ctx
		}
	case *FuncExpr:
		for _, arg := range t.Args {
			tagSubqueries(arg, ctx)
		}
	case *AndExpr:
		for _, c := range t.Children {
			tagSubqueries(c, ctx)
		}
	case *ComparisonExpr:
		tagSubqueries(t.Left, ctx)
		tagSubqueries(t.Right, ctx)
	case *AliasExpr:
		tagSubqueries(t.Expr, ctx)
	}
}
