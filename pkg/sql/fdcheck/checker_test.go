// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package fdcheck_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/groupdep/groupdep/pkg/sql/cat"
	"github.com/groupdep/groupdep/pkg/sql/fdcheck"
	"github.com/groupdep/groupdep/pkg/sql/pgwire/pgcode"
	"github.com/groupdep/groupdep/pkg/sql/pgwire/pgerror"
	"github.com/groupdep/groupdep/pkg/sql/sem/tree"
	"github.com/groupdep/groupdep/pkg/sql/sessiondata"
	"github.com/groupdep/groupdep/pkg/sql/types"
	"github.com/stretchr/testify/require"
)

const checkedMode = sessiondata.FullGroupByDependencyChecks

// intTable builds a table of int columns with no keys.
func intTable(name string, cols ...string) *cat.Table {
	tab := &cat.Table{Name: name}
	for i, c := range cols {
		tab.Columns = append(tab.Columns, cat.Column{Name: c, Ordinal: i, Type: types.IntFamily})
	}
	return tab
}

func colRef(tab *cat.Table, name string) *tree.ColumnRef {
	for i := range tab.Columns {
		if tab.Columns[i].Name == name {
			return &tree.ColumnRef{Table: tab, Ordinal: i}
		}
	}
	panic("unknown column " + name)
}

func eq(l, r tree.Expr) *tree.ComparisonExpr {
	return tree.NewComparison(tree.EQ, l, r)
}

func plus(l, r tree.Expr) tree.Expr {
	return &tree.FuncExpr{
		Name:          "+",
		Args:          []tree.Expr{l, r},
		Deterministic: true,
		CmpType:       types.ComparisonFamily(l.CompareType(), r.CompareType()),
	}
}

func intConst(v string) *tree.ConstVal {
	return &tree.ConstVal{Value: v, Type: types.IntFamily}
}

func TestCheckerDisabledMode(t *testing.T) {
	tab := intTable("t", "a", "b")
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a")},
		Select:  []tree.Expr{colRef(tab, "b")},
	}
	checker := fdcheck.NewChecker(0)
	require.NoError(t, checker.CheckBlock(block))
	require.Nil(t, checker.AllowedColumns(tab))
}

func TestCheckerSkipsBlocks(t *testing.T) {
	checker := fdcheck.NewChecker(checkedMode)
	require.NoError(t, checker.CheckBlock(nil))
	require.NoError(t, checker.CheckBlock(&tree.SelectBlock{Internal: true}))
	require.NoError(t, checker.CheckBlock(&tree.SelectBlock{}))
}

func TestSelectListViolation(t *testing.T) {
	tab := intTable("t", "a", "b")
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a")},
		Select:  []tree.Expr{colRef(tab, "a"), colRef(tab, "b")},
	}
	err := fdcheck.NewChecker(checkedMode).CheckBlock(block)
	require.EqualError(t, err, "non-grouping field 'b' is used in SELECT list")
	require.Equal(t, pgcode.Grouping, pgerror.GetPGCode(err))

	var ngf *fdcheck.NonGroupingFieldError
	require.True(t, errors.As(err, &ngf))
	require.Equal(t, "b", ngf.Field)
	require.Equal(t, fdcheck.ClauseSelectList, ngf.Clause)
}

func TestHavingViolation(t *testing.T) {
	tab := intTable("t", "a", "b")
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a")},
		Select:  []tree.Expr{colRef(tab, "a")},
		Having:  tree.NewComparison(tree.GT, colRef(tab, "b"), intConst("1")),
	}
	err := fdcheck.NewChecker(checkedMode).CheckBlock(block)
	require.EqualError(t, err, "non-grouping field 'b' is used in HAVING clause")
}

func TestEqualityExtractionAllowsColumn(t *testing.T) {
	tab := intTable("t", "pk", "a", "b")
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a")},
		Select:  []tree.Expr{colRef(tab, "a"), colRef(tab, "b")},
		Where:   eq(colRef(tab, "b"), plus(colRef(tab, "a"), intConst("1"))),
	}
	checker := fdcheck.NewChecker(checkedMode)
	require.NoError(t, checker.CheckBlock(block))
	require.Equal(t, []int{1, 2}, checker.AllowedColumns(tab))
}

func TestPrimaryKeyClosure(t *testing.T) {
	tab := intTable("t", "pk", "a", "b")
	tab.Keys = []cat.Key{{ColumnOrdinals: []int{0}, Primary: true, Unique: true}}
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "pk")},
		Select:  []tree.Expr{colRef(tab, "a"), colRef(tab, "b")},
	}
	checker := fdcheck.NewChecker(checkedMode)
	require.NoError(t, checker.CheckBlock(block))
	require.Equal(t, []int{0, 1, 2}, checker.AllowedColumns(tab))
}

func TestUniqueKeyClosure(t *testing.T) {
	tab := intTable("t", "a", "b", "c")
	tab.Keys = []cat.Key{{ColumnOrdinals: []int{0, 1}, Unique: true}}

	full := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a"), colRef(tab, "b")},
		Select:  []tree.Expr{colRef(tab, "c")},
	}
	require.NoError(t, fdcheck.NewChecker(checkedMode).CheckBlock(full))

	// Half a unique key determines nothing.
	partial := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a")},
		Select:  []tree.Expr{colRef(tab, "c")},
	}
	err := fdcheck.NewChecker(checkedMode).CheckBlock(partial)
	require.EqualError(t, err, "non-grouping field 'c' is used in SELECT list")
}

// The equality fixed point must not depend on the order the WHERE conjuncts
// are written in.
func TestConjunctOrderIndependence(t *testing.T) {
	conjuncts := func(tab *cat.Table) []tree.Expr {
		return []tree.Expr{
			eq(colRef(tab, "b"), colRef(tab, "c")),
			eq(colRef(tab, "c"), plus(colRef(tab, "a"), intConst("1"))),
		}
	}
	for _, order := range [][]int{{0, 1}, {1, 0}} {
		tab := intTable("t", "a", "b", "c")
		cs := conjuncts(tab)
		block := &tree.SelectBlock{
			Tables:  []*cat.Table{tab},
			GroupBy: []tree.Expr{colRef(tab, "a")},
			Select:  []tree.Expr{colRef(tab, "b"), colRef(tab, "c")},
			Where:   &tree.AndExpr{Children: []tree.Expr{cs[order[0]], cs[order[1]]}},
		}
		checker := fdcheck.NewChecker(checkedMode)
		require.NoError(t, checker.CheckBlock(block))
		require.Equal(t, []int{0, 1, 2}, checker.AllowedColumns(tab))
	}
}

// Re-analyzing a block must reset its per-table state and reach the same
// verdict.
func TestCheckBlockIdempotent(t *testing.T) {
	tab := intTable("t", "a", "b")
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a")},
		Select:  []tree.Expr{colRef(tab, "a"), colRef(tab, "b")},
		Where:   eq(colRef(tab, "b"), colRef(tab, "a")),
	}
	checker := fdcheck.NewChecker(checkedMode)
	require.NoError(t, checker.CheckBlock(block))
	first := checker.AllowedColumns(tab)
	require.NoError(t, checker.CheckBlock(block))
	require.Equal(t, first, checker.AllowedColumns(tab))
}

func TestNonDeterministicEqualitySkipped(t *testing.T) {
	tab := intTable("t", "a", "b")
	rand := &tree.FuncExpr{Name: "rand", Deterministic: false, CmpType: types.FloatFamily}
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a")},
		Select:  []tree.Expr{colRef(tab, "b")},
		Where:   eq(colRef(tab, "b"), rand),
	}
	err := fdcheck.NewChecker(checkedMode).CheckBlock(block)
	require.EqualError(t, err, "non-grouping field 'b' is used in SELECT list")
}

// A mixed-type equality compares coerced values, so it cannot certify a
// dependency for the column as stored.
func TestTypeMismatchExtractionRefused(t *testing.T) {
	tab := intTable("t", "a", "b")
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{colRef(tab, "a")},
		Select:  []tree.Expr{colRef(tab, "b")},
		Where:   eq(colRef(tab, "b"), &tree.ConstVal{Value: "'1'", Type: types.StringFamily}),
	}
	err := fdcheck.NewChecker(checkedMode).CheckBlock(block)
	require.EqualError(t, err, "non-grouping field 'b' is used in SELECT list")
}

func TestNoGroupingAllowsEverything(t *testing.T) {
	tab := intTable("t", "a", "b")
	block := &tree.SelectBlock{
		Tables: []*cat.Table{tab},
		Select: []tree.Expr{colRef(tab, "a"), colRef(tab, "b")},
	}
	checker := fdcheck.NewChecker(checkedMode)
	require.NoError(t, checker.CheckBlock(block))
	require.Equal(t, []int{0, 1}, checker.AllowedColumns(tab))
}

func TestMaterializedDerivedPropagation(t *testing.T) {
	v := intTable("v", "x", "y")
	v.MaterializedDerived = true
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{v},
		GroupBy: []tree.Expr{colRef(v, "x")},
		Select:  []tree.Expr{colRef(v, "y")},
	}
	checker := fdcheck.NewChecker(checkedMode)
	require.NoError(t, checker.CheckBlock(block))
	require.Equal(t, []int{0, 1}, checker.AllowedColumns(v))
}

// A subquery under a row-scoped modification target (a scalar subquery in a
// single-row UPDATE assignment) may reference any column of the target: the
// target row is bound before the subquery runs.
func TestRowTargetMarksOuterAllowed(t *testing.T) {
	tgt := intTable("tgt", "k", "v")
	src := intTable("src", "a", "b")
	outer := &tree.SelectBlock{Tables: []*cat.Table{tgt}}
	inner := &tree.SelectBlock{
		Tables:          []*cat.Table{src},
		GroupBy:         []tree.Expr{colRef(src, "a")},
		Select:          []tree.Expr{colRef(src, "a"), colRef(tgt, "v")},
		Outer:           outer,
		OuterAggregated: true,
		OuterRowTarget:  true,
	}
	checker := fdcheck.NewChecker(checkedMode)
	require.NoError(t, checker.CheckBlock(inner))
	require.Equal(t, []int{0, 1}, checker.AllowedColumns(tgt))
}

// A correlated reference made from a subquery in the enclosing block's WHERE
// clause sees pre-grouping row values and is always legal.
func TestOuterRefWhereContextExempt(t *testing.T) {
	ot := intTable("ot", "a", "b")
	it := intTable("it", "x", "y")
	inner := &tree.SelectBlock{
		Tables:          []*cat.Table{it},
		GroupBy:         []tree.Expr{colRef(it, "x")},
		Select:          []tree.Expr{colRef(it, "x")},
		Where:           eq(colRef(it, "y"), colRef(ot, "b")),
		OuterAggregated: true,
	}
	outer := &tree.SelectBlock{
		Tables:  []*cat.Table{ot},
		GroupBy: []tree.Expr{colRef(ot, "a")},
		Select:  []tree.Expr{colRef(ot, "a")},
		Where:   eq(colRef(ot, "a"), &tree.Subquery{Block: inner}),
	}
	inner.Outer = outer

	checker := fdcheck.NewChecker(checkedMode)
	require.NoError(t, checker.CheckBlock(outer))
	require.Equal(t, tree.CtxWhere, inner.SubqueryCtx)
	require.NoError(t, checker.CheckBlock(inner))
}

// A correlated reference made from a subquery in the enclosing block's SELECT
// list is subject to the enclosing block's grouping rules.
func TestOuterRefSelectContextRequiresAllowed(t *testing.T) {
	newBlocks := func(outerGroupBy func(ot *cat.Table) []tree.Expr) (checker *fdcheck.Checker, outer, inner *tree.SelectBlock) {
		ot := intTable("ot", "a", "b")
		it := intTable("it", "x", "y")
		inner = &tree.SelectBlock{
			Tables:          []*cat.Table{it},
			GroupBy:         []tree.Expr{colRef(it, "x")},
			Select:          []tree.Expr{colRef(it, "x")},
			Where:           eq(colRef(it, "y"), colRef(ot, "b")),
			OuterAggregated: true,
		}
		outer = &tree.SelectBlock{
			Tables:  []*cat.Table{ot},
			GroupBy: outerGroupBy(ot),
			Select:  []tree.Expr{colRef(ot, "a"), &tree.Subquery{Block: inner}},
		}
		inner.Outer = outer
		return fdcheck.NewChecker(checkedMode), outer, inner
	}

	// ot.b is not a grouping column of the enclosing block: the reference in
	// the subquery's WHERE is reported against that WHERE.
	checker, outer, inner := newBlocks(func(ot *cat.Table) []tree.Expr {
		return []tree.Expr{colRef(ot, "a")}
	})
	require.NoError(t, checker.CheckBlock(outer))
	require.Equal(t, tree.CtxSelectList, inner.SubqueryCtx)
	err := checker.CheckBlock(inner)
	require.EqualError(t, err, "non-grouping field 'b' is used in WHERE clause")

	// Grouping the enclosing block by ot.b as well makes the reference legal.
	checker, outer, inner = newBlocks(func(ot *cat.Table) []tree.Expr {
		return []tree.Expr{colRef(ot, "a"), colRef(ot, "b")}
	})
	require.NoError(t, checker.CheckBlock(outer))
	require.NoError(t, checker.CheckBlock(inner))
}

// Adding an equality conjunct can only grow the allowed set: extraction never
// revokes a dependency.
func TestEqualityMonotonicity(t *testing.T) {
	where := func(tab *cat.Table, extra bool) tree.Expr {
		conjuncts := []tree.Expr{eq(colRef(tab, "b"), colRef(tab, "a"))}
		if extra {
			conjuncts = append(conjuncts, eq(colRef(tab, "c"), colRef(tab, "b")))
		}
		return &tree.AndExpr{Children: conjuncts}
	}
	run := func(extra bool) []int {
		tab := intTable("t", "a", "b", "c")
		block := &tree.SelectBlock{
			Tables:  []*cat.Table{tab},
			GroupBy: []tree.Expr{colRef(tab, "a")},
			Select:  []tree.Expr{colRef(tab, "a")},
			Where:   where(tab, extra),
		}
		checker := fdcheck.NewChecker(checkedMode)
		require.NoError(t, checker.CheckBlock(block))
		return checker.AllowedColumns(tab)
	}
	require.Equal(t, []int{0, 1}, run(false))
	require.Equal(t, []int{0, 1, 2}, run(true))
}

// A grouping expression that is not a bare column matches structurally equal
// expressions elsewhere in the block.
func TestGroupingExpressionMatch(t *testing.T) {
	tab := intTable("t", "a", "b")
	gb := plus(colRef(tab, "a"), colRef(tab, "b"))
	block := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{gb},
		Select:  []tree.Expr{plus(colRef(tab, "a"), colRef(tab, "b"))},
	}
	require.NoError(t, fdcheck.NewChecker(checkedMode).CheckBlock(block))

	swapped := &tree.SelectBlock{
		Tables:  []*cat.Table{tab},
		GroupBy: []tree.Expr{plus(colRef(tab, "a"), colRef(tab, "b"))},
		Select:  []tree.Expr{plus(colRef(tab, "b"), colRef(tab, "a"))},
	}
	err := fdcheck.NewChecker(checkedMode).CheckBlock(swapped)
	require.EqualError(t, err, "non-grouping field 'b' is used in SELECT list")
}
