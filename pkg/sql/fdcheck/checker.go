// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package fdcheck decides, per query block, whether every column referenced
// in the SELECT list and HAVING clause is a grouping column or provably
// functionally dependent on the grouping columns.
//
// Dependencies are discovered from three sources and chased to a fixed
// point: key constraints (an allowed key allows the whole row), equality
// predicates in the WHERE clause, and materialized derived table propagation
// (one allowed column of a validated derived table allows the whole table).
// A block that fails yields a NonGroupingFieldError naming the offending
// expression and clause.
package fdcheck

import (
	"github.com/groupdep/groupdep/pkg/sql/cat"
	"github.com/groupdep/groupdep/pkg/sql/sem/tree"
	"github.com/groupdep/groupdep/pkg/sql/sessiondata"
)

// Checker holds the statement-scoped analysis state: one allowed-column set
// per table referenced by the statement. A Checker is not safe for
// concurrent use and must not be shared across statements; create one per
// statement compile.
type Checker struct {
	mode    sessiondata.SQLMode
	allowed map[*cat.Table]*allowedSet
}

// NewChecker returns a Checker for one statement compile. The analysis runs
// only when mode carries FullGroupByDependencyChecks.
func NewChecker(mode sessiondata.SQLMode) *Checker {
	return &Checker{
		mode:    mode,
		allowed: make(map[*cat.Table]*allowedSet),
	}
}

// CheckBlock analyzes one query block. Blocks must be handed over in the
// compiler's order: blocks defining materialized derived tables before the
// blocks that scan them, enclosing blocks before their expression
// subqueries.
//
// The returned error, if any, is a NonGroupingFieldError with candidate code
// pgcode.Grouping.
func (c *Checker) CheckBlock(b *tree.SelectBlock) error {
	if !c.mode.Has(sessiondata.FullGroupByDependencyChecks) {
		return nil
	}
	if b == nil || b.Internal || len(b.Tables) == 0 {
		return nil
	}
	run := &blockCheck{
		checker: c,
		block:   b,
		gbStrs:  make(map[string]struct{}),
	}
	return run.check()
}

// AllowedColumns returns the ordinals of the columns of tab marked allowed
// by the analysis so far, in increasing order. It is a read-only snapshot,
// meant for tests and diagnostics.
func (c *Checker) AllowedColumns(tab *cat.Table) []int {
	set, ok := c.allowed[tab]
	if !ok {
		return nil
	}
	return set.ordinals()
}

// setFor returns the allowed set owned by tab, creating it on first use.
func (c *Checker) setFor(tab *cat.Table) *allowedSet {
	set, ok := c.allowed[tab]
	if !ok {
		set = newAllowedSet(tab.ColumnCount())
		c.allowed[tab] = set
	}
	return set
}

// blockCheck is the state of one block's analysis. It implements
// tree.DepState for the capability methods.
type blockCheck struct {
	checker *Checker
	block   *tree.SelectBlock

	// gbExprs collects the non-column GROUP BY expressions; gbStrs indexes
	// their rendered form for matching against select/having/where
	// sub-expressions.
	gbExprs []tree.Expr
	gbStrs  map[string]struct{}

	// pendingDerived lists the materialized derived tables of the FROM
	// clause that are not yet fully allowed.
	pendingDerived []*cat.Table
}

var _ tree.DepState = (*blockCheck)(nil)

func (r *blockCheck) check() error {
	b := r.block

	// A block with no GROUP BY and no HAVING still needs validation when it
	// is a correlated subquery under a select: its outer references are
	// subject to the enclosing block's grouping rules.
	needCheck := len(b.GroupBy) > 0 || b.Having != nil ||
		(b.Outer != nil && b.OuterAggregated)

	for _, tab := range b.Tables {
		r.checker.setFor(tab).reset()
		if tab.MaterializedDerived {
			r.pendingDerived = append(r.pendingDerived, tab)
		}
	}

	r.markRowTargetAllowed()
	b.TagSubqueries()

	if len(b.GroupBy) == 0 && b.Having == nil {
		// No grouping: every FROM-clause column is allowed.
		for _, tab := range b.Tables {
			r.checker.setFor(tab).setAll()
		}
		if !needCheck {
			return nil
		}
	}

	r.collectGroupingCols()
	if err := r.checkWhere(); err != nil {
		return err
	}
	return r.validate()
}

// markRowTargetAllowed handles blocks nested in a row-scoped modification
// target with no join (a scalar subquery inside a single-row UPDATE
// assignment): the target's columns are bound once per row and exempt from
// grouping analysis.
func (r *blockCheck) markRowTargetAllowed() {
	b := r.block
	if !b.OuterRowTarget || b.Outer == nil {
		return
	}
	for _, tab := range b.Outer.Tables {
		r.checker.setFor(tab).setAll()
	}
}

// validate checks that the SELECT list and HAVING clause are composed of
// constants and allowed columns only. The first violation wins.
func (r *blockCheck) validate() error {
	for _, item := range r.block.Select {
		if ok, offending := item.ExclFuncDepOnGroupingFields(r); !ok {
			return newNonGroupingFieldError(offending, ClauseSelectList)
		}
	}
	if having := r.block.Having; having != nil {
		if ok, offending := having.ExclFuncDepOnGroupingFields(r); !ok {
			return newNonGroupingFieldError(offending, ClauseHaving)
		}
	}
	return nil
}

// ColumnAllowed implements tree.DepState.
func (r *blockCheck) ColumnAllowed(ref *tree.ColumnRef) bool {
	return r.checker.setFor(ref.Table).contains(ref.Ordinal)
}

// LocalColumn implements tree.DepState.
func (r *blockCheck) LocalColumn(ref *tree.ColumnRef) bool {
	return r.block.OwnsTable(ref.Table)
}

// MatchesGroupingExpr implements tree.DepState: an expression that renders
// identically to a non-column GROUP BY expression is itself a grouping
// value.
func (r *blockCheck) MatchesGroupingExpr(e tree.Expr) bool {
	if len(r.gbStrs) == 0 {
		return false
	}
	_, ok := r.gbStrs[e.String()]
	return ok
}

// OuterRefAllowed implements tree.DepState. A reference from this block to
// an enclosing block's column is legal when the subquery hop into the owning
// block sits in its WHERE clause (outer values are bound before grouping
// there), when the owning block does not group its rows, or when the column
// is allowed in the owning block (whose analysis already ran: enclosing
// blocks are analyzed before their expression subqueries).
func (r *blockCheck) OuterRefAllowed(ref *tree.ColumnRef) bool {
	child := r.block
	for blk := child.Outer; blk != nil; child, blk = blk, blk.Outer {
		if !blk.OwnsTable(ref.Table) {
			continue
		}
		if child.SubqueryCtx == tree.CtxWhere {
			return true
		}
		if !blk.Aggregated() {
			return true
		}
		return r.checker.setFor(ref.Table).contains(ref.Ordinal)
	}
	// Reference into no enclosing block: malformed; report it.
	return false
}
