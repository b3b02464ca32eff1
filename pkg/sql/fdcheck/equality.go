// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package fdcheck

import (
	"github.com/groupdep/groupdep/pkg/sql/sem/tree"
)

// deferredEq is an equality whose sides could not be classified on the first
// pass, together with the column sets extracted from each side at that time.
// Instances live within one block's analysis only.
type deferredEq struct {
	eq        *tree.ComparisonExpr
	leftCols  []*tree.ColumnRef
	rightCols []*tree.ColumnRef
}

// checkWhere decomposes the WHERE clause into top-level conjuncts, extracts
// new allowed columns from its equalities, and validates that every conjunct
// uses only references that are legal in this context.
//
// Equalities that resolve neither side on the first pass are deferred and
// retried in a fixed-point loop interleaved with key closure: a later
// extraction (or a key) may close one side, enabling extraction from the
// other.
func (r *blockCheck) checkWhere() error {
	cond := r.block.Where
	if cond == nil {
		return nil
	}

	var conjuncts []tree.Expr
	if and, ok := cond.(*tree.AndExpr); ok {
		conjuncts = and.Children
	} else {
		conjuncts = []tree.Expr{cond}
	}

	var deferred []deferredEq
	eqCount := 0
	for _, conj := range conjuncts {
		if eq := tree.AsEquality(conj); eq != nil {
			eqCount++
			if err := r.checkEquality(eq, &deferred); err != nil {
				return err
			}
			continue
		}
		// Any other predicate cannot produce a dependency, but may still
		// carry a reference that is invalid in this context.
		if closed, _, offending := conj.FuncDepFromEqualities(r); !closed && offending != nil {
			return newNonGroupingFieldError(offending, ClauseWhere)
		}
	}

	if len(deferred) == 0 {
		// Every equality was resolved or discarded; newly allowed columns
		// may have completed a key.
		r.checkKeysAllowed()
		return nil
	}
	if eqCount == len(deferred) {
		// Nothing was resolved on the first pass, so no deferred equality
		// can make progress either.
		return nil
	}

	// Fixed point: each round gives every deferred equality with at least
	// one dependency-satisfied side exactly one extraction attempt, after
	// which it leaves the worklist; both-open equalities survive the round.
	// When a round extracts nothing, key closure gets a chance to make
	// progress; the loop ends when neither does.
	extracted := true
	for extracted && len(deferred) > 0 {
		extracted = false
		var next []deferredEq
		for _, d := range deferred {
			depL := r.colsAllowed(d.leftCols)
			depR := r.colsAllowed(d.rightCols)
			if !depL && !depR {
				next = append(next, d)
				continue
			}
			if depL != depR {
				if depL {
					if r.extractNewDepField(d.eq, d.eq.Left, d.eq.Right) {
						extracted = true
					}
				} else if r.extractNewDepField(d.eq, d.eq.Right, d.eq.Left) {
					extracted = true
				}
			}
		}
		deferred = next
		if !extracted || len(deferred) == 0 {
			if r.checkKeysAllowed() {
				extracted = true
			}
		}
	}
	return nil
}

// checkEquality classifies both sides of a top-level equality and either
// extracts a new allowed column, defers the equality, discards it, or
// reports an invalid reference.
func (r *blockCheck) checkEquality(eq *tree.ComparisonExpr, deferred *[]deferredEq) error {
	left, right := eq.Left, eq.Right

	// A non-deterministic call on either side disqualifies the equality
	// from extraction: its value cannot certify a stable dependency. The
	// predicate itself stays valid.
	if nonDeterministic(left) || nonDeterministic(right) {
		return nil
	}

	closedL, colsL, offL := left.FuncDepFromEqualities(r)
	if !closedL && len(colsL) == 0 {
		// Nothing extractable on the left. A witness means the side uses a
		// reference that is invalid in this context.
		if offL != nil {
			return newNonGroupingFieldError(offL, ClauseWhere)
		}
		return nil
	}

	closedR, colsR, offR := right.FuncDepFromEqualities(r)
	if (closedL && closedR) ||
		(!closedR && len(colsR) == 0) ||
		(len(colsL) != 1 && len(colsR) != 1) {
		// Both sides already closed, nothing extractable on the right, or a
		// compound equality with no single identifiable column on either
		// side.
		if offR != nil {
			return newNonGroupingFieldError(offR, ClauseWhere)
		}
		return nil
	}

	if !closedL && !closedR {
		*deferred = append(*deferred, deferredEq{eq: eq, leftCols: colsL, rightCols: colsR})
		return nil
	}

	if closedL {
		r.extractNewDepField(eq, left, right)
	} else {
		r.extractNewDepField(eq, right, left)
	}
	return nil
}

// extractNewDepField attempts the single-field extraction: candidate must
// resolve to exactly one bare, not yet allowed column, and the dependent
// part must share the equality's declared comparison type. A type mismatch
// refuses the extraction even though the predicate itself remains valid: the
// implicit coercion injected by a mixed-type comparison would silently
// change the dependency semantics.
func (r *blockCheck) extractNewDepField(eq *tree.ComparisonExpr, dependent, candidate tree.Expr) bool {
	ref := tree.AsColumnRef(candidate)
	if ref == nil {
		return false
	}
	if dependent.CompareType() != eq.CmpType {
		return false
	}
	set := r.checker.setFor(ref.Table)
	if set.contains(ref.Ordinal) {
		return false
	}
	set.add(ref.Ordinal)
	// One allowed column of a materialized derived table allows the whole
	// table; apply the propagation eagerly.
	if ref.Table.MaterializedDerived {
		set.setAll()
	}
	return true
}

// colsAllowed reports whether every column in the set is now allowed. An
// empty set never satisfies a side: it carries nothing to re-evaluate.
func (r *blockCheck) colsAllowed(cols []*tree.ColumnRef) bool {
	if len(cols) == 0 {
		return false
	}
	for _, ref := range cols {
		if !r.ColumnAllowed(ref) {
			return false
		}
	}
	return true
}

func nonDeterministic(e tree.Expr) bool {
	f, ok := e.(*tree.FuncExpr)
	return ok && !f.Deterministic
}
