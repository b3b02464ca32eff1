// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package tree

// This file implements the two dependency capabilities the analyzer asks of
// every expression variant.
//
// ExclFuncDepOnGroupingFields answers whether an expression is composed only
// of constants and allowed columns. It backs the validation of SELECT list
// and HAVING, and of non-equality WHERE conjuncts.
//
// FuncDepFromEqualities classifies one side of an equality predicate:
//
//   - closed: the side depends only on constants and allowed columns (it can
//     serve as the dependent part of an extraction);
//   - open with a column set: the side is built from the returned bare
//     columns, which may become allowed later (deferred extraction);
//   - open with no column set: nothing extractable (opaque subquery,
//     non-deterministic call). If additionally an offending expression is
//     returned, the side uses a reference that is invalid in this context
//     and the WHERE clause must be reported.
//
// Both capabilities consult the analysis state through DepState.

// DepState is the view of the analyzer state the capability methods consult.
// It is implemented by the per-block analysis run in pkg/sql/fdcheck.
type DepState interface {
	// ColumnAllowed reports whether the column is currently known to be
	// functionally dependent on the grouping columns.
	ColumnAllowed(ref *ColumnRef) bool

	// LocalColumn reports whether the reference points into a leaf table of
	// the block under analysis.
	LocalColumn(ref *ColumnRef) bool

	// OuterRefAllowed reports whether a reference to an enclosing block's
	// column is legal in the position currently being analyzed.
	OuterRefAllowed(ref *ColumnRef) bool

	// MatchesGroupingExpr reports whether the expression matches one of the
	// block's non-column grouping expressions.
	MatchesGroupingExpr(e Expr) bool
}

// ExclFuncDepOnGroupingFields on a column reference is a plain allowed-set
// lookup for local columns; outer-scope references follow the correlated
// subquery rules.
func (e *ColumnRef) ExclFuncDepOnGroupingFields(s DepState) (bool, Expr) {
	if s.LocalColumn(e) {
		if s.ColumnAllowed(e) {
			return true, nil
		}
		return false, e
	}
	if s.OuterRefAllowed(e) {
		return true, nil
	}
	return false, e
}

// FuncDepFromEqualities implements the equality-side classification for a
// column reference. An invalid outer reference yields no column set: it can
// never become allowed by extraction.
func (e *ColumnRef) FuncDepFromEqualities(s DepState) (bool, []*ColumnRef, Expr) {
	if s.LocalColumn(e) {
		if s.ColumnAllowed(e) {
			return true, nil, nil
		}
		return false, []*ColumnRef{e}, nil
	}
	if s.OuterRefAllowed(e) {
		return true, nil, nil
	}
	return false, nil, e
}

// ExclFuncDepOnGroupingFields on a constant always passes.
func (e *ConstVal) ExclFuncDepOnGroupingFields(DepState) (bool, Expr) {
	return true, nil
}

// FuncDepFromEqualities on a constant is closed.
func (e *ConstVal) FuncDepFromEqualities(DepState) (bool, []*ColumnRef, Expr) {
	return true, nil, nil
}

// ExclFuncDepOnGroupingFields on a function call passes if the call matches
// a grouping expression, or if every argument passes.
func (e *FuncExpr) ExclFuncDepOnGroupingFields(s DepState) (bool, Expr) {
	if s.MatchesGroupingExpr(e) {
		return true, nil
	}
	return exclFuncDepAll(s, e.Args)
}

// FuncDepFromEqualities on a function call combines the classification of
// its arguments. Non-deterministic calls are opaque: their value cannot
// certify a stable dependency.
func (e *FuncExpr) FuncDepFromEqualities(s DepState) (bool, []*ColumnRef, Expr) {
	if !e.Deterministic {
		return false, nil, nil
	}
	if s.MatchesGroupingExpr(e) {
		return true, nil, nil
	}
	return funcDepCombine(s, e.Args)
}

// ExclFuncDepOnGroupingFields on a conjunction checks every conjunct.
func (e *AndExpr) ExclFuncDepOnGroupingFields(s DepState) (bool, Expr) {
	return exclFuncDepAll(s, e.Children)
}

// FuncDepFromEqualities on a conjunction combines its conjuncts.
func (e *AndExpr) FuncDepFromEqualities(s DepState) (bool, []*ColumnRef, Expr) {
	return funcDepCombine(s, e.Children)
}

// ExclFuncDepOnGroupingFields on a comparison passes if it matches a
// grouping expression, or if both sides pass.
func (e *ComparisonExpr) ExclFuncDepOnGroupingFields(s DepState) (bool, Expr) {
	if s.MatchesGroupingExpr(e) {
		return true, nil
	}
	return exclFuncDepAll(s, []Expr{e.Left, e.Right})
}

// FuncDepFromEqualities on a comparison combines its sides.
func (e *ComparisonExpr) FuncDepFromEqualities(s DepState) (bool, []*ColumnRef, Expr) {
	if s.MatchesGroupingExpr(e) {
		return true, nil, nil
	}
	return funcDepCombine(s, []Expr{e.Left, e.Right})
}

// ExclFuncDepOnGroupingFields on an alias delegates to the real expression.
func (e *AliasExpr) ExclFuncDepOnGroupingFields(s DepState) (bool, Expr) {
	if s.MatchesGroupingExpr(e.Expr) {
		return true, nil
	}
	return e.Expr.ExclFuncDepOnGroupingFields(s)
}

// FuncDepFromEqualities on an alias delegates to the real expression.
func (e *AliasExpr) FuncDepFromEqualities(s DepState) (bool, []*ColumnRef, Expr) {
	return e.Expr.FuncDepFromEqualities(s)
}

// ExclFuncDepOnGroupingFields on a subquery passes: the nested block's own
// analysis establishes its internal consistency, including the legality of
// the references it makes into enclosing blocks (see DepState.OuterRefAllowed
// and SelectBlock.SubqueryCtx).
func (e *Subquery) ExclFuncDepOnGroupingFields(DepState) (bool, Expr) {
	return true, nil
}

// FuncDepFromEqualities on a subquery is opaque: no dependency can be
// extracted through a nested block's boundary.
func (e *Subquery) FuncDepFromEqualities(DepState) (bool, []*ColumnRef, Expr) {
	return false, nil, nil
}

func exclFuncDepAll(s DepState, exprs []Expr) (bool, Expr) {
	for _, e := range exprs {
		if ok, offending := e.ExclFuncDepOnGroupingFields(s); !ok {
			return false, offending
		}
	}
	return true, nil
}

func funcDepCombine(s DepState, exprs []Expr) (bool, []*ColumnRef, Expr) {
	closed := true
	var cols []*ColumnRef
	for _, e := range exprs {
		cl, cs, offending := e.FuncDepFromEqualities(s)
		if offending != nil {
			return false, nil, offending
		}
		if cl {
			continue
		}
		if len(cs) == 0 {
			// An opaque sub-expression poisons the whole side: nothing can
			// be extracted from it.
			return false, nil, nil
		}
		closed = false
		cols = append(cols, cs...)
	}
	if closed {
		return true, nil, nil
	}
	return false, cols, nil
}
