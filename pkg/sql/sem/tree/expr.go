// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package tree holds the name-resolved expression and query-block
// representation consumed by the functional-dependency analyzer. The
// surrounding compiler builds these nodes; the analyzer only reads them,
// with the exception of the subquery clause tags written by TagSubqueries.
package tree

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/groupdep/groupdep/pkg/sql/cat"
	"github.com/groupdep/groupdep/pkg/sql/types"
)

// Expr is a name-resolved scalar expression.
//
// Beyond rendering and typing, every variant supplies the two dependency
// capabilities the analyzer relies on: ExclFuncDepOnGroupingFields (is the
// expression composed of constants and allowed columns only) and
// FuncDepFromEqualities (closed/open classification of an equality side plus
// extraction of the bare columns it is built from). Both are defined in
// func_dep.go.
type Expr interface {
	fmt.Stringer

	// CompareType returns the type family the expression contributes to a
	// comparison it takes part in.
	CompareType() types.Family

	// ExclFuncDepOnGroupingFields reports whether the expression depends
	// exclusively on constants and allowed columns given the analysis state.
	// On failure it returns the first offending sub-expression.
	ExclFuncDepOnGroupingFields(s DepState) (ok bool, offending Expr)

	// FuncDepFromEqualities classifies the expression as one side of an
	// equality predicate: closed means it depends only on constants and
	// allowed columns. An open expression returns the bare column references
	// it is built from, when they are extractable. A reference that is
	// invalid in the current context is returned as offending, with no
	// column set.
	FuncDepFromEqualities(s DepState) (closed bool, cols []*ColumnRef, offending Expr)
}

// ColumnRef is a resolved reference to a column of some query block's leaf
// table. References to tables of an enclosing block (correlated references)
// use the same node; the analyzer distinguishes them by table identity.
type ColumnRef struct {
	Table   *cat.Table
	Ordinal int

	// DisplayName is the name the reference resolved from, used in error
	// messages. When empty, the catalog name of the column is used.
	DisplayName string
}

var _ Expr = (*ColumnRef)(nil)

func (e *ColumnRef) String() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Table.Column(e.Ordinal).Name
}

// CompareType returns the column's type family.
func (e *ColumnRef) CompareType() types.Family {
	return e.Table.Column(e.Ordinal).Type
}

// ConstVal is a literal constant.
type ConstVal struct {
	// Value is the literal as written.
	Value string
	Type  types.Family
}

var _ Expr = (*ConstVal)(nil)

func (e *ConstVal) String() string { return e.Value }

// CompareType returns the literal's type family.
func (e *ConstVal) CompareType() types.Family { return e.Type }

// FuncExpr is a function call or a scalar operator application. Operators
// are functions whose name is the operator token; they render infix.
type FuncExpr struct {
	Name string
	Args []Expr

	// Deterministic is unset for functions whose value is not a pure
	// function of their arguments (RAND, UUID, ...). Equalities over such
	// functions never certify a functional dependency.
	Deterministic bool

	// CmpType is the comparison-type tag assigned during type checking.
	CmpType types.Family
}

var _ Expr = (*FuncExpr)(nil)

func (e *FuncExpr) String() string {
	if e.operator() && len(e.Args) == 2 {
		return fmt.Sprintf("%s %s %s", e.Args[0], e.Name, e.Args[1])
	}
	var buf bytes.Buffer
	buf.WriteString(e.Name)
	buf.WriteByte('(')
	for i, arg := range e.Args {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(arg.String())
	}
	buf.WriteByte(')')
	return buf.String()
}

func (e *FuncExpr) operator() bool {
	return e.Name != "" && !(e.Name[0] >= 'a' && e.Name[0] <= 'z') &&
		!(e.Name[0] >= 'A' && e.Name[0] <= 'Z') && e.Name[0] != '_'
}

// CompareType returns the comparison-type tag of the call.
func (e *FuncExpr) CompareType() types.Family { return e.CmpType }

// AndExpr is a conjunction. The WHERE clause decomposition treats its
// children as top-level conjuncts.
type AndExpr struct {
	Children []Expr
}

var _ Expr = (*AndExpr)(nil)

func (e *AndExpr) String() string {
	parts := make([]string, len(e.Children))
	for i, c := range e.Children {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

// CompareType returns the boolean family.
func (e *AndExpr) CompareType() types.Family { return types.BoolFamily }

// ComparisonOp identifies the operator of a ComparisonExpr.
type ComparisonOp int8

// The supported comparison operators. Only EQ takes part in dependency
// extraction; the others are validated like any other predicate.
const (
	EQ ComparisonOp = iota
	NE
	LT
	GT
	LE
	GE
)

var compOpNames = [...]string{EQ: "=", NE: "!=", LT: "<", GT: ">", LE: "<=", GE: ">="}

func (op ComparisonOp) String() string { return compOpNames[op] }

// ComparisonExpr is a binary comparison. CmpType records the type family the
// comparison is carried out in, after any implicit coercion of the sides.
type ComparisonExpr struct {
	Op          ComparisonOp
	Left, Right Expr
	CmpType     types.Family
}

var _ Expr = (*ComparisonExpr)(nil)

// NewComparison builds a comparison and computes its comparison family from
// the sides, the way the type checker of the surrounding compiler would.
func NewComparison(op ComparisonOp, left, right Expr) *ComparisonExpr {
	return &ComparisonExpr{
		Op:      op,
		Left:    left,
		Right:   right,
		CmpType: types.ComparisonFamily(left.CompareType(), right.CompareType()),
	}
}

func (e *ComparisonExpr) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Op, e.Right)
}

// CompareType returns the boolean family: a comparison used as a value is a
// boolean.
func (e *ComparisonExpr) CompareType() types.Family { return types.BoolFamily }

// AliasExpr is a pass-through wrapper introduced by name resolution for
// aliased select items referenced elsewhere in the query.
type AliasExpr struct {
	Expr Expr
	As   string
}

var _ Expr = (*AliasExpr)(nil)

func (e *AliasExpr) String() string { return e.Expr.String() }

// CompareType returns the wrapped expression's family.
func (e *AliasExpr) CompareType() types.Family { return e.Expr.CompareType() }

// Subquery is a nested query block used as a scalar or existential
// expression. Ctx is filled in by the enclosing block's TagSubqueries pass.
type Subquery struct {
	Block *SelectBlock
	Ctx   SubqueryContext
}

var _ Expr = (*Subquery)(nil)

func (e *Subquery) String() string { return "(subquery)" }

// CompareType returns the family of the subquery's single output column,
// when there is one.
func (e *Subquery) CompareType() types.Family {
	if e.Block != nil && len(e.Block.Select) == 1 {
		return e.Block.Select[0].CompareType()
	}
	return types.UnknownFamily
}

// AsColumnRef returns the bare column reference an expression resolves to,
// looking through alias wrappers, or nil if the expression is not a column
// reference.
func AsColumnRef(e Expr) *ColumnRef {
	for {
		switch t := e.(type) {
		case *ColumnRef:
			return t
		case *AliasExpr:
			e = t.Expr
		default:
			return nil
		}
	}
}

// AsEquality returns e as an equality comparison, looking through alias
// wrappers, or nil.
func AsEquality(e Expr) *ComparisonExpr {
	for {
		switch t := e.(type) {
		case *ComparisonExpr:
			if t.Op == EQ {
				return t
			}
			return nil
		case *AliasExpr:
			e = t.Expr
		default:
			return nil
		}
	}
}
