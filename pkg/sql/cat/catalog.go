// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package cat holds the slice of table metadata the functional-dependency
// analyzer consumes: column lists, key constraints, and whether a table is a
// materialized derived table. The surrounding compiler owns name resolution
// and the full catalog; the analyzer only ever sees resolved *Table values
// hanging off a query block, so the definitions here are plain data with no
// lookup machinery.
package cat

import "github.com/groupdep/groupdep/pkg/sql/types"

// Column is one column of a Table. Ordinal is the column's stable position
// within its table and indexes the per-table allowed-column bitmaps built
// during analysis.
type Column struct {
	Name    string
	Ordinal int
	Type    types.Family
}

// Key describes a candidate key over a table: an ordered list of column
// ordinals plus constraint flags. A key with Unique set (primary keys
// included) functionally determines every column of its table.
type Key struct {
	// ColumnOrdinals lists the key parts in key order.
	ColumnOrdinals []int
	Primary        bool
	Unique         bool
}

// Table is a leaf data source of a query block: a base table, or a
// materialized derived table or view produced by an already-compiled inner
// block. Table values carry no mutable analysis state; the analyzer keys its
// statement-scoped allowed-column bitmaps off the *Table identity.
type Table struct {
	Name    string
	Columns []Column
	Keys    []Key

	// MaterializedDerived marks a FROM-clause subquery or view whose result
	// is computed once and scanned as a table. The block that defines it is
	// analyzed before any block that uses it.
	MaterializedDerived bool
}

// ColumnCount returns the number of columns in the table.
func (t *Table) ColumnCount() int {
	return len(t.Columns)
}

// Column returns the column at the given ordinal.
func (t *Table) Column(ord int) *Column {
	return &t.Columns[ord]
}

// PrimaryKey returns the table's primary key, or nil if it has none.
func (t *Table) PrimaryKey() *Key {
	for i := range t.Keys {
		if t.Keys[i].Primary {
			return &t.Keys[i]
		}
	}
	return nil
}
