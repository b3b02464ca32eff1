// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package fdcheck

import (
	"github.com/groupdep/groupdep/pkg/sql/cat"
	"github.com/groupdep/groupdep/pkg/sql/sem/tree"
)

// collectGroupingCols scans the GROUP BY list: bare column references (also
// through alias wrappers) are marked allowed; any other grouping expression
// is kept aside for matching against select/having/where sub-expressions.
// Key and derived-table closure run once afterwards, since the grouping
// columns may already cover a key or touch a derived table.
func (r *blockCheck) collectGroupingCols() {
	for _, e := range r.block.GroupBy {
		if ref := tree.AsColumnRef(e); ref != nil {
			r.checker.setFor(ref.Table).add(ref.Ordinal)
			continue
		}
		r.gbExprs = append(r.gbExprs, e)
		r.gbStrs[e.String()] = struct{}{}
	}
	r.checkKeysAllowed()
	r.checkDerivedAllowed()
}

// checkKeysAllowed applies key closure: if every column of a table's primary
// key, or of any unique key, is allowed, the key value determines the whole
// row and every column of the table becomes allowed. Reports whether any
// table changed, which drives the equality fixed point.
func (r *blockCheck) checkKeysAllowed() bool {
	changed := false
	for _, tab := range r.block.Tables {
		set := r.checker.setFor(tab)
		if set.isAll() {
			continue
		}
		if pk := tab.PrimaryKey(); pk != nil && r.keyAllowed(set, pk) {
			set.setAll()
			changed = true
			continue
		}
		for i := range tab.Keys {
			k := &tab.Keys[i]
			if k.Primary || !k.Unique {
				continue
			}
			if r.keyAllowed(set, k) {
				set.setAll()
				changed = true
				break
			}
		}
	}
	return changed
}

func (r *blockCheck) keyAllowed(set *allowedSet, k *cat.Key) bool {
	if len(k.ColumnOrdinals) == 0 {
		return false
	}
	for _, ord := range k.ColumnOrdinals {
		if !set.contains(ord) {
			return false
		}
	}
	return true
}

// checkDerivedAllowed applies derived-table closure: a materialized derived
// table with any allowed column becomes fully allowed, because the block
// that defined it has already been validated and the outer query cannot
// observe its internal dependency structure. Fully allowed tables leave the
// pending list. Reports whether the pending list shrank.
func (r *blockCheck) checkDerivedAllowed() bool {
	if len(r.pendingDerived) == 0 {
		return false
	}
	var next []*cat.Table
	for _, tab := range r.pendingDerived {
		set := r.checker.setFor(tab)
		if set.empty() {
			next = append(next, tab)
			continue
		}
		set.setAll()
	}
	changed := len(next) != len(r.pendingDerived)
	r.pendingDerived = next
	return changed
}
