// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package fdcheck

import (
	"github.com/groupdep/groupdep/pkg/util/intsets"
)

// allowedSet tracks, for one table, the columns currently known to be
// functionally dependent on the grouping columns of the block under
// analysis. It only grows during a block's analysis and is reset before the
// next block that references the table.
type allowedSet struct {
	cols intsets.Fast
	// n is the table's column count; the set's shape never changes during
	// analysis.
	n int
}

func newAllowedSet(n int) *allowedSet {
	return &allowedSet{n: n}
}

func (s *allowedSet) reset() {
	s.cols.Clear()
}

func (s *allowedSet) add(ord int) {
	s.cols.Add(ord)
}

func (s *allowedSet) contains(ord int) bool {
	return s.cols.Contains(ord)
}

// setAll marks every column of the table allowed.
func (s *allowedSet) setAll() {
	if s.n > 0 {
		s.cols.AddRange(0, s.n-1)
	}
}

// isAll reports whether every column of the table is allowed.
func (s *allowedSet) isAll() bool {
	return s.cols.Len() == s.n
}

func (s *allowedSet) empty() bool {
	return s.cols.Empty()
}

// ordinals returns the allowed column ordinals in increasing order.
func (s *allowedSet) ordinals() []int {
	res := make([]int, 0, s.cols.Len())
	s.cols.ForEach(func(i int) {
		res = append(res, i)
	})
	return res
}
