// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package intsets

import (
	"bytes"
	"fmt"
	"math/bits"

	"golang.org/x/tools/container/intsets"
)

// Fast keeps a set of small non-negative integers. Values below smallCutoff
// live in an inline bitmap; any larger value switches the set to a sparse
// representation. The zero value is an empty set.
type Fast struct {
	// small is a bitmap for values in [0, smallCutoff).
	small uint64
	// large is allocated lazily, once a value >= smallCutoff is added. When
	// non-nil it holds all elements of the set, including the small ones.
	large *intsets.Sparse
}

// smallCutoff is the size of the inline bitmap.
const smallCutoff = 64

// MakeFast returns a set initialized with the given values.
func MakeFast(vals ...int) Fast {
	var res Fast
	for _, v := range vals {
		res.Add(v)
	}
	return res
}

func (s *Fast) toLarge() *intsets.Sparse {
	if s.large != nil {
		return s.large
	}
	large := new(intsets.Sparse)
	for v := s.small; v != 0; v &= v - 1 {
		large.Insert(bits.TrailingZeros64(v))
	}
	return large
}

// Add adds a value to the set. No-op if the value is already in the set.
// Values must be non-negative.
func (s *Fast) Add(i int) {
	if i < 0 {
		panic(fmt.Sprintf("cannot add negative value %d", i))
	}
	if i < smallCutoff && s.large == nil {
		s.small |= 1 << uint64(i)
		return
	}
	if s.large == nil {
		s.large = s.toLarge()
	}
	s.large.Insert(i)
}

// AddRange adds the values from..to (inclusively) to the set.
func (s *Fast) AddRange(from, to int) {
	for i := from; i <= to; i++ {
		s.Add(i)
	}
}

// Remove removes a value from the set. No-op if the value is not in the set.
func (s *Fast) Remove(i int) {
	if s.large != nil {
		s.large.Remove(i)
		return
	}
	if i >= 0 && i < smallCutoff {
		s.small &^= 1 << uint64(i)
	}
}

// Contains returns true if the set contains the value.
func (s Fast) Contains(i int) bool {
	if s.large != nil {
		return s.large.Has(i)
	}
	return i >= 0 && i < smallCutoff && s.small&(1<<uint64(i)) != 0
}

// Empty returns true if the set is empty.
func (s Fast) Empty() bool {
	if s.large != nil {
		return s.large.IsEmpty()
	}
	return s.small == 0
}

// Len returns the number of the elements in the set.
func (s Fast) Len() int {
	if s.large != nil {
		return s.large.Len()
	}
	return bits.OnesCount64(s.small)
}

// ForEach calls a function for each value in the set (in increasing order).
func (s Fast) ForEach(f func(i int)) {
	if s.large != nil {
		for x := s.large.Min(); x != intsets.MaxInt; x = s.large.LowerBound(x + 1) {
			f(x)
		}
		return
	}
	for v := s.small; v != 0; v &= v - 1 {
		f(bits.TrailingZeros64(v))
	}
}

// Clear empties the set but retains the large backing storage, if any.
func (s *Fast) Clear() {
	s.small = 0
	if s.large != nil {
		s.large.Clear()
	}
}

// Copy returns a copy of s which can be modified independently.
func (s Fast) Copy() Fast {
	var c Fast
	c.small = s.small
	if s.large != nil {
		c.large = new(intsets.Sparse)
		c.large.Copy(s.large)
	}
	return c
}

// Equals returns true if the two sets are identical.
func (s Fast) Equals(rhs Fast) bool {
	if s.large == nil && rhs.large == nil {
		return s.small == rhs.small
	}
	return s.toLarge().Equals(rhs.toLarge())
}

// SubsetOf returns true if rhs contains all the elements in s.
func (s Fast) SubsetOf(rhs Fast) bool {
	if s.large == nil && rhs.large == nil {
		return s.small&rhs.small == s.small
	}
	return s.toLarge().SubsetOf(rhs.toLarge())
}

// String returns a list representation of elements, e.g. "(1,2,3)".
func (s Fast) String() string {
	var buf bytes.Buffer
	buf.WriteByte('(')
	first := true
	s.ForEach(func(i int) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&buf, "%d", i)
	})
	buf.WriteByte(')')
	return buf.String()
}
