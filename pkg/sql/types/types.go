// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package types defines the comparison-type families the analyzer needs in
// order to reason about implicit coercions in equality predicates. It is a
// deliberately narrow slice of a SQL type system: the functional-dependency
// check only ever asks "would comparing these two expressions coerce one
// side?", so a family tag is all that is carried.
package types

// Family classifies a value for comparison purposes. Two expressions compare
// without coercion only when they share a family.
type Family int8

const (
	// UnknownFamily is the family of an untyped or unresolved expression.
	UnknownFamily Family = iota
	BoolFamily
	IntFamily
	FloatFamily
	DecimalFamily
	StringFamily
	BytesFamily
	DateFamily
	TimestampFamily
	IntervalFamily
)

var familyNames = map[Family]string{
	UnknownFamily:   "unknown",
	BoolFamily:      "bool",
	IntFamily:       "int",
	FloatFamily:     "float",
	DecimalFamily:   "decimal",
	StringFamily:    "string",
	BytesFamily:     "bytes",
	DateFamily:      "date",
	TimestampFamily: "timestamp",
	IntervalFamily:  "interval",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return "unknown"
}

// FamilyByName is the inverse of Family.String. Unrecognized names map to
// UnknownFamily.
func FamilyByName(s string) Family {
	for f, name := range familyNames {
		if name == s {
			return f
		}
	}
	return UnknownFamily
}

// Numeric reports whether the family is a numeric one.
func (f Family) Numeric() bool {
	return f == IntFamily || f == FloatFamily || f == DecimalFamily
}

// ComparisonFamily returns the family a comparison between values of the two
// given families is carried out in. Mixed numeric comparisons widen, a
// numeric side coerces a string side to a float comparison, and any other
// mixed comparison degrades to a string comparison, mirroring the coercions
// a SQL engine injects.
func ComparisonFamily(l, r Family) Family {
	if l == r {
		return l
	}
	if l.Numeric() && r.Numeric() {
		if l == DecimalFamily || r == DecimalFamily {
			return DecimalFamily
		}
		return FloatFamily
	}
	if l == UnknownFamily {
		return r
	}
	if r == UnknownFamily {
		return l
	}
	if (l.Numeric() && r == StringFamily) || (l == StringFamily && r.Numeric()) {
		return FloatFamily
	}
	return StringFamily
}
