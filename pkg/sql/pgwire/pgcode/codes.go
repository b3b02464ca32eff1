// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package pgcode defines the PostgreSQL 5-character error codes surfaced by
// this library.
package pgcode

// Code is a wrapper around a string to ensure that pgcodes are used in
// different places inside this library in a type-safe manner.
type Code struct {
	code string
}

// MakeCode converts a string into a Code.
func MakeCode(code string) Code {
	return Code{code: code}
}

// String returns the underlying pg code string.
func (c Code) String() string {
	return c.code
}

var (
	// Grouping is the class 42 code for GROUP BY violations
	// (grouping_error).
	Grouping = MakeCode("42803")

	// Internal covers assertion failures inside the analyzer.
	Internal = MakeCode("XX000")

	// Uncategorized is used for errors that carry no candidate code.
	Uncategorized = MakeCode("XXUUU")
)
