// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package sessiondata carries the session-level configuration consulted by
// the semantic analysis. The surrounding engine owns parsing and persistence
// of the settings; this package only defines the flags themselves.
package sessiondata

// SQLMode is a bitmask of per-session compatibility toggles.
type SQLMode uint32

const (
	// FullGroupByDependencyChecks enables the functional-dependency analysis
	// of GROUP BY queries: every column referenced in the SELECT list or
	// HAVING clause must be a grouping column or provably functionally
	// dependent on the grouping columns. When the flag is unset the analyzer
	// accepts every block unchanged.
	FullGroupByDependencyChecks SQLMode = 1 << iota
)

// Has reports whether all bits of flag are set in m.
func (m SQLMode) Has(flag SQLMode) bool {
	return m&flag == flag
}
