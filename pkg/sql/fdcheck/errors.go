// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package fdcheck

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/groupdep/groupdep/pkg/sql/pgwire/pgcode"
	"github.com/groupdep/groupdep/pkg/sql/pgwire/pgerror"
	"github.com/groupdep/groupdep/pkg/sql/sem/tree"
)

// Clause names used in violation errors.
const (
	ClauseSelectList = "SELECT list"
	ClauseHaving     = "HAVING clause"
	ClauseWhere      = "WHERE clause"
)

// NonGroupingFieldError is the single violation the analyzer reports: an
// expression in the named clause references a column that is neither a
// grouping column nor functionally dependent on the grouping columns.
type NonGroupingFieldError struct {
	// Field is the display name of the offending expression.
	Field string
	// Clause is one of ClauseSelectList, ClauseHaving, ClauseWhere.
	Clause string
}

var _ error = (*NonGroupingFieldError)(nil)
var _ fmt.Formatter = (*NonGroupingFieldError)(nil)
var _ errors.SafeFormatter = (*NonGroupingFieldError)(nil)

func (e *NonGroupingFieldError) Error() string {
	return fmt.Sprintf("non-grouping field '%s' is used in %s", e.Field, e.Clause)
}

func (e *NonGroupingFieldError) Format(s fmt.State, verb rune) {
	errors.FormatError(e, s, verb)
}

// SafeFormatError implements errors.SafeFormatter. Clause names are part of
// the grammar and safe to report; the field name is user data.
func (e *NonGroupingFieldError) SafeFormatError(p errors.Printer) (next error) {
	p.Printf("non-grouping field '%s' is used in %s", e.Field, redact.Safe(e.Clause))
	return nil
}

func newNonGroupingFieldError(offending tree.Expr, clause string) error {
	if offending == nil {
		return errors.AssertionFailedf("violation in %s with no offending expression", clause)
	}
	return pgerror.WithCandidateCode(
		&NonGroupingFieldError{Field: offending.String(), Clause: clause},
		pgcode.Grouping,
	)
}
