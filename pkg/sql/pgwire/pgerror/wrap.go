// Copyright 2025 The GroupDep Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package pgerror attaches pg error codes to errors built with
// github.com/cockroachdb/errors. A code attached here is a candidate: it is
// reported for the error unless a wrapper higher up the chain carries one of
// its own.
package pgerror

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/groupdep/groupdep/pkg/sql/pgwire/pgcode"
)

// New creates an error with a pg code.
func New(code pgcode.Code, msg string) error {
	return WithCandidateCode(errors.NewWithDepth(1, msg), code)
}

// Newf creates an error with a pg code and a formatted message.
func Newf(code pgcode.Code, format string, args ...interface{}) error {
	return WithCandidateCode(errors.NewWithDepthf(1, format, args...), code)
}

// Wrapf wraps an error, adding a message prefix and a candidate pg code.
func Wrapf(err error, code pgcode.Code, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return WithCandidateCode(errors.WrapWithDepthf(1, err, format, args...), code)
}

// WithCandidateCode decorates err with a candidate pg code.
func WithCandidateCode(err error, code pgcode.Code) error {
	if err == nil {
		return nil
	}
	return &withCandidateCode{cause: err, code: code.String()}
}

// GetPGCode returns the candidate pg code for err, or pgcode.Uncategorized if
// none was attached. The outermost code in the chain wins.
func GetPGCode(err error) pgcode.Code {
	for c := err; c != nil; c = errors.UnwrapOnce(c) {
		if w, ok := c.(*withCandidateCode); ok {
			return pgcode.MakeCode(w.code)
		}
	}
	return pgcode.Uncategorized
}

type withCandidateCode struct {
	cause error
	code  string
}

var _ error = (*withCandidateCode)(nil)
var _ fmt.Formatter = (*withCandidateCode)(nil)
var _ errors.SafeFormatter = (*withCandidateCode)(nil)

func (w *withCandidateCode) Error() string { return w.cause.Error() }
func (w *withCandidateCode) Cause() error  { return w.cause }
func (w *withCandidateCode) Unwrap() error { return w.cause }

func (w *withCandidateCode) Format(s fmt.State, verb rune) { errors.FormatError(w, s, verb) }

// SafeFormatError implements errors.SafeFormatter. The code only shows up in
// the verbose detail of the error, not in its message.
func (w *withCandidateCode) SafeFormatError(p errors.Printer) (next error) {
	if p.Detail() {
		p.Printf("candidate pg code: %s", w.code)
	}
	return w.cause
}
