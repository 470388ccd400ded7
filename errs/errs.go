// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs defines the render core's error kinds (spec §7) and a
// small logging helper in the style of the teacher's base/errors package:
// Log(err) logs a non-nil error and returns it unchanged, so call sites
// can write `return errs.Log(err)` instead of an if-block around a log
// statement.
package errs

import (
	"errors"
	"fmt"

	"github.com/cogentcore/rendercore/logx"
)

// Kind distinguishes the error categories of spec §7. Aborted is
// deliberately not a Kind: it is represented by Status and the plain
// ErrAborted sentinel, never as an *Error, because it must never be
// promoted to a fatal failure.
type Kind int

const (
	KindPluginFailure Kind = iota
	KindAllocationFailure
	KindMissingUpstream
	KindInvalidRequest
	KindInternalInvariant
)

func (k Kind) String() string {
	switch k {
	case KindPluginFailure:
		return "plugin_failure"
	case KindAllocationFailure:
		return "allocation_failure"
	case KindMissingUpstream:
		return "missing_upstream"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInternalInvariant:
		return "internal_invariant"
	}
	return "unknown"
}

// Error is a render-core error tagged with its Kind, satisfying
// errors.Is against the sentinels below.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels usable with errors.Is, one per Kind, matching spec §7.
var (
	ErrPluginFailure     = &Error{Kind: KindPluginFailure}
	ErrAllocationFailure = &Error{Kind: KindAllocationFailure}
	ErrMissingUpstream   = &Error{Kind: KindMissingUpstream}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrInternalInvariant = &Error{Kind: KindInternalInvariant}
)

// New wraps msg (and an optional cause) under kind.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// ErrAborted is the sentinel for cooperative cancellation. It is a plain
// sentinel, not an *Error, because Aborted is not one of the Kinds: per
// spec §7 it must be distinguishable from every failure kind so callers
// never mistake it for one.
var ErrAborted = errors.New("render: aborted")

// Log logs err (if non-nil) through the render core's logger and returns
// it unchanged, mirroring base/errors.Log in the teacher repo.
func Log(err error) error {
	if err == nil {
		return nil
	}
	logx.Logger.Error(err.Error())
	return err
}

// Log1 logs err (if non-nil) and returns v unchanged, for call sites
// threading a value and an error out of a function in one expression.
func Log1[T any](v T, err error) T {
	Log(err)
	return v
}
