/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package errors provides error wrapping utilities for consistent error handling,
// plus the Kind taxonomy used to map resolution/build failures to CLI exit codes.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure along the taxonomy the resolver, template engine,
// credential provider, and build orchestrator all report against. Kinds are
// not Go types: a single Kind value is attached to whatever error the
// underlying operation produced, so callers can still unwrap to the original
// cause while switching on Kind for exit-code mapping or control-plane
// payloads.
type Kind string

const (
	ConfigParseError              Kind = "ConfigParseError"
	IncludeCycle                  Kind = "IncludeCycle"
	SpecNotFound                  Kind = "SpecNotFound"
	PlatformUnsupportedByLocation Kind = "PlatformUnsupportedByLocation"
	TemplateSyntaxError           Kind = "TemplateSyntaxError"
	UnresolvedVariable            Kind = "UnresolvedVariable"
	ExpressionError               Kind = "ExpressionError"
	SecretUnavailable             Kind = "SecretUnavailable"
	AuthFailed                    Kind = "AuthFailed"
	SourceUnavailable             Kind = "SourceUnavailable"
	MissingRequiredFile           Kind = "MissingRequiredFile"
	PackerExitError               Kind = "PackerExitError"
	TimedOut                      Kind = "TimedOut"
	Cancelled                     Kind = "Cancelled"
)

// ExitCode maps a Kind to the mkosimage/rfosimage process exit code.
// The empty Kind maps to 0 (no error); every other Kind not listed here
// maps to 1, the general configuration/resolution bucket.
func (k Kind) ExitCode() int {
	switch k {
	case "":
		return 0
	case MissingRequiredFile:
		return 2
	case SecretUnavailable, AuthFailed, SourceUnavailable:
		return 3
	case PackerExitError:
		return 4
	case Cancelled:
		return 5
	case TimedOut:
		return 6
	default:
		return 1
	}
}

// kindError pairs a Kind with an underlying cause. It implements Unwrap so
// errors.Is/errors.As reach the original error, and a comparable sentinel so
// errors.Is(err, ErrSecretUnavailable) works without constructing one.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return string(e.kind)
	}
	return e.err.Error()
}

func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) Is(target error) bool {
	sentinel, ok := target.(*kindError)
	return ok && sentinel.err == nil && sentinel.kind == e.kind
}

// WithKind attaches kind to err, preserving err as the wrapped cause.
// Returns nil if err is nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf extracts the Kind attached to err via WithKind, if any.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return "", false
}

// Sentinel values for use with errors.Is, e.g.:
//
//	if errors.Is(err, osierrors.ErrIncludeCycle) { ... }
var (
	ErrConfigParseError              = &kindError{kind: ConfigParseError}
	ErrIncludeCycle                  = &kindError{kind: IncludeCycle}
	ErrSpecNotFound                  = &kindError{kind: SpecNotFound}
	ErrPlatformUnsupportedByLocation = &kindError{kind: PlatformUnsupportedByLocation}
	ErrTemplateSyntaxError           = &kindError{kind: TemplateSyntaxError}
	ErrUnresolvedVariable            = &kindError{kind: UnresolvedVariable}
	ErrExpressionError               = &kindError{kind: ExpressionError}
	ErrSecretUnavailable             = &kindError{kind: SecretUnavailable}
	ErrAuthFailed                    = &kindError{kind: AuthFailed}
	ErrSourceUnavailable             = &kindError{kind: SourceUnavailable}
	ErrMissingRequiredFile           = &kindError{kind: MissingRequiredFile}
	ErrPackerExitError               = &kindError{kind: PackerExitError}
	ErrTimedOut                      = &kindError{kind: TimedOut}
	ErrCancelled                     = &kindError{kind: Cancelled}
)

// Wrap wraps an error with a descriptive action and optional detail.
// It returns a formatted error in the form "failed to <action> [(<detail>)]: <error>".
//
// Example usage:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap("create builder", "", err)
//	}
//
//	if err := parseFile(path); err != nil {
//	    return errors.Wrap("parse config", path, err)
//	}
func Wrap(action, detail string, err error) error {
	if err == nil {
		return nil
	}

	if detail != "" {
		return fmt.Errorf("failed to %s (%s): %w", action, detail, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
