// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package site

import (
	"errors"
	"fmt"
)

// Error is the typed failure returned by the cache, the scoring engine and
// the factor providers.
type Error struct {
	Kind    ErrorKind
	Message string
	// Field names the offending factor or parameter, when there is one.
	Field string
	Err   error
}

// ErrorKind classifies an Error.
type ErrorKind int

const (
	// KindUnknown is never produced by this package.
	KindUnknown ErrorKind = iota
	// KindInvalidCoordinate means a latitude or longitude is out of range or not finite.
	KindInvalidCoordinate
	// KindValidation means an input is malformed: negative counts, bad weights, bad radius.
	KindValidation
	// KindMissingFactor means a required factor is absent from a report.
	KindMissingFactor
	// KindProviderUnavailable means the factor provider could not produce a bundle.
	KindProviderUnavailable
)

var kindNames = map[ErrorKind]string{
	KindUnknown:             "unknown",
	KindInvalidCoordinate:   "invalid_coordinate",
	KindValidation:          "validation_error",
	KindMissingFactor:       "missing_factor",
	KindProviderUnavailable: "provider_unavailable",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidCoordinate wraps a coordinate validation failure.
func InvalidCoordinate(err error) *Error {
	return &Error{Kind: KindInvalidCoordinate, Message: "invalid coordinate", Err: err}
}

// Validationf builds a validation error for field.
func Validationf(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// MissingFactor reports the absent factor f.
func MissingFactor(f Factor) *Error {
	return &Error{
		Kind:    KindMissingFactor,
		Field:   string(f),
		Message: fmt.Sprintf("missing factor %q", f),
	}
}

// ProviderUnavailable wraps the cause of a failed provider call.
func ProviderUnavailable(err error) *Error {
	return &Error{Kind: KindProviderUnavailable, Message: "factor provider unavailable", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// FieldOf returns the field of the first *Error in err's chain.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}

	return ""
}

// IsInvalidCoordinate reports whether err is an invalid coordinate error.
func IsInvalidCoordinate(err error) bool {
	return KindOf(err) == KindInvalidCoordinate
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsMissingFactor reports whether err is a missing factor error.
func IsMissingFactor(err error) bool {
	return KindOf(err) == KindMissingFactor
}

// IsProviderUnavailable reports whether err is a provider failure.
func IsProviderUnavailable(err error) bool {
	return KindOf(err) == KindProviderUnavailable
}
