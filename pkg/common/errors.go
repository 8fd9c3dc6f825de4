//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package common provides shared types and utilities used across the
// portalauthz packages.
//
// # Error Handling
//
// The [AuthError] type carries a machine-readable [ReasonCode] next to a
// human-readable message. The two outcomes the action layer must tell apart
// are denial ([NotAuthorized], a 403 at the web layer) and a missing domain
// object ([NotFound], a 404). Everything else is a programmer or
// infrastructure error and is fatal for the request.
package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// ReasonCode classifies an [AuthError].
type ReasonCode int

// Reason codes
const (
	UnknownError ReasonCode = iota
	NotAuthorized
	NotFound
	UnknownAction
	UnknownPermission
	EvaluationError
	InvalidParam
)

var reasonNames = map[ReasonCode]string{
	UnknownError:      "UNKNOWN_ERROR",
	NotAuthorized:     "NOT_AUTHORIZED",
	NotFound:          "NOT_FOUND",
	UnknownAction:     "UNKNOWN_ACTION",
	UnknownPermission: "UNKNOWN_PERMISSION",
	EvaluationError:   "EVALUATION_ERROR",
	InvalidParam:      "INVALPARAM_ERROR",
}

// String returns the upper-case name of the code.
func (c ReasonCode) String() string {
	if name, ok := reasonNames[c]; ok {
		return name
	}
	return fmt.Sprintf("REASON_%d", int(c))
}

// AuthError represents an error encountered during an authorization check.
type AuthError struct {
	// ReasonCode is the machine-readable error classification.
	ReasonCode ReasonCode
	// Reason is a human-readable description of the error.
	Reason string
}

// Error implements the error interface, returning a formatted string
// containing both the reason message and the reason code.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s(code-%s)", e.Reason, e.ReasonCode)
}

// NewError creates a new [AuthError] with the specified reason code and message.
func NewError(code ReasonCode, msg string) *AuthError {
	return &AuthError{ReasonCode: code, Reason: msg}
}

// NewErrorf creates a new [AuthError] with a formatted message.
func NewErrorf(code ReasonCode, format string, args ...interface{}) *AuthError {
	return &AuthError{ReasonCode: code, Reason: fmt.Sprintf(format, args...)}
}

// Code returns the ReasonCode of the first AuthError in err's chain, or
// UnknownError when there is none.
func Code(err error) ReasonCode {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.ReasonCode
	}
	return UnknownError
}

// IsNotAuthorized reports whether err is a denial.
func IsNotAuthorized(err error) bool {
	return err != nil && Code(err) == NotAuthorized
}

// IsNotFound reports whether err signals a missing domain object.
func IsNotFound(err error) bool {
	return err != nil && Code(err) == NotFound
}
