// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtxmgr

import "fmt"

// ErrorCode identifies a category of error.
type ErrorCode uint8

// These constants are used to identify a specific Error.
const (
	// ErrDatabase indicates an error with the underlying database.  When
	// this error code is set, the Err field of the Error will be set to
	// the underlying error returned from the database.
	ErrDatabase ErrorCode = iota

	// ErrData describes an error where data stored in the transaction
	// database is incorrect.  This may be due to missing values, values of
	// wrong sizes, or data in undeserializable formats.  The association
	// of this error with corrupted data requires the database not be
	// externally modified.
	ErrData

	// ErrInput describes an error where the caller has provided invalid
	// input to an operation.
	ErrInput

	// ErrNoExists describes an error where a requested record does not
	// exist in the store.
	ErrNoExists

	// ErrAlreadyLocked describes an error where an output selected as a
	// transaction input is not in the unspent state at locking time.
	ErrAlreadyLocked

	// ErrInvalidTransition describes an error where an output or
	// transaction log entry was asked to move to a state that is not a
	// valid successor of its current state.
	ErrInvalidTransition

	// ErrInsufficientFunds describes an error where the eligible output
	// set cannot cover a requested amount.
	ErrInsufficientFunds

	// ErrUnknownVersion describes an error where the store metadata
	// reports a version newer than this package understands.
	ErrUnknownVersion

	// ErrNeedsUpgrade describes an error during store opening where the
	// database contains an older version of the store.
	ErrNeedsUpgrade
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:          "ErrDatabase",
	ErrData:              "ErrData",
	ErrInput:             "ErrInput",
	ErrNoExists:          "ErrNoExists",
	ErrAlreadyLocked:     "ErrAlreadyLocked",
	ErrInvalidTransition: "ErrInvalidTransition",
	ErrInsufficientFunds: "ErrInsufficientFunds",
	ErrUnknownVersion:    "ErrUnknownVersion",
	ErrNeedsUpgrade:      "ErrNeedsUpgrade",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during store
// operation.
type Error struct {
	Code ErrorCode // Describes the kind of error
	Desc string    // Human readable description of the issue
	Err  error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Desc + ": " + e.Err.Error()
	}
	return e.Desc
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// storeError creates an Error given a set of arguments.
func storeError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Desc: desc, Err: err}
}

// IsCode returns whether err is a store Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	serr, ok := err.(Error)
	return ok && serr.Code == code
}

// IsNoExists returns whether an error is an Error with the ErrNoExists
// error code.
func IsNoExists(err error) bool {
	return IsCode(err, ErrNoExists)
}
