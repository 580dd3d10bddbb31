// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"

	"github.com/mwsuite/mwwallet/aggsig"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/slate"
)

// ErrorKind classifies wallet failures so callers can react without
// parsing message strings.
type ErrorKind uint8

// These constants define the wallet error kinds.
const (
	// ErrUnknown is an unclassified failure.
	ErrUnknown ErrorKind = iota

	// ErrDatabase indicates an underlying database failure.
	ErrDatabase

	// ErrData indicates stored data failed consistency checks and the
	// wallet likely needs to rescan.
	ErrData

	// ErrInsufficientFunds indicates the spendable balance cannot cover
	// the requested amount plus fee.
	ErrInsufficientFunds

	// ErrOutputAlreadyLocked indicates an input needed by a transaction
	// is reserved by another negotiation in flight.
	ErrOutputAlreadyLocked

	// ErrParticipantCountExceeded indicates a slate already carries its
	// expected number of participants.
	ErrParticipantCountExceeded

	// ErrIncompleteParticipantData indicates finalization was attempted
	// before every participant contributed and signed.
	ErrIncompleteParticipantData

	// ErrSlateVersionMismatch indicates a slate's schema version cannot
	// be handled by this build.
	ErrSlateVersionMismatch

	// ErrSignatureAggregation indicates partial signatures could not be
	// combined into a valid kernel signature.
	ErrSignatureAggregation

	// ErrSignatureVerification indicates a signature check failed,
	// either a partial signature or a participant message signature.
	ErrSignatureVerification

	// ErrTTLExpired indicates the slate's cutoff height has passed and
	// the negotiation must not proceed.
	ErrTTLExpired

	// ErrClientCallback indicates the node could not be reached or
	// rejected a request.
	ErrClientCallback

	// ErrNotFound indicates no transaction or slate matches the query.
	ErrNotFound

	// ErrInvalidState indicates the transaction's lifecycle state does
	// not permit the requested operation, such as cancelling a
	// confirmed transaction.
	ErrInvalidState

	// ErrKeychain indicates a key derivation failure.
	ErrKeychain

	// ErrInvalidSlate indicates an incoming slate is malformed or
	// internally inconsistent.
	ErrInvalidSlate
)

var errStrs = map[ErrorKind]string{
	ErrUnknown:                   "Unknown",
	ErrDatabase:                  "Database",
	ErrData:                      "Data",
	ErrInsufficientFunds:         "InsufficientFunds",
	ErrOutputAlreadyLocked:       "OutputAlreadyLocked",
	ErrParticipantCountExceeded:  "ParticipantCountExceeded",
	ErrIncompleteParticipantData: "IncompleteParticipantData",
	ErrSlateVersionMismatch:      "SlateVersionMismatch",
	ErrSignatureAggregation:      "SignatureAggregation",
	ErrSignatureVerification:     "SignatureVerification",
	ErrTTLExpired:                "TtlExpired",
	ErrClientCallback:            "ClientCallback",
	ErrNotFound:                  "NotFound",
	ErrInvalidState:              "InvalidState",
	ErrKeychain:                  "Keychain",
	ErrInvalidSlate:              "InvalidSlate",
}

// String returns the ErrorKind as a human-readable name.
func (k ErrorKind) String() string {
	if s, ok := errStrs[k]; ok {
		return s
	}
	return "Unknown"
}

// Error provides a single type for errors that can occur in the wallet.
// The Kind field categorizes the error while the description provides
// the specifics.  The Err field is the underlying error when one exists.
type Error struct {
	Kind ErrorKind // Describes the kind of error
	Desc string    // Human readable description of the issue
	Err  error     // Underlying error, optional
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

// walletError creates an Error given a set of arguments.
func walletError(kind ErrorKind, desc string, err error) Error {
	return Error{Kind: kind, Desc: desc, Err: err}
}

// IsError returns whether the error is an Error with a matching kind.
func IsError(err error, kind ErrorKind) bool {
	var e Error
	return errors.As(err, &e) && e.Kind == kind
}

// convertSlateError maps slate protocol errors onto the wallet
// taxonomy, preserving the original error for unwrapping.
func convertSlateError(err error) error {
	if err == nil {
		return nil
	}

	kind := ErrInvalidSlate
	switch {
	case errors.Is(err, slate.ErrParticipantCountExceeded):
		kind = ErrParticipantCountExceeded
	case errors.Is(err, slate.ErrIncompleteParticipantData):
		kind = ErrIncompleteParticipantData
	case errors.Is(err, slate.ErrAlreadySigned):
		kind = ErrInvalidState
	case errors.Is(err, slate.ErrUnsupportedVersion),
		errors.Is(err, slate.ErrLossyDowngrade):
		kind = ErrSlateVersionMismatch
	case errors.Is(err, aggsig.ErrSignatureMismatch),
		errors.Is(err, aggsig.ErrNonceMismatch),
		errors.Is(err, slate.ErrMissingMessageSig):
		kind = ErrSignatureVerification
	case errors.Is(err, aggsig.ErrInvalidSignature),
		errors.Is(err, aggsig.ErrZeroNonce):
		kind = ErrSignatureAggregation
	}
	return Error{Kind: kind, Desc: "slate protocol", Err: err}
}

// convertStoreError maps transaction store errors onto the wallet
// taxonomy, preserving the store error for unwrapping.
func convertStoreError(err error) error {
	var serr mwtxmgr.Error
	if !errors.As(err, &serr) {
		return err
	}

	kind := ErrUnknown
	switch serr.Code {
	case mwtxmgr.ErrDatabase:
		kind = ErrDatabase
	case mwtxmgr.ErrData, mwtxmgr.ErrUnknownVersion, mwtxmgr.ErrNeedsUpgrade:
		kind = ErrData
	case mwtxmgr.ErrInput:
		kind = ErrInvalidSlate
	case mwtxmgr.ErrNoExists:
		kind = ErrNotFound
	case mwtxmgr.ErrAlreadyLocked:
		kind = ErrOutputAlreadyLocked
	case mwtxmgr.ErrInvalidTransition:
		kind = ErrInvalidState
	case mwtxmgr.ErrInsufficientFunds:
		kind = ErrInsufficientFunds
	}
	return Error{Kind: kind, Desc: serr.Desc, Err: err}
}
