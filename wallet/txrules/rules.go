// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txrules provides a transaction fee policy for wallet
// operations.
package txrules

import (
	"errors"

	"github.com/mwsuite/mwwallet/mwutil"
)

// DefaultBaseFee is the default fee charged per unit of transaction
// weight.
const DefaultBaseFee mwutil.Amount = 100000

// Transaction rule violations
var (
	ErrFeeExceedsAmount = errors.New("transaction fee exceeds amount being sent")
	ErrZeroAmount       = errors.New("transaction amount may not be zero")
)

// TxWeight computes the consensus weight of a transaction from its
// shape.  Outputs weigh four units each and kernels one; inputs reduce
// the weight since they shrink the chain's output set.  The weight
// never drops below one unit, so every transaction pays at least the
// base fee.
func TxWeight(numInputs, numOutputs, numKernels int) uint64 {
	weight := numOutputs*4 + numKernels - numInputs
	if weight < 1 {
		weight = 1
	}
	return uint64(weight)
}

// TxFee returns the fee for a transaction of the given shape under a
// base fee policy.  A zero baseFee selects the default policy.
func TxFee(numInputs, numOutputs, numKernels int, baseFee mwutil.Amount) mwutil.Amount {
	if baseFee == 0 {
		baseFee = DefaultBaseFee
	}
	return mwutil.Amount(TxWeight(numInputs, numOutputs, numKernels)) * baseFee
}

// CheckFee performs simple policy tests on the amount and fee of an
// outgoing transaction.
func CheckFee(amount, fee mwutil.Amount) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if fee > amount {
		return ErrFeeExceedsAmount
	}
	return nil
}
