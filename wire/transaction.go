// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/mwutil"
)

var (
	// ErrNotCanonical describes a transaction body whose elements are
	// not in canonical order or contain duplicates.
	ErrNotCanonical = errors.New("transaction body not canonical")

	// ErrCutThrough describes a body that both spends and creates the
	// same commitment.
	ErrCutThrough = errors.New("cut-through violation")

	// ErrKernelSumMismatch is returned when the transaction does not
	// satisfy the conservation rule: the sum of outputs minus inputs
	// plus fee must equal the kernel excess plus the offset term.
	ErrKernelSumMismatch = errors.New("kernel sum mismatch")
)

// TxBody groups the inputs, outputs and kernels of a transaction.
// Elements are kept sorted by commitment so that independently built
// copies of the same transaction serialize identically.
type TxBody struct {
	Inputs  []Input    `json:"inputs"`
	Outputs []Output   `json:"outputs"`
	Kernels []TxKernel `json:"kernels"`
}

// Sort orders the body canonically: inputs and outputs ascending by
// commitment, kernels ascending by excess.
func (b *TxBody) Sort() {
	sort.Slice(b.Inputs, func(i, j int) bool {
		return bytes.Compare(b.Inputs[i].Commit[:],
			b.Inputs[j].Commit[:]) < 0
	})
	sort.Slice(b.Outputs, func(i, j int) bool {
		return bytes.Compare(b.Outputs[i].Commit[:],
			b.Outputs[j].Commit[:]) < 0
	})
	sort.Slice(b.Kernels, func(i, j int) bool {
		return bytes.Compare(b.Kernels[i].Excess[:],
			b.Kernels[j].Excess[:]) < 0
	})
}

// Validate checks ordering, uniqueness, cut-through and the structure
// of every element.
func (b *TxBody) Validate() error {
	for i := 1; i < len(b.Inputs); i++ {
		if bytes.Compare(b.Inputs[i-1].Commit[:],
			b.Inputs[i].Commit[:]) >= 0 {
			return fmt.Errorf("%w: inputs", ErrNotCanonical)
		}
	}
	for i := 1; i < len(b.Outputs); i++ {
		if bytes.Compare(b.Outputs[i-1].Commit[:],
			b.Outputs[i].Commit[:]) >= 0 {
			return fmt.Errorf("%w: outputs", ErrNotCanonical)
		}
	}

	outputs := make(map[commit.Commitment]struct{}, len(b.Outputs))
	for i := range b.Outputs {
		if err := b.Outputs[i].Validate(); err != nil {
			return err
		}
		outputs[b.Outputs[i].Commit] = struct{}{}
	}
	for i := range b.Inputs {
		if _, ok := outputs[b.Inputs[i].Commit]; ok {
			return fmt.Errorf("%w: %v", ErrCutThrough, b.Inputs[i].Commit)
		}
	}

	for i := range b.Kernels {
		if err := b.Kernels[i].ValidateFeatures(); err != nil {
			return err
		}
	}
	return nil
}

// Transaction is the tx envelope sent to the node: the kernel offset
// plus the body.
type Transaction struct {
	Offset commit.BlindingFactor `json:"offset"`
	Body   TxBody                `json:"body"`
}

// NewTransaction returns an empty transaction with allocated element
// slices so that it serializes with empty arrays rather than nulls.
func NewTransaction() *Transaction {
	return &Transaction{
		Body: TxBody{
			Inputs:  []Input{},
			Outputs: []Output{},
			Kernels: []TxKernel{},
		},
	}
}

// Fee returns the sum of the kernel fees.
func (t *Transaction) Fee() mwutil.Amount {
	var fee mwutil.Amount
	for i := range t.Body.Kernels {
		fee += t.Body.Kernels[i].Fee
	}
	return fee
}

// LockHeight returns the height before which the transaction is not
// valid, the maximum over its kernels.
func (t *Transaction) LockHeight() uint64 {
	var lock uint64
	for i := range t.Body.Kernels {
		if t.Body.Kernels[i].LockHeight > lock {
			lock = t.Body.Kernels[i].LockHeight
		}
	}
	return lock
}

// InputCommits returns the commitments spent by the transaction.
func (t *Transaction) InputCommits() []commit.Commitment {
	commits := make([]commit.Commitment, len(t.Body.Inputs))
	for i := range t.Body.Inputs {
		commits[i] = t.Body.Inputs[i].Commit
	}
	return commits
}

// OutputCommits returns the commitments created by the transaction.
func (t *Transaction) OutputCommits() []commit.Commitment {
	commits := make([]commit.Commitment, len(t.Body.Outputs))
	for i := range t.Body.Outputs {
		commits[i] = t.Body.Outputs[i].Commit
	}
	return commits
}

// VerifyKernelSums checks conservation against the given overage
// (the total fee for a wallet transaction):
//
//	sum(outputs) - sum(inputs) + overage*H == sum(excess) + offset*G
//
// Both sides are computed as commitments and compared, so a mismatch
// in either the values or the blinding factors is caught.
func (t *Transaction) VerifyKernelSums(overage mwutil.Amount) error {
	lhsPos := make([]commit.Commitment, 0, len(t.Body.Outputs)+1)
	lhsPos = append(lhsPos, t.OutputCommits()...)
	if overage > 0 {
		feeCommit, err := commit.CommitValue(uint64(overage))
		if err != nil {
			return err
		}
		lhsPos = append(lhsPos, feeCommit)
	}
	lhs, err := commit.Sum(lhsPos, t.InputCommits())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKernelSumMismatch, err)
	}

	rhsPos := make([]commit.Commitment, 0, len(t.Body.Kernels)+1)
	for i := range t.Body.Kernels {
		rhsPos = append(rhsPos, t.Body.Kernels[i].Excess)
	}
	if !t.Offset.IsZero() {
		offsetKey, err := t.Offset.SecretKey()
		if err != nil {
			return err
		}
		offsetCommit, err := commit.Commit(0, offsetKey)
		offsetKey.Zero()
		if err != nil {
			return err
		}
		rhsPos = append(rhsPos, offsetCommit)
	}
	rhs, err := commit.Sum(rhsPos, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKernelSumMismatch, err)
	}

	if lhs != rhs {
		return ErrKernelSumMismatch
	}
	return nil
}

// Validate runs the full wallet-side check of a finalized transaction:
// body structure, every kernel signature and the conservation rule.
func (t *Transaction) Validate() error {
	if err := t.Body.Validate(); err != nil {
		return err
	}
	if len(t.Body.Kernels) == 0 {
		return errors.New("transaction has no kernels")
	}
	for i := range t.Body.Kernels {
		if err := t.Body.Kernels[i].Verify(); err != nil {
			return err
		}
	}
	return t.VerifyKernelSums(t.Fee())
}
