// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txrules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/mwutil"
)

func TestTxWeight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		numInputs  int
		numOutputs int
		numKernels int
		weight     uint64
	}{
		{name: "two in two out", numInputs: 2, numOutputs: 2, numKernels: 1, weight: 7},
		{name: "one in two out", numInputs: 1, numOutputs: 2, numKernels: 1, weight: 8},
		{name: "one in one out", numInputs: 1, numOutputs: 1, numKernels: 1, weight: 4},
		{name: "many inputs clamp", numInputs: 20, numOutputs: 1, numKernels: 1, weight: 1},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := TxWeight(test.numInputs, test.numOutputs,
				test.numKernels)
			require.Equal(t, test.weight, got)
		})
	}
}

// TestTxFeeSendVector checks the fee for the common send shape of two
// inputs, a recipient output plus change, and one kernel.
func TestTxFeeSendVector(t *testing.T) {
	t.Parallel()

	fee := TxFee(2, 2, 1, 0)
	require.Equal(t, mwutil.Amount(700000), fee)

	// An explicit base fee scales linearly.
	fee = TxFee(2, 2, 1, 200000)
	require.Equal(t, mwutil.Amount(1400000), fee)
}

func TestCheckFee(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckFee(600000000, 700000))
	require.ErrorIs(t, CheckFee(0, 700000), ErrZeroAmount)
	require.ErrorIs(t, CheckFee(500, 700000), ErrFeeExceedsAmount)
}
