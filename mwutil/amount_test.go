// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwutil

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		coins   float64
		want    Amount
		wantErr bool
	}{
		{name: "zero", coins: 0, want: 0},
		{name: "one coin", coins: 1, want: NanoPerCoin},
		{name: "fractional", coins: 0.6, want: 600000000},
		{name: "rounds half up", coins: 0.0000000015, want: 2},
		{name: "negative", coins: -1, wantErr: true},
		{name: "nan", coins: math.NaN(), wantErr: true},
		{name: "positive infinity", coins: math.Inf(1), wantErr: true},
		{name: "negative infinity", coins: math.Inf(-1), wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := NewAmount(test.coins)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}

func TestAmountString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount Amount
		want   string
	}{
		{amount: 0, want: "0"},
		{amount: 600000000, want: "0.6"},
		{amount: NanoPerCoin, want: "1"},
		{amount: 1457920000, want: "1.45792"},
		{amount: 700000, want: "0.0007"},
		{amount: 5831680000, want: "5.83168"},
		{amount: 1, want: "0.000000001"},
	}

	for _, test := range tests {
		require.Equal(t, test.want, test.amount.String())
	}
}

func TestAmountJSON(t *testing.T) {
	t.Parallel()

	// Slates quote 64-bit integers.
	b, err := json.Marshal(Amount(600000000))
	require.NoError(t, err)
	require.Equal(t, `"600000000"`, string(b))

	var quoted Amount
	require.NoError(t, json.Unmarshal([]byte(`"700000"`), &quoted))
	require.Equal(t, Amount(700000), quoted)

	// Node responses use bare numbers.
	var bare Amount
	require.NoError(t, json.Unmarshal([]byte(`700000`), &bare))
	require.Equal(t, Amount(700000), bare)

	var bad Amount
	require.Error(t, json.Unmarshal([]byte(`"0.5"`), &bad))
}
