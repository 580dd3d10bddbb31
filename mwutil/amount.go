// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mwutil provides convenience types and functions shared by the
// wallet packages, most notably the Amount type representing a quantity
// of coins at base (nano) precision.
package mwutil

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
)

// NanoPerCoin is the number of base units in one whole coin.  All chain
// amounts are tracked as integer counts of the base unit.
const NanoPerCoin = 1e9

// Amount represents a quantity of coins counted in base (nano) units.
// Amounts on the wire are encoded as decimal strings to avoid precision
// loss in JSON consumers that parse numbers as float64.
type Amount uint64

// NewAmount creates an Amount from a whole-coin floating point value.
// Errors are returned for NaN and infinities, for negative values, and
// for values that overflow the base unit range.
func NewAmount(coins float64) (Amount, error) {
	switch {
	case math.IsNaN(coins):
		return 0, errors.New("invalid coin amount")
	case math.IsInf(coins, 1), math.IsInf(coins, -1):
		return 0, errors.New("invalid coin amount")
	case coins < 0:
		return 0, errors.New("coin amount may not be negative")
	}

	nano := coins * NanoPerCoin
	rounded := math.Round(nano)
	if rounded > math.MaxUint64 {
		return 0, errors.New("coin amount too large")
	}
	return Amount(rounded), nil
}

// ParseAmount parses a decimal base-unit string, the form amounts take
// in slates and API payloads.
func ParseAmount(s string) (Amount, error) {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.New("malformed amount: " + s)
	}
	return Amount(u), nil
}

// ToCoins returns the floating point whole-coin value of the amount.
// The result is lossy for amounts above 2^53 base units and is only
// suitable for display.
func (a Amount) ToCoins() float64 {
	return float64(a) / NanoPerCoin
}

// String formats the amount as a whole-coin decimal with trailing zeros
// trimmed, e.g. "0.6" for 600000000 base units.
func (a Amount) String() string {
	whole := uint64(a) / NanoPerCoin
	frac := uint64(a) % NanoPerCoin

	var b strings.Builder
	b.WriteString(strconv.FormatUint(whole, 10))
	if frac != 0 {
		fracStr := strconv.FormatUint(frac, 10)
		for len(fracStr) < 9 {
			fracStr = "0" + fracStr
		}
		fracStr = strings.TrimRight(fracStr, "0")
		b.WriteString(".")
		b.WriteString(fracStr)
	}
	return b.String()
}

// MarshalJSON implements json.Marshaler, encoding the amount as a
// decimal string of base units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(a), 10) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.  Both quoted and bare
// decimal encodings are accepted since node responses use raw numbers
// while slates quote every 64-bit integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.New("malformed amount: " + s)
	}
	*a = Amount(u)
	return nil
}
