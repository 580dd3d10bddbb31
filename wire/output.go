// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire defines the confidential transaction types exchanged
// with the node and embedded in slates: inputs, outputs, kernels and
// the transaction envelope, together with their canonical JSON
// encoding and the kernel sum checks that hold a transaction to the
// conservation rule.
package wire

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mwsuite/mwwallet/commit"
)

// OutputFeatures distinguishes ordinary outputs from coinbase outputs,
// which carry a maturity rule.
type OutputFeatures uint8

const (
	// PlainOutput is a regular transaction output.
	PlainOutput OutputFeatures = 0

	// CoinbaseOutput is a block reward output subject to the coinbase
	// maturity rule.
	CoinbaseOutput OutputFeatures = 1
)

// ErrUnknownFeatures describes a feature tag outside the known set.
var ErrUnknownFeatures = errors.New("unknown features")

// String returns the wire name of the output features.
func (f OutputFeatures) String() string {
	switch f {
	case PlainOutput:
		return "Plain"
	case CoinbaseOutput:
		return "Coinbase"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(f))
}

// MarshalJSON implements json.Marshaler.
func (f OutputFeatures) MarshalJSON() ([]byte, error) {
	switch f {
	case PlainOutput, CoinbaseOutput:
		return []byte(`"` + f.String() + `"`), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownFeatures, uint8(f))
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *OutputFeatures) UnmarshalJSON(data []byte) error {
	switch string(bytes.Trim(data, `"`)) {
	case "Plain":
		*f = PlainOutput
	case "Coinbase":
		*f = CoinbaseOutput
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFeatures, data)
	}
	return nil
}

// MaxRangeProofSize is the largest serialized range proof accepted.
const MaxRangeProofSize = 675

// RangeProof is an opaque proof that an output commits to a value in
// the valid range.  The wallet treats proofs as rewindable envelopes;
// full verification is the node's concern.
type RangeProof []byte

// Validate performs the structural checks possible without the rewind
// secret.
func (p RangeProof) Validate() error {
	if len(p) == 0 {
		return errors.New("empty range proof")
	}
	if len(p) > MaxRangeProofSize {
		return fmt.Errorf("range proof too large: %d bytes", len(p))
	}
	return nil
}

// String returns the hex encoding of the proof.
func (p RangeProof) String() string {
	return hex.EncodeToString(p)
}

// MarshalJSON implements json.Marshaler using the hex encoding rather
// than the base64 default for byte slices.
func (p RangeProof) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *RangeProof) UnmarshalJSON(data []byte) error {
	b, err := hex.DecodeString(string(bytes.Trim(data, `"`)))
	if err != nil {
		return fmt.Errorf("malformed range proof: %v", err)
	}
	*p = b
	return nil
}

// Input spends an existing output, referenced by its commitment.
type Input struct {
	Features OutputFeatures    `json:"features"`
	Commit   commit.Commitment `json:"commit"`
}

// Output is a new confidential output.
type Output struct {
	Features OutputFeatures    `json:"features"`
	Commit   commit.Commitment `json:"commit"`
	Proof    RangeProof        `json:"proof"`
}

// Validate checks the output's structure.
func (o *Output) Validate() error {
	if o.Commit.IsZero() {
		return errors.New("output missing commitment")
	}
	return o.Proof.Validate()
}
