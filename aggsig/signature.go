// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package aggsig

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// SignatureSize is the serialized size of both partial and completed
// signatures: the 32 byte x coordinate of the aggregate nonce followed
// by the 32 byte scalar.
const SignatureSize = 64

// ErrInvalidSignature describes signature bytes that cannot be parsed.
var ErrInvalidSignature = errors.New("invalid signature encoding")

// Signature is a Schnorr signature (R.x, s).  Partial signatures use
// the same layout with s covering only one participant's share.
type Signature [SignatureSize]byte

// NewSignatureFromBytes constructs a signature from its serialized form.
func NewSignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("%w: wrong length %d", ErrInvalidSignature,
			len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// NewSignatureFromString constructs a signature from its hex form.
func NewSignatureFromString(s string) (Signature, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return NewSignatureFromBytes(b)
}

// Bytes returns the serialized signature.
func (sig Signature) Bytes() []byte {
	return sig[:]
}

// String returns the hex encoding.
func (sig Signature) String() string {
	return hex.EncodeToString(sig[:])
}

// MarshalJSON implements json.Marshaler using the hex encoding.
func (sig Signature) MarshalJSON() ([]byte, error) {
	return []byte(`"` + sig.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (sig *Signature) UnmarshalJSON(data []byte) error {
	parsed, err := NewSignatureFromString(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*sig = parsed
	return nil
}
