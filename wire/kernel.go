// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/mwsuite/mwwallet/aggsig"
	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/mwutil"
)

// KernelFeatures encodes the kernel variant.
type KernelFeatures uint8

const (
	// PlainKernel is an ordinary transaction kernel carrying a fee.
	PlainKernel KernelFeatures = 0

	// CoinbaseKernel is a block reward kernel.  It carries no fee.
	CoinbaseKernel KernelFeatures = 1

	// HeightLockedKernel is a plain kernel whose transaction is not
	// valid before its lock height.
	HeightLockedKernel KernelFeatures = 2
)

// String returns the wire name of the kernel features.
func (f KernelFeatures) String() string {
	switch f {
	case PlainKernel:
		return "Plain"
	case CoinbaseKernel:
		return "Coinbase"
	case HeightLockedKernel:
		return "HeightLocked"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(f))
}

// MarshalJSON implements json.Marshaler.
func (f KernelFeatures) MarshalJSON() ([]byte, error) {
	switch f {
	case PlainKernel, CoinbaseKernel, HeightLockedKernel:
		return []byte(`"` + f.String() + `"`), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownFeatures, uint8(f))
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *KernelFeatures) UnmarshalJSON(data []byte) error {
	switch string(bytes.Trim(data, `"`)) {
	case "Plain":
		*f = PlainKernel
	case "Coinbase":
		*f = CoinbaseKernel
	case "HeightLocked":
		*f = HeightLockedKernel
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFeatures, data)
	}
	return nil
}

// ErrKernelFeatures describes a kernel whose fields contradict its
// feature tag.
var ErrKernelFeatures = errors.New("inconsistent kernel features")

// TxKernel proves a transaction's balance.  The excess commits to the
// sum of output blinding factors minus input blinding factors (less
// the offset), and the signature over the kernel's message proves
// knowledge of that excess, which is only possible when no coins were
// created or destroyed.
type TxKernel struct {
	Features   KernelFeatures    `json:"features"`
	Fee        mwutil.Amount     `json:"fee"`
	LockHeight uint64            `json:"lock_height,string"`
	Excess     commit.Commitment `json:"excess"`
	ExcessSig  aggsig.Signature  `json:"excess_sig"`
}

// NewTxKernel returns an unsigned kernel for the given fee and lock
// height, picking the height locked variant when needed.
func NewTxKernel(fee mwutil.Amount, lockHeight uint64) *TxKernel {
	features := PlainKernel
	if lockHeight > 0 {
		features = HeightLockedKernel
	}
	return &TxKernel{
		Features:   features,
		Fee:        fee,
		LockHeight: lockHeight,
	}
}

// ValidateFeatures checks the feature dependent field rules.
func (k *TxKernel) ValidateFeatures() error {
	switch k.Features {
	case PlainKernel:
		if k.LockHeight != 0 {
			return fmt.Errorf("%w: plain kernel with lock height %d",
				ErrKernelFeatures, k.LockHeight)
		}
	case CoinbaseKernel:
		if k.Fee != 0 || k.LockHeight != 0 {
			return fmt.Errorf("%w: coinbase kernel with fee or lock height",
				ErrKernelFeatures)
		}
	case HeightLockedKernel:
		if k.LockHeight == 0 {
			return fmt.Errorf("%w: height locked kernel without lock height",
				ErrKernelFeatures)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFeatures, uint8(k.Features))
	}
	return nil
}

// MsgToSign returns the 32 byte message the kernel signature commits
// to: the blake2b hash of the feature tag and the feature dependent
// fields.
func (k *TxKernel) MsgToSign() ([]byte, error) {
	if err := k.ValidateFeatures(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(k.Features))
	switch k.Features {
	case PlainKernel:
		var fee [8]byte
		binary.BigEndian.PutUint64(fee[:], uint64(k.Fee))
		buf.Write(fee[:])
	case HeightLockedKernel:
		var fields [16]byte
		binary.BigEndian.PutUint64(fields[:8], uint64(k.Fee))
		binary.BigEndian.PutUint64(fields[8:], k.LockHeight)
		buf.Write(fields[:])
	}

	h := blake2b.Sum256(buf.Bytes())
	return h[:], nil
}

// Verify checks the kernel signature against the excess commitment.
func (k *TxKernel) Verify() error {
	msg, err := k.MsgToSign()
	if err != nil {
		return err
	}
	excessKey, err := k.Excess.PubKey()
	if err != nil {
		return fmt.Errorf("kernel excess: %w", err)
	}
	if err := aggsig.Verify(k.ExcessSig, excessKey, msg); err != nil {
		return fmt.Errorf("kernel signature: %w", err)
	}
	return nil
}
