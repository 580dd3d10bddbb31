// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/internal/zero"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/slate"
)

// proofAddressKeyID is the derivation path of the wallet's payment
// proof address key.  It sits outside the output key parent so address
// keys can never collide with output blinding keys.
var proofAddressKeyID = keychain.NewIdentifier(1, 0)

// proofKey derives the wallet's ed25519 payment proof signing key.
func (w *Wallet) proofKey() (ed25519.PrivateKey, error) {
	sk, err := w.keys.DeriveKey(proofAddressKeyID)
	if err != nil {
		return nil, walletError(ErrKeychain,
			"deriving payment proof key", err)
	}
	seed := sk.Bytes()
	sk.Zero()
	key := ed25519.NewKeyFromSeed(seed[:])
	zero.Bytea32(&seed)
	return key, nil
}

// ProofAddress returns the wallet's payment proof address: the hex
// encoded public key counterparties verify payment proof signatures
// against.
func (w *Wallet) ProofAddress() (string, error) {
	key, err := w.proofKey()
	if err != nil {
		return "", err
	}
	pub := key.Public().(ed25519.PublicKey)
	zero.Bytes(key)
	return hex.EncodeToString(pub), nil
}

// parseProofAddress decodes the hex form of a payment proof address.
func parseProofAddress(addr string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(addr)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, walletError(ErrInvalidSlate,
			"malformed payment proof address "+addr, err)
	}
	return ed25519.PublicKey(b), nil
}

// signPaymentProof fills the receiver signature on a slate's payment
// proof request.  The signature commits to the amount, the kernel
// excess, and the sender's address; the excess is computable as soon
// as both parties' round one entries are present, so the receiving
// party signs before returning the slate.
func (w *Wallet) signPaymentProof(s *slate.Slate) error {
	if s.PaymentProof == nil {
		return nil
	}

	ours, err := w.ProofAddress()
	if err != nil {
		return err
	}
	if s.PaymentProof.ReceiverAddress != ours {
		str := fmt.Sprintf("payment proof is addressed to %s, not to "+
			"this wallet", s.PaymentProof.ReceiverAddress)
		return walletError(ErrInvalidSlate, str, nil)
	}

	keySum, err := s.PubBlindSum()
	if err != nil {
		return walletError(ErrInvalidSlate,
			"summing public excesses for payment proof", err)
	}
	msg, err := slate.PaymentProofMessage(s.Amount,
		commit.NewCommitmentFromPubKey(keySum),
		s.PaymentProof.SenderAddress)
	if err != nil {
		return walletError(ErrInvalidSlate,
			"building payment proof message", err)
	}

	key, err := w.proofKey()
	if err != nil {
		return err
	}
	sig := hex.EncodeToString(ed25519.Sign(key, msg))
	zero.Bytes(key)
	s.PaymentProof.ReceiverSignature = &sig
	return nil
}

// verifyPaymentProof checks the receiver's payment proof signature
// against the finalized kernel excess.  The finalizing party runs this
// before accepting the transaction so an unproven payment never
// reaches the chain.
func verifyPaymentProof(s *slate.Slate, excess commit.Commitment) error {
	if s.PaymentProof == nil {
		return nil
	}
	if s.PaymentProof.ReceiverSignature == nil {
		return walletError(ErrSignatureVerification,
			"payment proof missing receiver signature", nil)
	}

	pub, err := parseProofAddress(s.PaymentProof.ReceiverAddress)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(*s.PaymentProof.ReceiverSignature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return walletError(ErrSignatureVerification,
			"malformed payment proof signature", err)
	}
	msg, err := slate.PaymentProofMessage(s.Amount, excess,
		s.PaymentProof.SenderAddress)
	if err != nil {
		return walletError(ErrInvalidSlate,
			"building payment proof message", err)
	}

	if !ed25519.Verify(pub, msg, sig) {
		return walletError(ErrSignatureVerification,
			"payment proof signature check failed", nil)
	}
	return nil
}
