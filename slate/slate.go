// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package slate implements the interactive transaction negotiation
// document exchanged between wallets.
//
// A slate is a transaction under construction plus the protocol
// metadata needed to finish it: the expected participant count, each
// participant's public blinding excess and signing nonce, and their
// partial kernel signatures as the rounds progress.  Parties advance
// the slate strictly in rounds.  Round one contributes transaction
// elements and public values, round two contributes a partial
// signature over the aggregate nonce and excess, and finalization
// aggregates the partial signatures into the kernel.  A participant's
// contribution is immutable once recorded; changing any public value
// after another party has signed would invalidate their signature, so
// such modifications are rejected rather than re-signed.
package slate

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/mwsuite/mwwallet/aggsig"
	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/wire"
)

var (
	// ErrParticipantCountExceeded is returned when a party attempts to
	// join a slate that already has its expected number of
	// participants.
	ErrParticipantCountExceeded = errors.New("slate already has all participants")

	// ErrParticipantExists is returned when a participant id is already
	// taken.
	ErrParticipantExists = errors.New("participant id already filled")

	// ErrParticipantNotFound is returned when a round refers to a
	// participant id with no recorded data.
	ErrParticipantNotFound = errors.New("no such participant")

	// ErrAlreadySigned is returned when a participant attempts to
	// replace a recorded partial signature.
	ErrAlreadySigned = errors.New("participant has already signed")

	// ErrIncompleteParticipantData is returned when finalization is
	// attempted before every participant has contributed and signed.
	ErrIncompleteParticipantData = errors.New("incomplete participant data")

	// ErrKernelCount is returned when the slate transaction does not
	// carry exactly one kernel.
	ErrKernelCount = errors.New("slate transaction must carry one kernel")

	// ErrMissingMessageSig is returned by message verification when a
	// participant attached a message without a signature.
	ErrMissingMessageSig = errors.New("participant message missing signature")
)

// PublicKey wraps a secp256k1 public key so participant data
// serializes as compressed hex.
type PublicKey struct {
	*btcec.PublicKey
}

// MarshalJSON implements the json.Marshaler interface.
func (p PublicKey) MarshalJSON() ([]byte, error) {
	if p.PublicKey == nil {
		return []byte("null"), nil
	}
	return []byte(`"` + hex.EncodeToString(p.SerializeCompressed()) + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (p *PublicKey) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		p.PublicKey = nil
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("public key must be a hex string")
	}
	b, err := hex.DecodeString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	pk, err := btcec.ParsePubKey(b)
	if err != nil {
		return err
	}
	p.PublicKey = pk
	return nil
}

// ParticipantData is one signer's contribution to the slate.
type ParticipantData struct {
	// ID is the participant's role index.  By convention the initiating
	// party is id 0 and the counterparty id 1; the invoice flow swaps
	// the roles but keeps the numbering rule.
	ID uint64 `json:"id,string"`

	// PublicBlindExcess commits to the participant's blinding factor
	// share.
	PublicBlindExcess PublicKey `json:"public_blind_excess"`

	// PublicNonce is the participant's signing nonce commitment for the
	// signature round.
	PublicNonce PublicKey `json:"public_nonce"`

	// PartSig is the participant's partial kernel signature, present
	// once they have completed round two.
	PartSig *aggsig.Signature `json:"part_sig"`

	// Message is an optional plaintext note attached by the
	// participant.
	Message *string `json:"message"`

	// MessageSig authenticates Message against PublicBlindExcess.  It
	// is independent of the transaction signature.
	MessageSig *aggsig.Signature `json:"message_sig"`
}

// PaymentProofInfo carries an invoice-style proof-of-payment request.
// Addresses are hex encoded ed25519 public keys.
type PaymentProofInfo struct {
	SenderAddress     string  `json:"sender_address"`
	ReceiverAddress   string  `json:"receiver_address"`
	ReceiverSignature *string `json:"receiver_signature"`
}

// VersionCompatInfo records the schema version the slate was created
// under and currently uses, so wallets running different builds can
// translate.
type VersionCompatInfo struct {
	// Version is the schema version of this document.
	Version uint16 `json:"version"`

	// OrigVersion is the schema version the slate was first created
	// under.
	OrigVersion uint16 `json:"orig_version"`

	// BlockHeaderVersion is the header version of the chain tip at
	// creation time.
	BlockHeaderVersion uint16 `json:"block_header_version"`
}

// Slate is the shared, serializable state of one transaction
// negotiation.
type Slate struct {
	// VersionInfo carries schema version metadata.
	VersionInfo VersionCompatInfo `json:"version_info"`

	// NumParticipants is the expected number of signing parties.
	NumParticipants uint64 `json:"num_participants"`

	// ID identifies the negotiation across all parties.
	ID uuid.UUID `json:"id"`

	// Tx is the transaction under construction.
	Tx *wire.Transaction `json:"tx"`

	// Amount is the value transferred to the receiving party.
	Amount mwutil.Amount `json:"amount"`

	// Fee is the transaction fee agreed by the initiator.
	Fee mwutil.Amount `json:"fee"`

	// Height is the chain height observed when the slate was created.
	Height uint64 `json:"height,string"`

	// LockHeight is the kernel lock height; zero for plain kernels.
	LockHeight uint64 `json:"lock_height,string"`

	// TTLCutoffHeight marks the chain height after which the slate
	// should be considered stale and eligible for cancellation.  Zero
	// means no cutoff.  Expiry never cancels automatically; cancelling
	// remains an explicit caller action.
	TTLCutoffHeight uint64 `json:"ttl_cutoff_height,string"`

	// ParticipantData holds each party's contribution, ordered by
	// ascending participant id.
	ParticipantData []ParticipantData `json:"participant_data"`

	// PaymentProof is the optional proof-of-payment request attached by
	// the initiator.
	PaymentProof *PaymentProofInfo `json:"payment_proof"`
}

// New creates a blank slate for the given negotiation parameters.  The
// transaction starts with no inputs or outputs and a single unsigned
// kernel matching the fee and lock height.
func New(numParticipants uint64, amount, fee mwutil.Amount, height,
	lockHeight uint64, headerVersion uint16) *Slate {

	if numParticipants < 2 {
		numParticipants = 2
	}

	tx := wire.NewTransaction()
	tx.Body.Kernels = append(tx.Body.Kernels, *wire.NewTxKernel(fee, lockHeight))

	return &Slate{
		VersionInfo: VersionCompatInfo{
			Version:            uint16(CurrentVersion),
			OrigVersion:        uint16(CurrentVersion),
			BlockHeaderVersion: headerVersion,
		},
		NumParticipants: numParticipants,
		ID:              uuid.New(),
		Tx:              tx,
		Amount:          amount,
		Fee:             fee,
		Height:          height,
		LockHeight:      lockHeight,
		ParticipantData: []ParticipantData{},
	}
}

// AddTransactionElements appends a party's inputs and outputs to the
// transaction body and restores canonical ordering.
func (s *Slate) AddTransactionElements(inputs []wire.Input,
	outputs []wire.Output) {

	s.Tx.Body.Inputs = append(s.Tx.Body.Inputs, inputs...)
	s.Tx.Body.Outputs = append(s.Tx.Body.Outputs, outputs...)
	s.Tx.Body.Sort()
}

// GenerateOffset draws a random kernel offset into the transaction and
// returns the party's excess with the offset split out.  The offset
// hides which kernel belongs to which transaction once transactions
// are aggregated on chain.
func (s *Slate) GenerateOffset(excess *commit.SecretKey) (
	*commit.SecretKey, error) {

	offset, err := commit.NewSecretKey()
	if err != nil {
		return nil, err
	}
	s.Tx.Offset = commit.BlindingFactorFromSecretKey(offset)

	adjusted, err := commit.BlindSum(
		[]*commit.SecretKey{excess}, []*commit.SecretKey{offset},
	)
	offset.Zero()
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

func (s *Slate) findParticipant(id uint64) *ParticipantData {
	for i := range s.ParticipantData {
		if s.ParticipantData[i].ID == id {
			return &s.ParticipantData[i]
		}
	}
	return nil
}

// Participant returns the recorded entry for the given participant id,
// or nil if that party has not contributed yet.
func (s *Slate) Participant(id uint64) *ParticipantData {
	return s.findParticipant(id)
}

// sortParticipants restores the canonical ascending id order that all
// aggregate computations assume.
func (s *Slate) sortParticipants() {
	sort.Slice(s.ParticipantData, func(i, j int) bool {
		return s.ParticipantData[i].ID < s.ParticipantData[j].ID
	})
}

// messageDigest returns the digest a participant message signature
// commits to.
func messageDigest(message string) []byte {
	h := blake2b.Sum256([]byte(message))
	return h[:]
}

// FillRound1 records a party's public round one contribution: their
// public blinding excess, public nonce, and optionally a signed
// message.
func (s *Slate) FillRound1(secKey, secNonce *commit.SecretKey,
	participantID uint64, message *string) error {

	if uint64(len(s.ParticipantData)) >= s.NumParticipants {
		return ErrParticipantCountExceeded
	}
	if s.findParticipant(participantID) != nil {
		return fmt.Errorf("%w: id %d", ErrParticipantExists, participantID)
	}

	pd := ParticipantData{
		ID:                participantID,
		PublicBlindExcess: PublicKey{secKey.PubKey()},
		PublicNonce:       PublicKey{secNonce.PubKey()},
	}
	if message != nil {
		sig, err := aggsig.Sign(secKey, messageDigest(*message))
		if err != nil {
			return err
		}
		pd.Message = message
		pd.MessageSig = &sig
	}

	s.ParticipantData = append(s.ParticipantData, pd)
	s.sortParticipants()
	return nil
}

// PubNonceSum returns the aggregate public nonce over all recorded
// participants, summed in canonical id order.
func (s *Slate) PubNonceSum() (*btcec.PublicKey, error) {
	keys := make([]*btcec.PublicKey, 0, len(s.ParticipantData))
	for i := range s.ParticipantData {
		keys = append(keys, s.ParticipantData[i].PublicNonce.PublicKey)
	}
	return commit.SumPubKeys(keys...)
}

// PubBlindSum returns the aggregate public blinding excess over all
// recorded participants, summed in canonical id order.
func (s *Slate) PubBlindSum() (*btcec.PublicKey, error) {
	keys := make([]*btcec.PublicKey, 0, len(s.ParticipantData))
	for i := range s.ParticipantData {
		keys = append(keys, s.ParticipantData[i].PublicBlindExcess.PublicKey)
	}
	return commit.SumPubKeys(keys...)
}

// KernelMsg returns the message the kernel signature commits to.
func (s *Slate) KernelMsg() ([]byte, error) {
	return wire.NewTxKernel(s.Fee, s.LockHeight).MsgToSign()
}

// verifyPartSigs checks every recorded partial signature against the
// aggregate nonce and excess.
func (s *Slate) verifyPartSigs(nonceSum, keySum *btcec.PublicKey,
	msg []byte) error {

	for i := range s.ParticipantData {
		pd := &s.ParticipantData[i]
		if pd.PartSig == nil {
			continue
		}
		err := aggsig.VerifyPartialSig(*pd.PartSig,
			pd.PublicNonce.PublicKey, pd.PublicBlindExcess.PublicKey,
			nonceSum, keySum, msg)
		if err != nil {
			return fmt.Errorf("participant %d: %w", pd.ID, err)
		}
	}
	return nil
}

// FillRound2 computes and records this party's partial kernel
// signature over the current aggregate nonce and excess.  Existing
// partial signatures from other parties are verified first; a failure
// means the aggregate changed after they signed, and the negotiation
// cannot proceed.
func (s *Slate) FillRound2(secKey, secNonce *commit.SecretKey,
	participantID uint64) error {

	pd := s.findParticipant(participantID)
	if pd == nil {
		return fmt.Errorf("%w: id %d", ErrParticipantNotFound, participantID)
	}
	if pd.PartSig != nil {
		return fmt.Errorf("%w: id %d", ErrAlreadySigned, participantID)
	}

	nonceSum, err := s.PubNonceSum()
	if err != nil {
		return err
	}
	keySum, err := s.PubBlindSum()
	if err != nil {
		return err
	}
	msg, err := s.KernelMsg()
	if err != nil {
		return err
	}

	if err := s.verifyPartSigs(nonceSum, keySum, msg); err != nil {
		return err
	}

	sig, err := aggsig.CalculatePartialSig(secKey, secNonce, nonceSum,
		keySum, msg)
	if err != nil {
		return err
	}
	pd.PartSig = &sig
	return nil
}

// Complete reports whether every expected participant has contributed
// and signed.
func (s *Slate) Complete() bool {
	if uint64(len(s.ParticipantData)) != s.NumParticipants {
		return false
	}
	for i := range s.ParticipantData {
		if s.ParticipantData[i].PartSig == nil {
			return false
		}
	}
	return true
}

// Finalize aggregates the partial signatures into the kernel and
// validates the finished transaction.  Every partial signature is
// re-verified, the aggregate signature is checked against the kernel
// message, and the kernel sum equation is confirmed before the
// transaction is returned; a slate that cannot produce a verifiable
// kernel fails here rather than producing an unpostable transaction.
func (s *Slate) Finalize() (*wire.Transaction, error) {
	if !s.Complete() {
		return nil, ErrIncompleteParticipantData
	}
	if len(s.Tx.Body.Kernels) != 1 {
		return nil, ErrKernelCount
	}

	nonceSum, err := s.PubNonceSum()
	if err != nil {
		return nil, err
	}
	keySum, err := s.PubBlindSum()
	if err != nil {
		return nil, err
	}
	msg, err := s.KernelMsg()
	if err != nil {
		return nil, err
	}

	if err := s.verifyPartSigs(nonceSum, keySum, msg); err != nil {
		return nil, err
	}

	partSigs := make([]aggsig.Signature, 0, len(s.ParticipantData))
	for i := range s.ParticipantData {
		partSigs = append(partSigs, *s.ParticipantData[i].PartSig)
	}
	finalSig, err := aggsig.AddSignatures(partSigs, nonceSum)
	if err != nil {
		return nil, err
	}
	if err := aggsig.Verify(finalSig, keySum, msg); err != nil {
		return nil, err
	}

	kernel := &s.Tx.Body.Kernels[0]
	kernel.Features = wire.NewTxKernel(s.Fee, s.LockHeight).Features
	kernel.Fee = s.Fee
	kernel.LockHeight = s.LockHeight
	kernel.Excess = commit.NewCommitmentFromPubKey(keySum)
	kernel.ExcessSig = finalSig

	if err := kernel.Verify(); err != nil {
		return nil, err
	}
	if err := s.Tx.Body.Validate(); err != nil {
		return nil, err
	}
	if err := s.Tx.VerifyKernelSums(s.Fee); err != nil {
		return nil, err
	}
	return s.Tx, nil
}

// VerifyMessages checks every participant's message signature against
// their public blinding excess.  This authenticates the notes only; it
// says nothing about transaction validity.
func (s *Slate) VerifyMessages() error {
	for i := range s.ParticipantData {
		pd := &s.ParticipantData[i]
		if pd.Message == nil {
			continue
		}
		if pd.MessageSig == nil {
			return fmt.Errorf("%w: participant %d",
				ErrMissingMessageSig, pd.ID)
		}
		err := aggsig.Verify(*pd.MessageSig,
			pd.PublicBlindExcess.PublicKey, messageDigest(*pd.Message))
		if err != nil {
			return fmt.Errorf("participant %d message: %w", pd.ID, err)
		}
	}
	return nil
}

// TTLExpired reports whether the slate's cutoff height has passed at
// the given chain height, making it eligible for cancellation.
func (s *Slate) TTLExpired(chainHeight uint64) bool {
	return s.TTLCutoffHeight != 0 && chainHeight > s.TTLCutoffHeight
}

// State describes how far a slate's signing rounds have progressed.
// It is derived from the slate contents rather than stored, so every
// party computes the same answer.
type State uint8

const (
	// StateCreated is a blank slate with no participant data.
	StateCreated State = iota

	// StateAwaitingCounterparty means the initiating party has
	// contributed but at least one expected participant has not.
	StateAwaitingCounterparty

	// StateCounterpartySigned means all participants have contributed
	// and at least one partial signature is still outstanding.
	StateCounterpartySigned

	// StateSigned means every partial signature is present and the
	// slate is ready to finalize.
	StateSigned

	// StateFinalized means the kernel carries the aggregate signature.
	StateFinalized
)

var stateStrings = map[State]string{
	StateCreated:              "Created",
	StateAwaitingCounterparty: "AwaitingCounterparty",
	StateCounterpartySigned:   "CounterpartySigned",
	StateSigned:               "Signed",
	StateFinalized:            "Finalized",
}

// String returns the state as a human-readable name.
func (st State) String() string {
	if s, ok := stateStrings[st]; ok {
		return s
	}
	return "Unknown"
}

// State derives the slate's protocol state.
func (s *Slate) State() State {
	if len(s.Tx.Body.Kernels) == 1 &&
		!s.Tx.Body.Kernels[0].Excess.IsZero() {

		return StateFinalized
	}
	if len(s.ParticipantData) == 0 {
		return StateCreated
	}
	if uint64(len(s.ParticipantData)) < s.NumParticipants {
		return StateAwaitingCounterparty
	}
	if s.Complete() {
		return StateSigned
	}
	return StateCounterpartySigned
}

// PaymentProofMessage builds the message a payment proof signature
// commits to: the amount, the kernel excess, and the sender's address.
func PaymentProofMessage(amount mwutil.Amount, excess commit.Commitment,
	senderAddress string) ([]byte, error) {

	sender, err := hex.DecodeString(senderAddress)
	if err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}

	msg := make([]byte, 8+commit.CommitmentSize+len(sender))
	binary.BigEndian.PutUint64(msg[:8], uint64(amount))
	copy(msg[8:8+commit.CommitmentSize], excess[:])
	copy(msg[8+commit.CommitmentSize:], sender)
	return msg, nil
}
