// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mwtxmgr provides the authoritative wallet-local record of
// confidential outputs and negotiated transactions.
//
// Every output the wallet can spend is tracked by its key derivation
// identifier together with its commitment, value, and spend status.
// Status changes only happen through the transition operations defined
// here (lock, unlock, spend, receive, confirm), each of which validates
// the output's current status before moving it, so callers cannot
// corrupt the ledger by applying transitions out of order.  One
// transaction log entry is recorded per negotiated transaction and ties
// together the outputs it created or consumed, the kernel excess used
// for confirmation polling, and the finalized transaction kept for
// rebroadcast.
package mwtxmgr

import (
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/netparams"
	"github.com/mwsuite/mwwallet/walletdb"
)

// OutputStatus describes the spend state of a wallet output.
type OutputStatus uint8

// These constants define the possible output states.  Transitions
// between them are restricted to the ones applied by the Apply*
// methods.
const (
	// StatusUnconfirmed is the state of an output that this wallet has
	// added to a transaction under negotiation but has not yet seen
	// confirmed on chain.
	StatusUnconfirmed OutputStatus = iota

	// StatusUnspent is the state of a confirmed output that is available
	// for spending.
	StatusUnspent

	// StatusLocked is the state of an output reserved as an input to a
	// transaction under negotiation.  Locked outputs are excluded from
	// selection until the transaction confirms or is cancelled.
	StatusLocked

	// StatusSpent is the state of an output consumed by a confirmed
	// transaction.
	StatusSpent
)

var outputStatusStrings = map[OutputStatus]string{
	StatusUnconfirmed: "Unconfirmed",
	StatusUnspent:     "Unspent",
	StatusLocked:      "Locked",
	StatusSpent:       "Spent",
}

// String returns the output status as a human-readable name.
func (s OutputStatus) String() string {
	if str, ok := outputStatusStrings[s]; ok {
		return str
	}
	return "Unknown"
}

// MarshalJSON implements the json.Marshaler interface.
func (s OutputStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *OutputStatus) UnmarshalJSON(b []byte) error {
	for status, str := range outputStatusStrings {
		if string(b) == `"`+str+`"` {
			*s = status
			return nil
		}
	}
	return storeError(ErrData, "unknown output status "+string(b), nil)
}

// TxType describes the role a transaction log entry played for this
// wallet.
type TxType uint8

// These constants define the possible transaction log entry types.
const (
	// TxConfirmedCoinbase is a coinbase reward credited to this wallet.
	TxConfirmedCoinbase TxType = iota

	// TxReceived is a transaction crediting this wallet, negotiated with
	// this wallet acting as the receiving party.
	TxReceived

	// TxSent is a transaction debiting this wallet, negotiated with this
	// wallet acting as the sending party.
	TxSent

	// TxReceivedCancelled is a received transaction cancelled before
	// confirmation.
	TxReceivedCancelled

	// TxSentCancelled is a sent transaction cancelled before
	// confirmation.
	TxSentCancelled
)

var txTypeStrings = map[TxType]string{
	TxConfirmedCoinbase: "ConfirmedCoinbase",
	TxReceived:          "TxReceived",
	TxSent:              "TxSent",
	TxReceivedCancelled: "TxReceivedCancelled",
	TxSentCancelled:     "TxSentCancelled",
}

// String returns the entry type as a human-readable name.
func (t TxType) String() string {
	if str, ok := txTypeStrings[t]; ok {
		return str
	}
	return "Unknown"
}

// MarshalJSON implements the json.Marshaler interface.
func (t TxType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *TxType) UnmarshalJSON(b []byte) error {
	for typ, str := range txTypeStrings {
		if string(b) == `"`+str+`"` {
			*t = typ
			return nil
		}
	}
	return storeError(ErrData, "unknown tx type "+string(b), nil)
}

// Cancelled returns whether the entry type is one of the cancelled
// variants.
func (t TxType) Cancelled() bool {
	return t == TxReceivedCancelled || t == TxSentCancelled
}

// Output is the wallet-local record of a confidential output.  The key
// identifier doubles as the database key, so at most one output is
// tracked per derivation path.
type Output struct {
	// KeyID is the derivation path that produced the output's blinding
	// factor.
	KeyID keychain.Identifier `json:"key_id"`

	// NChild is the last derivation path element, retained so callers
	// can display the derivation index without parsing the identifier.
	NChild uint32 `json:"n_child"`

	// Commit is the on-chain Pedersen commitment.
	Commit commit.Commitment `json:"commit"`

	// MMRIndex is the output's position in the node's output set, once
	// known.  Zero means not yet known.
	MMRIndex uint64 `json:"mmr_index,string"`

	// Value is the amount committed to by the output.
	Value mwutil.Amount `json:"value"`

	// Status is the output's place in the spend lifecycle.
	Status OutputStatus `json:"status"`

	// Height is the block height the output was confirmed at, or the
	// chain height at creation time for unconfirmed outputs.
	Height uint64 `json:"height,string"`

	// LockHeight is the height before which the output cannot be spent.
	// For coinbase outputs this is the creation height plus the coinbase
	// maturity.
	LockHeight uint64 `json:"lock_height,string"`

	// IsCoinbase marks outputs that originate from a block reward and
	// are subject to the maturity rule.
	IsCoinbase bool `json:"is_coinbase"`

	// TxLogID ties the output to the transaction log entry that created
	// it, or, once the output is locked or spent, the entry that
	// consumes it.  Nil when the association is unknown.
	TxLogID *uint32 `json:"tx_log_entry"`
}

// NumConfirmations returns the number of confirmations the output has
// at the given chain height.  Unconfirmed outputs have zero
// confirmations.
func (o *Output) NumConfirmations(chainHeight uint64) uint64 {
	if o.Status == StatusUnconfirmed || o.Height == 0 ||
		o.Height > chainHeight {

		return 0
	}
	return chainHeight - o.Height + 1
}

// IsMature returns whether the coinbase maturity rule permits spending
// the output at the given chain height.  Non-coinbase outputs are
// always mature.
func (o *Output) IsMature(chainHeight uint64) bool {
	if !o.IsCoinbase {
		return true
	}
	return o.LockHeight <= chainHeight
}

// TxLogEntry is one ledger record per negotiated transaction.
type TxLogEntry struct {
	// ID is the wallet-local sequence number of the entry.
	ID uint32 `json:"id"`

	// SlateID links the entry to the slate the transaction was
	// negotiated through.  Coinbase entries have no slate.
	SlateID *uuid.UUID `json:"tx_slate_id"`

	// Type records the role this transaction played for the wallet.
	Type TxType `json:"tx_type"`

	// CreationTime is when the entry was recorded.
	CreationTime time.Time `json:"creation_ts"`

	// ConfirmationTime is when the transaction was seen confirmed on
	// chain.  Nil until confirmed.
	ConfirmationTime *time.Time `json:"confirmation_ts"`

	// Confirmed is set once the transaction's kernel has been located
	// on chain.
	Confirmed bool `json:"confirmed"`

	// NumInputs and NumOutputs count this wallet's contributions to the
	// transaction.
	NumInputs  uint32 `json:"num_inputs"`
	NumOutputs uint32 `json:"num_outputs"`

	// AmountCredited and AmountDebited record the value entering and
	// leaving the wallet through this transaction.
	AmountCredited mwutil.Amount `json:"amount_credited"`
	AmountDebited  mwutil.Amount `json:"amount_debited"`

	// Fee is the transaction fee, when known.  Coinbase entries carry no
	// fee.
	Fee mwutil.Amount `json:"fee"`

	// TTLCutoffHeight marks the chain height after which the
	// negotiation is considered stale and eligible for cancellation.
	// Zero means no cutoff.
	TTLCutoffHeight uint64 `json:"ttl_cutoff_height,string"`

	// KernelExcess is the kernel commitment of the finalized
	// transaction, kept so confirmation polling can re-locate the
	// kernel on chain.  Nil until finalization.
	KernelExcess *commit.Commitment `json:"kernel_excess"`

	// KernelLookupMinHeight bounds the kernel search when polling for
	// confirmation.
	KernelLookupMinHeight uint64 `json:"kernel_lookup_min_height,string"`

	// StoredTx is set when the finalized transaction body is retained
	// for rebroadcast.
	StoredTx bool `json:"stored_tx"`
}

// TTLExpired reports whether the entry's cutoff height has passed at
// the given chain height.  Expired unconfirmed entries are eligible for
// cancellation, but cancellation is never automatic.
func (e *TxLogEntry) TTLExpired(chainHeight uint64) bool {
	return !e.Confirmed && e.TTLCutoffHeight != 0 &&
		chainHeight > e.TTLCutoffHeight
}

// Context holds one party's secret negotiation state for a slate.  It
// exists from the moment the wallet contributes to a slate until the
// transaction is finalized or cancelled, at which point it is deleted.
// The secret key and nonce never leave the wallet database.
type Context struct {
	// SlateID identifies the negotiation the context belongs to.
	SlateID uuid.UUID

	// ParticipantID is this wallet's id within the slate.
	ParticipantID uint64

	// SecKey is the wallet's blinding excess share for the
	// transaction.
	SecKey commit.BlindingFactor

	// SecNonce is the signing nonce committed to in round one.
	SecNonce commit.BlindingFactor

	// Amount and Fee mirror the slate so the finalizing step can
	// rebuild the kernel message without trusting the counterparty's
	// copy.
	Amount mwutil.Amount
	Fee    mwutil.Amount

	// Outputs are the outputs this wallet adds to the transaction.
	// They do not exist as ledger rows until the transaction is
	// locked, so both the derivation identifier and the committed
	// value are carried here.
	Outputs []ContextOutput

	// InputIDs are derivation identifiers of wallet outputs consumed by
	// the transaction.  Values are not recorded since the outputs are
	// already tracked by the ledger.
	InputIDs []keychain.Identifier
}

// ContextOutput names one output a negotiation will create for this
// wallet, pairing its key derivation identifier with its value.
type ContextOutput struct {
	KeyID keychain.Identifier
	Value mwutil.Amount
}

// Zero clears the secret material held by the context.
func (c *Context) Zero() {
	c.SecKey = commit.BlindingFactor{}
	c.SecNonce = commit.BlindingFactor{}
}

// Store implements the wallet output and transaction ledger atop a
// walletdb namespace.  All methods operate under a caller-provided
// database transaction, so one database transaction can atomically
// combine several ledger operations.
type Store struct {
	chainParams *netparams.Params

	// clock is used to stamp entries.  Tests replace it with a mock.
	clock clock.Clock
}

// Open opens the wallet transaction store from a walletdb namespace.
// The store must have been created previously with Create.
func Open(ns walletdb.ReadBucket, chainParams *netparams.Params) (*Store, error) {
	if err := checkVersion(ns); err != nil {
		return nil, err
	}
	return &Store{
		chainParams: chainParams,
		clock:       clock.NewDefaultClock(),
	}, nil
}

// Create creates a new persistent transaction store in the walletdb
// namespace.  Creating an already existing store returns an error.
func Create(ns walletdb.ReadWriteBucket) error {
	return createStore(ns)
}

// PutOutput inserts or replaces the record for an output.
func (s *Store) PutOutput(ns walletdb.ReadWriteBucket, out *Output) error {
	return putRawOutput(ns, keyOutput(out.KeyID), valueOutput(out))
}

// FetchOutput returns the output recorded for the given derivation
// identifier.
func (s *Store) FetchOutput(ns walletdb.ReadBucket,
	keyID keychain.Identifier) (*Output, error) {

	return fetchOutput(ns, keyID)
}

// DeleteOutput removes the record for an output.  Removing a missing
// output returns ErrNoExists.
func (s *Store) DeleteOutput(ns walletdb.ReadWriteBucket,
	keyID keychain.Identifier) error {

	if existsRawOutput(ns, keyOutput(keyID)) == nil {
		return storeError(ErrNoExists, "no output for key id "+
			keyID.String(), nil)
	}
	return deleteRawOutput(ns, keyOutput(keyID))
}

// ReceiveOutput records a new unconfirmed output created during slate
// negotiation.  The derivation identifier must not already track an
// output.
func (s *Store) ReceiveOutput(ns walletdb.ReadWriteBucket, out *Output) error {
	if existsRawOutput(ns, keyOutput(out.KeyID)) != nil {
		return storeError(ErrInvalidTransition, "output already exists "+
			"for key id "+out.KeyID.String(), nil)
	}
	out.Status = StatusUnconfirmed
	return putRawOutput(ns, keyOutput(out.KeyID), valueOutput(out))
}

// transitionOutput moves an output from one status to another after
// checking that its current status is the expected predecessor.
func (s *Store) transitionOutput(ns walletdb.ReadWriteBucket,
	keyID keychain.Identifier, from, to OutputStatus) (*Output, error) {

	out, err := fetchOutput(ns, keyID)
	if err != nil {
		return nil, err
	}
	if out.Status != from {
		str := "output " + keyID.String() + " is " + out.Status.String() +
			", not " + from.String()
		code := ErrInvalidTransition
		if to == StatusLocked {
			code = ErrAlreadyLocked
		}
		return nil, storeError(code, str, nil)
	}
	out.Status = to
	if err := putRawOutput(ns, keyOutput(keyID), valueOutput(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyLock reserves an unspent output as input to the transaction
// identified by txID.  Locking an output in any other state fails with
// ErrAlreadyLocked.
func (s *Store) ApplyLock(ns walletdb.ReadWriteBucket,
	keyID keychain.Identifier, txID uint32) error {

	out, err := fetchOutput(ns, keyID)
	if err != nil {
		return err
	}
	if out.Status != StatusUnspent {
		return storeError(ErrAlreadyLocked, "output "+keyID.String()+
			" is "+out.Status.String()+", not Unspent", nil)
	}
	out.Status = StatusLocked
	out.TxLogID = &txID
	return putRawOutput(ns, keyOutput(keyID), valueOutput(out))
}

// ApplyUnlock releases a locked output back to the unspent pool.
func (s *Store) ApplyUnlock(ns walletdb.ReadWriteBucket,
	keyID keychain.Identifier) error {

	_, err := s.transitionOutput(ns, keyID, StatusLocked, StatusUnspent)
	return err
}

// ApplySpend marks an output as consumed by a confirmed transaction.
// Both locked outputs (the normal path) and unspent outputs (spends
// discovered during reconciliation) may be spent.
func (s *Store) ApplySpend(ns walletdb.ReadWriteBucket,
	keyID keychain.Identifier) error {

	out, err := fetchOutput(ns, keyID)
	if err != nil {
		return err
	}
	if out.Status != StatusLocked && out.Status != StatusUnspent {
		return storeError(ErrInvalidTransition, "output "+keyID.String()+
			" is "+out.Status.String()+", cannot be spent", nil)
	}

	log.Debugf("Marking output %v spent", keyID)

	out.Status = StatusSpent
	return putRawOutput(ns, keyOutput(keyID), valueOutput(out))
}

// ApplyConfirm marks an unconfirmed output as confirmed at the given
// height and position.
func (s *Store) ApplyConfirm(ns walletdb.ReadWriteBucket,
	keyID keychain.Identifier, height, mmrIndex uint64) error {

	out, err := fetchOutput(ns, keyID)
	if err != nil {
		return err
	}
	if out.Status != StatusUnconfirmed {
		return storeError(ErrInvalidTransition, "output "+keyID.String()+
			" is "+out.Status.String()+", not Unconfirmed", nil)
	}

	log.Debugf("Marking unconfirmed output %v confirmed at height %d",
		keyID, height)

	out.Status = StatusUnspent
	out.Height = height
	out.MMRIndex = mmrIndex
	return putRawOutput(ns, keyOutput(keyID), valueOutput(out))
}

// LockOutputs reserves a set of unspent outputs for the transaction
// identified by txID.  The outputs are validated before any of them is
// modified, so either all outputs lock or none do.
func (s *Store) LockOutputs(ns walletdb.ReadWriteBucket, txID uint32,
	keyIDs []keychain.Identifier) error {

	for _, keyID := range keyIDs {
		out, err := fetchOutput(ns, keyID)
		if err != nil {
			return err
		}
		if out.Status != StatusUnspent {
			return storeError(ErrAlreadyLocked, "output "+
				keyID.String()+" is "+out.Status.String()+
				", not Unspent", nil)
		}
	}
	for _, keyID := range keyIDs {
		if err := s.ApplyLock(ns, keyID, txID); err != nil {
			return err
		}
	}
	return nil
}

// NextTxID allocates the next transaction log sequence number.
func (s *Store) NextTxID(ns walletdb.ReadWriteBucket) (uint32, error) {
	return nextTxID(ns)
}

// NextChild allocates the next derivation index for a wallet output.
func (s *Store) NextChild(ns walletdb.ReadWriteBucket) (uint32, error) {
	return nextChild(ns)
}

// PeekNextChild returns the derivation index NextChild will allocate
// next, without allocating it.
func (s *Store) PeekNextChild(ns walletdb.ReadBucket) uint32 {
	return peekNextChild(ns)
}

// SetNextChild forces the derivation counter to at least index.  Used
// by reconciliation so restored wallets do not reuse derivation paths.
func (s *Store) SetNextChild(ns walletdb.ReadWriteBucket, index uint32) error {
	if peekNextChild(ns) >= index {
		return nil
	}
	return putNextChild(ns, index)
}

// LastConfirmedHeight returns the chain height the store was most
// recently reconciled against, or zero if it never has been.
func (s *Store) LastConfirmedHeight(ns walletdb.ReadBucket) uint64 {
	return fetchLastConfirmedHeight(ns)
}

// PutLastConfirmedHeight records the chain height of a completed
// reconciliation pass.
func (s *Store) PutLastConfirmedHeight(ns walletdb.ReadWriteBucket,
	height uint64) error {

	return putLastConfirmedHeight(ns, height)
}

// PutTxLogEntry inserts or replaces a transaction log entry.
func (s *Store) PutTxLogEntry(ns walletdb.ReadWriteBucket,
	entry *TxLogEntry) error {

	return putRawTxLogEntry(ns, keyTxLogEntry(entry.ID), valueTxLogEntry(entry))
}

// FetchTxLogEntry returns the transaction log entry with the given id.
func (s *Store) FetchTxLogEntry(ns walletdb.ReadBucket, id uint32) (
	*TxLogEntry, error) {

	return fetchTxLogEntry(ns, id)
}

// NewTxLogEntry allocates an id and creation timestamp for a new
// transaction log entry of the given type.  The entry is not stored
// until PutTxLogEntry.
func (s *Store) NewTxLogEntry(ns walletdb.ReadWriteBucket, txType TxType) (
	*TxLogEntry, error) {

	id, err := nextTxID(ns)
	if err != nil {
		return nil, err
	}
	return &TxLogEntry{
		ID:           id,
		Type:         txType,
		CreationTime: s.clock.Now(),
	}, nil
}

// ConfirmTxLogEntry marks the entry confirmed at the current time.
func (s *Store) ConfirmTxLogEntry(ns walletdb.ReadWriteBucket,
	entry *TxLogEntry) error {

	now := s.clock.Now()
	entry.Confirmed = true
	entry.ConfirmationTime = &now
	return putRawTxLogEntry(ns, keyTxLogEntry(entry.ID), valueTxLogEntry(entry))
}

// CancelTx cancels the transaction log entry with the given id.  Locked
// inputs of the transaction return to the unspent pool and unconfirmed
// outputs it would have created are removed.  Cancelling an entry that
// is already cancelled is a no-op.  Cancelling a confirmed entry fails
// with ErrInvalidTransition.
func (s *Store) CancelTx(ns walletdb.ReadWriteBucket, id uint32) error {
	entry, err := fetchTxLogEntry(ns, id)
	if err != nil {
		return err
	}
	if entry.Type.Cancelled() {
		return nil
	}
	if entry.Confirmed {
		return storeError(ErrInvalidTransition, "transaction is "+
			"confirmed and cannot be cancelled", nil)
	}

	// Release or remove every output tied to this entry.
	var outs []*Output
	err = forEachOutput(ns, func(out *Output) error {
		if out.TxLogID != nil && *out.TxLogID == id {
			outs = append(outs, out)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debugf("Cancelling transaction %d, releasing %d associated outputs",
		id, len(outs))

	for _, out := range outs {
		switch out.Status {
		case StatusLocked:
			out.Status = StatusUnspent
			err = putRawOutput(ns, keyOutput(out.KeyID), valueOutput(out))
		case StatusUnconfirmed:
			err = deleteRawOutput(ns, keyOutput(out.KeyID))
		default:
			// Confirmed outputs of a cancelled entry stay as they
			// are; the chain has the final word.
		}
		if err != nil {
			return err
		}
	}

	switch entry.Type {
	case TxSent:
		entry.Type = TxSentCancelled
	case TxReceived:
		entry.Type = TxReceivedCancelled
	default:
		return storeError(ErrInvalidTransition, "entry type "+
			entry.Type.String()+" cannot be cancelled", nil)
	}
	if err := putRawTxLogEntry(ns, keyTxLogEntry(id),
		valueTxLogEntry(entry)); err != nil {

		return err
	}

	// The slate's secret context and any stored transaction are no
	// longer needed.
	if entry.SlateID != nil {
		if err := deleteRawContext(ns, keyContext(*entry.SlateID)); err != nil {
			return err
		}
		if err := deleteRawStoredTx(ns, keyStoredTx(*entry.SlateID)); err != nil {
			return err
		}
	}
	return nil
}

// PutContext stores a slate's secret negotiation context.
func (s *Store) PutContext(ns walletdb.ReadWriteBucket, ctx *Context) error {
	return putRawContext(ns, keyContext(ctx.SlateID), valueContext(ctx))
}

// FetchContext returns the secret negotiation context for a slate.
func (s *Store) FetchContext(ns walletdb.ReadBucket, slateID uuid.UUID) (
	*Context, error) {

	return fetchContext(ns, slateID)
}

// DeleteContext removes a slate's secret negotiation context.  Deleting
// a missing context is not an error, so finalize and cancel paths can
// both call it unconditionally.
func (s *Store) DeleteContext(ns walletdb.ReadWriteBucket,
	slateID uuid.UUID) error {

	return deleteRawContext(ns, keyContext(slateID))
}

// PutStoredTx retains the serialized finalized transaction for a slate
// so it can be rebroadcast later.
func (s *Store) PutStoredTx(ns walletdb.ReadWriteBucket, slateID uuid.UUID,
	tx []byte) error {

	return putRawStoredTx(ns, keyStoredTx(slateID), tx)
}

// FetchStoredTx returns the serialized finalized transaction stored for
// a slate.
func (s *Store) FetchStoredTx(ns walletdb.ReadBucket, slateID uuid.UUID) (
	[]byte, error) {

	v := existsRawStoredTx(ns, keyStoredTx(slateID))
	if v == nil {
		return nil, storeError(ErrNoExists, "no stored transaction for "+
			"slate "+slateID.String(), nil)
	}
	tx := make([]byte, len(v))
	copy(tx, v)
	return tx, nil
}
