// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtxmgr

import (
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/netparams"
	"github.com/mwsuite/mwwallet/walletdb"
	_ "github.com/mwsuite/mwwallet/walletdb/bdb"
)

var namespaceKey = []byte("mwtxmgr")

// testStore creates a store backed by a fresh database with a fixed
// clock.
func testStore(t *testing.T) (*Store, walletdb.DB) {
	t.Helper()

	db, err := walletdb.Create("bdb", filepath.Join(t.TempDir(), "db"),
		true, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		ns, err := tx.CreateTopLevelBucket(namespaceKey)
		if err != nil {
			return err
		}
		return Create(ns)
	})
	require.NoError(t, err)

	var s *Store
	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		var err error
		s, err = Open(tx.ReadBucket(namespaceKey), &netparams.SimNetParams)
		return err
	})
	require.NoError(t, err)

	s.clock = clock.NewTestClock(time.Unix(1600000000, 0))
	return s, db
}

func update(t *testing.T, db walletdb.DB,
	fn func(ns walletdb.ReadWriteBucket) error) {

	t.Helper()
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		return fn(tx.ReadWriteBucket(namespaceKey))
	})
	require.NoError(t, err)
}

func view(t *testing.T, db walletdb.DB,
	fn func(ns walletdb.ReadBucket) error) {

	t.Helper()
	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		return fn(tx.ReadBucket(namespaceKey))
	})
	require.NoError(t, err)
}

// testOutput builds an output record with a real commitment so
// serialization covers the full commitment width.
func testOutput(t *testing.T, value mwutil.Amount, child uint32) *Output {
	t.Helper()

	var blind [32]byte
	binary.BigEndian.PutUint32(blind[28:], child+1)
	sk, err := commit.SecretKeyFromBytes(blind[:])
	require.NoError(t, err)
	c, err := commit.Commit(uint64(value), sk)
	require.NoError(t, err)

	return &Output{
		KeyID:  keychain.NewIdentifier(0, 0, child),
		NChild: child,
		Commit: c,
		Value:  value,
		Status: StatusUnspent,
		Height: 1,
	}
}

func TestOutputSerialization(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	txID := uint32(7)
	want := testOutput(t, 600000000, 3)
	want.MMRIndex = 42
	want.LockHeight = 99
	want.IsCoinbase = true
	want.TxLogID = &txID

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		return s.PutOutput(ns, want)
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		got, err := s.FetchOutput(ns, want.KeyID)
		require.NoError(t, err)
		require.Equal(t, want, got, "reserialized output: %s",
			spew.Sdump(got))
		return nil
	})
}

func TestOutputLifecycle(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	out := testOutput(t, 1000, 0)

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		require.NoError(t, s.ReceiveOutput(ns, out))

		got, err := s.FetchOutput(ns, out.KeyID)
		require.NoError(t, err)
		require.Equal(t, StatusUnconfirmed, got.Status)

		// Unconfirmed outputs cannot be locked or spent.
		err = s.ApplyLock(ns, out.KeyID, 0)
		require.True(t, IsCode(err, ErrAlreadyLocked))
		err = s.ApplySpend(ns, out.KeyID)
		require.True(t, IsCode(err, ErrInvalidTransition))

		require.NoError(t, s.ApplyConfirm(ns, out.KeyID, 10, 77))
		got, err = s.FetchOutput(ns, out.KeyID)
		require.NoError(t, err)
		require.Equal(t, StatusUnspent, got.Status)
		require.Equal(t, uint64(10), got.Height)
		require.Equal(t, uint64(77), got.MMRIndex)

		// Confirming twice is rejected.
		err = s.ApplyConfirm(ns, out.KeyID, 11, 78)
		require.True(t, IsCode(err, ErrInvalidTransition))

		require.NoError(t, s.ApplyLock(ns, out.KeyID, 3))
		got, err = s.FetchOutput(ns, out.KeyID)
		require.NoError(t, err)
		require.Equal(t, StatusLocked, got.Status)
		require.NotNil(t, got.TxLogID)
		require.Equal(t, uint32(3), *got.TxLogID)

		// Locking twice is rejected.
		err = s.ApplyLock(ns, out.KeyID, 4)
		require.True(t, IsCode(err, ErrAlreadyLocked))

		require.NoError(t, s.ApplySpend(ns, out.KeyID))
		got, err = s.FetchOutput(ns, out.KeyID)
		require.NoError(t, err)
		require.Equal(t, StatusSpent, got.Status)

		// Spent is terminal.
		err = s.ApplyUnlock(ns, out.KeyID)
		require.True(t, IsCode(err, ErrInvalidTransition))
		return nil
	})
}

func TestLockOutputsExclusive(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	out1 := testOutput(t, 1000, 0)
	out2 := testOutput(t, 2000, 1)
	out3 := testOutput(t, 3000, 2)

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		for _, out := range []*Output{out1, out2, out3} {
			require.NoError(t, s.PutOutput(ns, out))
		}

		// First negotiation reserves outputs 1 and 2.
		err := s.LockOutputs(ns, 0, []keychain.Identifier{
			out1.KeyID, out2.KeyID,
		})
		require.NoError(t, err)

		// A second negotiation overlapping on output 2 must fail
		// without locking output 3.
		err = s.LockOutputs(ns, 1, []keychain.Identifier{
			out3.KeyID, out2.KeyID,
		})
		require.True(t, IsCode(err, ErrAlreadyLocked))

		got, err := s.FetchOutput(ns, out3.KeyID)
		require.NoError(t, err)
		require.Equal(t, StatusUnspent, got.Status)
		return nil
	})
}

func TestCancelTx(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	slateID := uuid.New()
	input := testOutput(t, 10000, 0)
	change := testOutput(t, 4000, 1)

	var txID uint32
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		require.NoError(t, s.PutOutput(ns, input))

		entry, err := s.NewTxLogEntry(ns, TxSent)
		require.NoError(t, err)
		txID = entry.ID
		entry.SlateID = &slateID
		entry.AmountDebited = 10000
		entry.AmountCredited = 4000
		require.NoError(t, s.PutTxLogEntry(ns, entry))

		require.NoError(t, s.LockOutputs(ns, txID,
			[]keychain.Identifier{input.KeyID}))

		change.TxLogID = &txID
		require.NoError(t, s.ReceiveOutput(ns, change))

		require.NoError(t, s.PutContext(ns, &Context{
			SlateID:       slateID,
			ParticipantID: 0,
			Amount:        6000,
			Fee:           100,
			InputIDs:      []keychain.Identifier{input.KeyID},
			Outputs: []ContextOutput{
				{KeyID: change.KeyID, Value: change.Value},
			},
		}))
		require.NoError(t, s.PutStoredTx(ns, slateID, []byte(`{"tx":1}`)))
		return nil
	})

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		require.NoError(t, s.CancelTx(ns, txID))

		// The locked input is released and the change output removed.
		got, err := s.FetchOutput(ns, input.KeyID)
		require.NoError(t, err)
		require.Equal(t, StatusUnspent, got.Status)

		_, err = s.FetchOutput(ns, change.KeyID)
		require.True(t, IsNoExists(err))

		entry, err := s.FetchTxLogEntry(ns, txID)
		require.NoError(t, err)
		require.Equal(t, TxSentCancelled, entry.Type)

		_, err = s.FetchContext(ns, slateID)
		require.True(t, IsNoExists(err))
		_, err = s.FetchStoredTx(ns, slateID)
		require.True(t, IsNoExists(err))

		// Cancelling again is a no-op.
		require.NoError(t, s.CancelTx(ns, txID))
		got, err = s.FetchOutput(ns, input.KeyID)
		require.NoError(t, err)
		require.Equal(t, StatusUnspent, got.Status)
		return nil
	})
}

func TestCancelConfirmedTx(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		entry, err := s.NewTxLogEntry(ns, TxReceived)
		require.NoError(t, err)
		require.NoError(t, s.ConfirmTxLogEntry(ns, entry))

		err = s.CancelTx(ns, entry.ID)
		require.True(t, IsCode(err, ErrInvalidTransition))
		return nil
	})
}

func TestTxLogEntryTTLExpired(t *testing.T) {
	t.Parallel()

	entry := &TxLogEntry{TTLCutoffHeight: 100}
	require.False(t, entry.TTLExpired(99))
	require.False(t, entry.TTLExpired(100))
	require.True(t, entry.TTLExpired(101))

	// No cutoff means the entry never expires.
	entry.TTLCutoffHeight = 0
	require.False(t, entry.TTLExpired(1 << 40))

	// Confirmed entries are no longer cancellable, expired or not.
	entry.TTLCutoffHeight = 100
	entry.Confirmed = true
	require.False(t, entry.TTLExpired(101))
}

func TestTxLogEntrySerialization(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	slateID := uuid.New()
	excess, err := commit.CommitValue(12345)
	require.NoError(t, err)

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		entry, err := s.NewTxLogEntry(ns, TxSent)
		require.NoError(t, err)
		entry.SlateID = &slateID
		entry.NumInputs = 2
		entry.NumOutputs = 1
		entry.AmountCredited = 4000
		entry.AmountDebited = 10000
		entry.Fee = 700000
		entry.TTLCutoffHeight = 500
		entry.KernelExcess = &excess
		entry.KernelLookupMinHeight = 123
		entry.StoredTx = true
		require.NoError(t, s.PutTxLogEntry(ns, entry))

		got, err := s.FetchTxLogEntry(ns, entry.ID)
		require.NoError(t, err)
		require.Equal(t, entry, got, "reserialized entry: %s",
			spew.Sdump(got))

		require.NoError(t, s.ConfirmTxLogEntry(ns, got))
		confirmed, err := s.FetchTxLogEntry(ns, entry.ID)
		require.NoError(t, err)
		require.True(t, confirmed.Confirmed)
		require.NotNil(t, confirmed.ConfirmationTime)
		return nil
	})
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	slateID := uuid.New()

	sk, err := commit.NewSecretKey()
	require.NoError(t, err)
	nonce, err := commit.NewSecretKey()
	require.NoError(t, err)

	want := &Context{
		SlateID:       slateID,
		ParticipantID: 1,
		SecKey:        commit.BlindingFactorFromSecretKey(sk),
		SecNonce:      commit.BlindingFactorFromSecretKey(nonce),
		Amount:        600000000,
		Fee:           700000,
		Outputs: []ContextOutput{
			{KeyID: keychain.NewIdentifier(0, 0, 4), Value: 5299300000},
		},
		InputIDs: []keychain.Identifier{
			keychain.NewIdentifier(0, 0, 1),
			keychain.NewIdentifier(0, 0, 2),
		},
	}

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		return s.PutContext(ns, want)
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		got, err := s.FetchContext(ns, slateID)
		require.NoError(t, err)
		require.Equal(t, want, got)
		return nil
	})

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		require.NoError(t, s.DeleteContext(ns, slateID))
		_, err := s.FetchContext(ns, slateID)
		require.True(t, IsNoExists(err))

		// Deleting a missing context is not an error.
		return s.DeleteContext(ns, slateID)
	})
}

func TestCounters(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		for want := uint32(0); want < 3; want++ {
			id, err := s.NextTxID(ns)
			require.NoError(t, err)
			require.Equal(t, want, id)
		}

		require.Equal(t, uint32(0), s.PeekNextChild(ns))
		child, err := s.NextChild(ns)
		require.NoError(t, err)
		require.Equal(t, uint32(0), child)
		require.Equal(t, uint32(1), s.PeekNextChild(ns))

		// Restoring advances the counter forward only.
		require.NoError(t, s.SetNextChild(ns, 10))
		require.Equal(t, uint32(10), s.PeekNextChild(ns))
		require.NoError(t, s.SetNextChild(ns, 5))
		require.Equal(t, uint32(10), s.PeekNextChild(ns))
		return nil
	})
}

func TestOpenChecksVersion(t *testing.T) {
	t.Parallel()

	_, db := testStore(t)

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		v := make([]byte, 4)
		byteOrder.PutUint32(v, LatestVersion+1)
		return ns.Put(rootVersion, v)
	})

	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		_, err := Open(tx.ReadBucket(namespaceKey), &netparams.SimNetParams)
		return err
	})
	require.True(t, IsCode(err, ErrUnknownVersion))
}
