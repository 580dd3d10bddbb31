// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtxmgr

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/walletdb"
)

// Naming
//
// The following variables are commonly used in this file and given
// reserved names:
//
//   ns: The namespace bucket for this package
//   b:  The primary bucket being operated on
//   k:  A single bucket key
//   v:  A single bucket value
//   c:  A bucket cursor
//
// Functions use the naming scheme `Op[Raw]Type[Field]`, which performs the
// operation `Op` on the type `Type`, optionally dealing with raw keys and
// values if `Raw` is used.  The following operations are used:
//
//   key:     return a db key for some data
//   value:   return a db value for some data
//   put:     insert or replace a value into a bucket
//   fetch:   read and return a value
//   exists:  return the raw (nil if not found) value for some data
//   delete:  remove a k/v pair

// Big endian is the preferred byte order, due to cursor scans over integer
// keys iterating in order.
var byteOrder = binary.BigEndian

// Database versions.  Versions start at 1 and increment for each database
// change.
const (
	// LatestVersion is the most recent store version.
	LatestVersion = 1
)

// Bucket names
var (
	bucketOutputs   = []byte("o")
	bucketTxLog     = []byte("t")
	bucketContexts  = []byte("c")
	bucketStoredTxs = []byte("s")
)

// Root (namespace) bucket keys
var (
	rootCreateDate    = []byte("date")
	rootVersion       = []byte("vers")
	rootNextTxID      = []byte("nexttxid")
	rootNextChild     = []byte("nextchild")
	rootLastConfirmed = []byte("lastconf")
)

// createStore creates the buckets and metadata for a new store within
// the namespace.
func createStore(ns walletdb.ReadWriteBucket) error {
	if ns.Get(rootVersion) != nil {
		str := "store already exists"
		return storeError(ErrDatabase, str, nil)
	}

	v := make([]byte, 4)
	byteOrder.PutUint32(v, LatestVersion)
	if err := ns.Put(rootVersion, v); err != nil {
		str := "failed to store latest database version"
		return storeError(ErrDatabase, str, err)
	}

	v = make([]byte, 8)
	byteOrder.PutUint64(v, uint64(time.Now().Unix()))
	if err := ns.Put(rootCreateDate, v); err != nil {
		str := "failed to store database creation time"
		return storeError(ErrDatabase, str, err)
	}

	for _, bucket := range [][]byte{
		bucketOutputs, bucketTxLog, bucketContexts, bucketStoredTxs,
	} {
		if _, err := ns.CreateBucket(bucket); err != nil {
			str := fmt.Sprintf("failed to create bucket %s", bucket)
			return storeError(ErrDatabase, str, err)
		}
	}
	return nil
}

// checkVersion verifies the namespace holds a store of a version this
// package can operate on.
func checkVersion(ns walletdb.ReadBucket) error {
	v := ns.Get(rootVersion)
	if len(v) != 4 {
		str := "version: short read (expected 4 bytes)"
		return storeError(ErrData, str, nil)
	}
	version := byteOrder.Uint32(v)
	switch {
	case version < LatestVersion:
		str := fmt.Sprintf("database upgrade required from version %d "+
			"to %d", version, LatestVersion)
		return storeError(ErrNeedsUpgrade, str, nil)
	case version > LatestVersion:
		str := fmt.Sprintf("unknown database version %d", version)
		return storeError(ErrUnknownVersion, str, nil)
	}
	return nil
}

// The next tx id and next child k/v pairs are uint32 counters, starting
// at zero, incremented after each allocation.

func nextCounter(ns walletdb.ReadWriteBucket, k []byte) (uint32, error) {
	var next uint32
	if v := ns.Get(k); v != nil {
		if len(v) != 4 {
			str := fmt.Sprintf("%s: short read (expected 4 bytes, "+
				"read %d)", k, len(v))
			return 0, storeError(ErrData, str, nil)
		}
		next = byteOrder.Uint32(v)
	}
	v := make([]byte, 4)
	byteOrder.PutUint32(v, next+1)
	if err := ns.Put(k, v); err != nil {
		str := fmt.Sprintf("failed to put counter %s", k)
		return 0, storeError(ErrDatabase, str, err)
	}
	return next, nil
}

func nextTxID(ns walletdb.ReadWriteBucket) (uint32, error) {
	return nextCounter(ns, rootNextTxID)
}

func nextChild(ns walletdb.ReadWriteBucket) (uint32, error) {
	return nextCounter(ns, rootNextChild)
}

func peekNextChild(ns walletdb.ReadBucket) uint32 {
	v := ns.Get(rootNextChild)
	if len(v) != 4 {
		return 0
	}
	return byteOrder.Uint32(v)
}

func putNextChild(ns walletdb.ReadWriteBucket, index uint32) error {
	v := make([]byte, 4)
	byteOrder.PutUint32(v, index)
	if err := ns.Put(rootNextChild, v); err != nil {
		str := "failed to put derivation counter"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

// The last confirmed height records the chain height the store was most
// recently reconciled against.  Zero when the store has never synced.

func fetchLastConfirmedHeight(ns walletdb.ReadBucket) uint64 {
	v := ns.Get(rootLastConfirmed)
	if len(v) != 8 {
		return 0
	}
	return byteOrder.Uint64(v)
}

func putLastConfirmedHeight(ns walletdb.ReadWriteBucket, height uint64) error {
	v := make([]byte, 8)
	byteOrder.PutUint64(v, height)
	if err := ns.Put(rootLastConfirmed, v); err != nil {
		str := "failed to put last confirmed height"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

// Output records are keyed by their derivation identifier and
// serialized as:
//
//   [0:4]   Derivation child index (4 bytes)
//   [4:37]  Commitment (33 bytes)
//   [37:45] MMR index (8 bytes)
//   [45:53] Value (8 bytes)
//   [53:54] Status (1 byte)
//   [54:62] Height (8 bytes)
//   [62:70] Lock height (8 bytes)
//   [70:71] Flags (1 byte)
//             0x01: coinbase
//             0x02: tx log id present
//   [71:75] Tx log id (4 bytes)

const outputValueSize = 75

func keyOutput(keyID keychain.Identifier) []byte {
	return keyID.Bytes()
}

func valueOutput(out *Output) []byte {
	v := make([]byte, outputValueSize)
	byteOrder.PutUint32(v[0:4], out.NChild)
	copy(v[4:37], out.Commit[:])
	byteOrder.PutUint64(v[37:45], out.MMRIndex)
	byteOrder.PutUint64(v[45:53], uint64(out.Value))
	v[53] = byte(out.Status)
	byteOrder.PutUint64(v[54:62], out.Height)
	byteOrder.PutUint64(v[62:70], out.LockHeight)
	if out.IsCoinbase {
		v[70] |= 0x01
	}
	if out.TxLogID != nil {
		v[70] |= 0x02
		byteOrder.PutUint32(v[71:75], *out.TxLogID)
	}
	return v
}

func readRawOutput(k, v []byte, out *Output) error {
	if len(k) != keychain.IdentifierSize {
		str := fmt.Sprintf("output: bad key length %d", len(k))
		return storeError(ErrData, str, nil)
	}
	if len(v) != outputValueSize {
		str := fmt.Sprintf("output: short read (expected %d bytes, "+
			"read %d)", outputValueSize, len(v))
		return storeError(ErrData, str, nil)
	}
	keyID, err := keychain.NewIdentifierFromBytes(k)
	if err != nil {
		return storeError(ErrData, "output: bad key id", err)
	}
	out.KeyID = keyID
	out.NChild = byteOrder.Uint32(v[0:4])
	copy(out.Commit[:], v[4:37])
	out.MMRIndex = byteOrder.Uint64(v[37:45])
	out.Value = mwutil.Amount(byteOrder.Uint64(v[45:53]))
	out.Status = OutputStatus(v[53])
	out.Height = byteOrder.Uint64(v[54:62])
	out.LockHeight = byteOrder.Uint64(v[62:70])
	out.IsCoinbase = v[70]&0x01 != 0
	out.TxLogID = nil
	if v[70]&0x02 != 0 {
		id := byteOrder.Uint32(v[71:75])
		out.TxLogID = &id
	}
	return nil
}

func existsRawOutput(ns walletdb.ReadBucket, k []byte) (v []byte) {
	return ns.NestedReadBucket(bucketOutputs).Get(k)
}

func putRawOutput(ns walletdb.ReadWriteBucket, k, v []byte) error {
	err := ns.NestedReadWriteBucket(bucketOutputs).Put(k, v)
	if err != nil {
		str := "failed to put output"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func deleteRawOutput(ns walletdb.ReadWriteBucket, k []byte) error {
	err := ns.NestedReadWriteBucket(bucketOutputs).Delete(k)
	if err != nil {
		str := "failed to delete output"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func fetchOutput(ns walletdb.ReadBucket, keyID keychain.Identifier) (
	*Output, error) {

	k := keyOutput(keyID)
	v := existsRawOutput(ns, k)
	if v == nil {
		str := "no output for key id " + keyID.String()
		return nil, storeError(ErrNoExists, str, nil)
	}
	out := new(Output)
	if err := readRawOutput(k, v, out); err != nil {
		return nil, err
	}
	return out, nil
}

func forEachOutput(ns walletdb.ReadBucket, fn func(*Output) error) error {
	return ns.NestedReadBucket(bucketOutputs).ForEach(func(k, v []byte) error {
		out := new(Output)
		if err := readRawOutput(k, v, out); err != nil {
			return err
		}
		return fn(out)
	})
}

// Transaction log entries are keyed by their uint32 id so cursor scans
// iterate entries in creation order.  The value is serialized as:
//
//   [0:1]     Entry type (1 byte)
//   [1:2]     Flags (1 byte)
//               0x01: slate id present
//               0x02: confirmed
//               0x04: kernel excess present
//               0x08: stored tx present
//   [2:18]    Slate id (16 bytes)
//   [18:26]   Creation unix time (8 bytes)
//   [26:34]   Confirmation unix time (8 bytes)
//   [34:38]   Input count (4 bytes)
//   [38:42]   Output count (4 bytes)
//   [42:50]   Amount credited (8 bytes)
//   [50:58]   Amount debited (8 bytes)
//   [58:66]   Fee (8 bytes)
//   [66:74]   TTL cutoff height (8 bytes)
//   [74:107]  Kernel excess (33 bytes)
//   [107:115] Kernel lookup min height (8 bytes)

const txLogEntryValueSize = 115

func keyTxLogEntry(id uint32) []byte {
	k := make([]byte, 4)
	byteOrder.PutUint32(k, id)
	return k
}

func valueTxLogEntry(entry *TxLogEntry) []byte {
	v := make([]byte, txLogEntryValueSize)
	v[0] = byte(entry.Type)
	if entry.SlateID != nil {
		v[1] |= 0x01
		copy(v[2:18], entry.SlateID[:])
	}
	if entry.Confirmed {
		v[1] |= 0x02
	}
	byteOrder.PutUint64(v[18:26], uint64(entry.CreationTime.Unix()))
	if entry.ConfirmationTime != nil {
		byteOrder.PutUint64(v[26:34], uint64(entry.ConfirmationTime.Unix()))
	}
	byteOrder.PutUint32(v[34:38], entry.NumInputs)
	byteOrder.PutUint32(v[38:42], entry.NumOutputs)
	byteOrder.PutUint64(v[42:50], uint64(entry.AmountCredited))
	byteOrder.PutUint64(v[50:58], uint64(entry.AmountDebited))
	byteOrder.PutUint64(v[58:66], uint64(entry.Fee))
	byteOrder.PutUint64(v[66:74], entry.TTLCutoffHeight)
	if entry.KernelExcess != nil {
		v[1] |= 0x04
		copy(v[74:107], entry.KernelExcess[:])
	}
	byteOrder.PutUint64(v[107:115], entry.KernelLookupMinHeight)
	if entry.StoredTx {
		v[1] |= 0x08
	}
	return v
}

func readRawTxLogEntry(k, v []byte, entry *TxLogEntry) error {
	if len(k) != 4 {
		str := fmt.Sprintf("tx log entry: bad key length %d", len(k))
		return storeError(ErrData, str, nil)
	}
	if len(v) != txLogEntryValueSize {
		str := fmt.Sprintf("tx log entry: short read (expected %d "+
			"bytes, read %d)", txLogEntryValueSize, len(v))
		return storeError(ErrData, str, nil)
	}
	entry.ID = byteOrder.Uint32(k)
	entry.Type = TxType(v[0])
	flags := v[1]
	entry.SlateID = nil
	if flags&0x01 != 0 {
		id := uuid.UUID{}
		copy(id[:], v[2:18])
		entry.SlateID = &id
	}
	entry.Confirmed = flags&0x02 != 0
	entry.CreationTime = time.Unix(int64(byteOrder.Uint64(v[18:26])), 0)
	entry.ConfirmationTime = nil
	if entry.Confirmed {
		t := time.Unix(int64(byteOrder.Uint64(v[26:34])), 0)
		entry.ConfirmationTime = &t
	}
	entry.NumInputs = byteOrder.Uint32(v[34:38])
	entry.NumOutputs = byteOrder.Uint32(v[38:42])
	entry.AmountCredited = mwutil.Amount(byteOrder.Uint64(v[42:50]))
	entry.AmountDebited = mwutil.Amount(byteOrder.Uint64(v[50:58]))
	entry.Fee = mwutil.Amount(byteOrder.Uint64(v[58:66]))
	entry.TTLCutoffHeight = byteOrder.Uint64(v[66:74])
	entry.KernelExcess = nil
	if flags&0x04 != 0 {
		excess := commit.Commitment{}
		copy(excess[:], v[74:107])
		entry.KernelExcess = &excess
	}
	entry.KernelLookupMinHeight = byteOrder.Uint64(v[107:115])
	entry.StoredTx = flags&0x08 != 0
	return nil
}

func existsRawTxLogEntry(ns walletdb.ReadBucket, k []byte) (v []byte) {
	return ns.NestedReadBucket(bucketTxLog).Get(k)
}

func putRawTxLogEntry(ns walletdb.ReadWriteBucket, k, v []byte) error {
	err := ns.NestedReadWriteBucket(bucketTxLog).Put(k, v)
	if err != nil {
		str := "failed to put tx log entry"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func fetchTxLogEntry(ns walletdb.ReadBucket, id uint32) (*TxLogEntry, error) {
	k := keyTxLogEntry(id)
	v := existsRawTxLogEntry(ns, k)
	if v == nil {
		str := fmt.Sprintf("no tx log entry with id %d", id)
		return nil, storeError(ErrNoExists, str, nil)
	}
	entry := new(TxLogEntry)
	if err := readRawTxLogEntry(k, v, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func forEachTxLogEntry(ns walletdb.ReadBucket,
	fn func(*TxLogEntry) error) error {

	return ns.NestedReadBucket(bucketTxLog).ForEach(func(k, v []byte) error {
		entry := new(TxLogEntry)
		if err := readRawTxLogEntry(k, v, entry); err != nil {
			return err
		}
		return fn(entry)
	})
}

// Slate contexts are keyed by the slate's 16 byte uuid and serialized
// as:
//
//   [0:8]   Participant id (8 bytes)
//   [8:40]  Secret key (32 bytes)
//   [40:72] Secret nonce (32 bytes)
//   [72:80] Amount (8 bytes)
//   [80:88] Fee (8 bytes)
//   [88:92] Output count (4 bytes)
//   [92:]   For each output:
//             Identifier (17 bytes)
//             Value (8 bytes)
//           Input id count (4 bytes)
//           For each input id:
//             Identifier (17 bytes)

func keyContext(slateID uuid.UUID) []byte {
	k := make([]byte, 16)
	copy(k, slateID[:])
	return k
}

func valueContext(ctx *Context) []byte {
	const outputSize = keychain.IdentifierSize + 8
	sz := 92 + len(ctx.Outputs)*outputSize + 4 +
		len(ctx.InputIDs)*keychain.IdentifierSize
	v := make([]byte, sz)
	byteOrder.PutUint64(v[0:8], ctx.ParticipantID)
	copy(v[8:40], ctx.SecKey[:])
	copy(v[40:72], ctx.SecNonce[:])
	byteOrder.PutUint64(v[72:80], uint64(ctx.Amount))
	byteOrder.PutUint64(v[80:88], uint64(ctx.Fee))
	byteOrder.PutUint32(v[88:92], uint32(len(ctx.Outputs)))
	off := 92
	for _, out := range ctx.Outputs {
		copy(v[off:off+keychain.IdentifierSize], out.KeyID.Bytes())
		off += keychain.IdentifierSize
		byteOrder.PutUint64(v[off:off+8], uint64(out.Value))
		off += 8
	}
	byteOrder.PutUint32(v[off:off+4], uint32(len(ctx.InputIDs)))
	off += 4
	for _, id := range ctx.InputIDs {
		copy(v[off:off+keychain.IdentifierSize], id.Bytes())
		off += keychain.IdentifierSize
	}
	return v
}

func readRawContext(k, v []byte, ctx *Context) error {
	if len(k) != 16 {
		str := fmt.Sprintf("context: bad key length %d", len(k))
		return storeError(ErrData, str, nil)
	}
	if len(v) < 96 {
		str := fmt.Sprintf("context: short read (%d bytes)", len(v))
		return storeError(ErrData, str, nil)
	}
	copy(ctx.SlateID[:], k)
	ctx.ParticipantID = byteOrder.Uint64(v[0:8])
	copy(ctx.SecKey[:], v[8:40])
	copy(ctx.SecNonce[:], v[40:72])
	ctx.Amount = mwutil.Amount(byteOrder.Uint64(v[72:80]))
	ctx.Fee = mwutil.Amount(byteOrder.Uint64(v[80:88]))

	readID := func(off int) (keychain.Identifier, int, error) {
		if off+keychain.IdentifierSize > len(v) {
			return keychain.Identifier{}, 0, storeError(ErrData,
				"context: truncated id list", nil)
		}
		id, err := keychain.NewIdentifierFromBytes(
			v[off : off+keychain.IdentifierSize])
		if err != nil {
			return keychain.Identifier{}, 0, storeError(ErrData,
				"context: bad key id", err)
		}
		return id, off + keychain.IdentifierSize, nil
	}

	nOut := byteOrder.Uint32(v[88:92])
	outs := make([]ContextOutput, 0, nOut)
	off := 92
	for i := uint32(0); i < nOut; i++ {
		id, next, err := readID(off)
		if err != nil {
			return err
		}
		if next+8 > len(v) {
			return storeError(ErrData,
				"context: truncated output list", nil)
		}
		outs = append(outs, ContextOutput{
			KeyID: id,
			Value: mwutil.Amount(byteOrder.Uint64(v[next : next+8])),
		})
		off = next + 8
	}
	if off+4 > len(v) {
		return storeError(ErrData, "context: truncated id list", nil)
	}
	nIn := byteOrder.Uint32(v[off : off+4])
	off += 4
	inIDs := make([]keychain.Identifier, 0, nIn)
	for i := uint32(0); i < nIn; i++ {
		id, next, err := readID(off)
		if err != nil {
			return err
		}
		inIDs = append(inIDs, id)
		off = next
	}
	ctx.Outputs = outs
	ctx.InputIDs = inIDs
	return nil
}

func existsRawContext(ns walletdb.ReadBucket, k []byte) (v []byte) {
	return ns.NestedReadBucket(bucketContexts).Get(k)
}

func putRawContext(ns walletdb.ReadWriteBucket, k, v []byte) error {
	err := ns.NestedReadWriteBucket(bucketContexts).Put(k, v)
	if err != nil {
		str := "failed to put slate context"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func deleteRawContext(ns walletdb.ReadWriteBucket, k []byte) error {
	err := ns.NestedReadWriteBucket(bucketContexts).Delete(k)
	if err != nil {
		str := "failed to delete slate context"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func fetchContext(ns walletdb.ReadBucket, slateID uuid.UUID) (*Context, error) {
	k := keyContext(slateID)
	v := existsRawContext(ns, k)
	if v == nil {
		str := "no context for slate " + slateID.String()
		return nil, storeError(ErrNoExists, str, nil)
	}
	ctx := new(Context)
	if err := readRawContext(k, v, ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// Stored transactions are keyed by the slate's 16 byte uuid; the value
// is the serialized transaction as produced by the wire package.

func keyStoredTx(slateID uuid.UUID) []byte {
	k := make([]byte, 16)
	copy(k, slateID[:])
	return k
}

func existsRawStoredTx(ns walletdb.ReadBucket, k []byte) (v []byte) {
	return ns.NestedReadBucket(bucketStoredTxs).Get(k)
}

func putRawStoredTx(ns walletdb.ReadWriteBucket, k, v []byte) error {
	err := ns.NestedReadWriteBucket(bucketStoredTxs).Put(k, v)
	if err != nil {
		str := "failed to put stored transaction"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func deleteRawStoredTx(ns walletdb.ReadWriteBucket, k []byte) error {
	err := ns.NestedReadWriteBucket(bucketStoredTxs).Delete(k)
	if err != nil {
		str := "failed to delete stored transaction"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}
