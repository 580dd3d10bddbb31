// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletdbtest provides exported tests that exercise the full
// walletdb interface so every driver can share one conformance suite.
package walletdbtest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mwsuite/mwwallet/walletdb"
)

// Tester is an interface used by the exported tests so they can run
// under testing.T without importing the testing package here.
type Tester interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Log(args ...interface{})
	Logf(format string, args ...interface{})
}

// testContext is used to store context information about a running test
// which is passed into helper functions.
type testContext struct {
	t         Tester
	db        walletdb.DB
	bucketKey []byte
}

// testGetValues checks that all of the provided key/value pairs can be
// retrieved from the bucket and have the expected values.  A nil
// expected value means the key must not exist.
func testGetValues(tc *testContext, bucket walletdb.ReadBucket,
	values map[string]string) bool {

	for k, v := range values {
		var expected []byte
		if v != "" {
			expected = []byte(v)
		}
		gotValue := bucket.Get([]byte(k))
		if !bytes.Equal(gotValue, expected) {
			tc.t.Errorf("Get: unexpected value for %q - got %q, want %q",
				k, gotValue, expected)
			return false
		}
	}
	return true
}

// testPutValues stores all of the provided key/value pairs in the
// bucket.
func testPutValues(tc *testContext, bucket walletdb.ReadWriteBucket,
	values map[string]string) bool {

	for k, v := range values {
		if err := bucket.Put([]byte(k), []byte(v)); err != nil {
			tc.t.Errorf("Put: unexpected error: %v", err)
			return false
		}
	}
	return true
}

// testDeleteValues removes all of the provided keys from the bucket.
func testDeleteValues(tc *testContext, bucket walletdb.ReadWriteBucket,
	values map[string]string) bool {

	for k := range values {
		if err := bucket.Delete([]byte(k)); err != nil {
			tc.t.Errorf("Delete: unexpected error: %v", err)
			return false
		}
	}
	return true
}

// testNestedBucket exercises creation, use, and removal of buckets
// nested below the passed bucket.
func testNestedBucket(tc *testContext, bucket walletdb.ReadWriteBucket) bool {
	nestedKey := []byte("nestedbucket")

	nested, err := bucket.CreateBucket(nestedKey)
	if err != nil {
		tc.t.Errorf("CreateBucket: unexpected error: %v", err)
		return false
	}

	// A second create of the same bucket must fail.
	if _, err := bucket.CreateBucket(nestedKey); !errors.Is(err,
		walletdb.ErrBucketExists) {

		tc.t.Errorf("CreateBucket: expected ErrBucketExists, got %v", err)
		return false
	}

	// CreateBucketIfNotExists must return the existing bucket.
	if _, err := bucket.CreateBucketIfNotExists(nestedKey); err != nil {
		tc.t.Errorf("CreateBucketIfNotExists: unexpected error: %v", err)
		return false
	}

	values := map[string]string{
		"nkey1": "nvalue1",
		"nkey2": "nvalue2",
	}
	if !testPutValues(tc, nested, values) {
		return false
	}
	if !testGetValues(tc, nested, values) {
		return false
	}

	// Keys in the nested bucket are invisible from the parent.
	if bucket.Get([]byte("nkey1")) != nil {
		tc.t.Errorf("Get: nested key visible from parent bucket")
		return false
	}

	// The nested bucket key must refuse Put and Delete from the
	// parent since that would clobber the bucket.
	if err := bucket.Put(nestedKey, []byte("x")); !errors.Is(err,
		walletdb.ErrIncompatibleValue) {

		tc.t.Errorf("Put over bucket: expected ErrIncompatibleValue, "+
			"got %v", err)
		return false
	}
	if err := bucket.Delete(nestedKey); !errors.Is(err,
		walletdb.ErrIncompatibleValue) {

		tc.t.Errorf("Delete of bucket: expected ErrIncompatibleValue, "+
			"got %v", err)
		return false
	}

	// The nested bucket must be reachable again and report a nil
	// value through ForEach on the parent.
	if bucket.NestedReadWriteBucket(nestedKey) == nil {
		tc.t.Errorf("NestedReadWriteBucket: bucket not found")
		return false
	}
	sawBucket := false
	err = bucket.ForEach(func(k, v []byte) error {
		if bytes.Equal(k, nestedKey) {
			sawBucket = true
			if v != nil {
				return fmt.Errorf("nested bucket reported with "+
					"value %q", v)
			}
		}
		return nil
	})
	if err != nil {
		tc.t.Errorf("ForEach: unexpected error: %v", err)
		return false
	}
	if !sawBucket {
		tc.t.Errorf("ForEach: nested bucket key not reported")
		return false
	}

	// Removing the nested bucket must take its keys with it.
	if err := bucket.DeleteNestedBucket(nestedKey); err != nil {
		tc.t.Errorf("DeleteNestedBucket: unexpected error: %v", err)
		return false
	}
	if bucket.NestedReadWriteBucket(nestedKey) != nil {
		tc.t.Errorf("NestedReadWriteBucket: deleted bucket still found")
		return false
	}
	if err := bucket.DeleteNestedBucket(nestedKey); !errors.Is(err,
		walletdb.ErrBucketNotFound) {

		tc.t.Errorf("DeleteNestedBucket: expected ErrBucketNotFound, "+
			"got %v", err)
		return false
	}

	return true
}

// testBucketInterface exercises the methods of the bucket interface
// against the passed bucket.
func testBucketInterface(tc *testContext, bucket walletdb.ReadWriteBucket) bool {
	values := map[string]string{
		"umtxkey1": "foo1",
		"umtxkey2": "foo2",
		"umtxkey3": "foo3",
	}
	if !testPutValues(tc, bucket, values) {
		return false
	}
	if !testGetValues(tc, bucket, values) {
		return false
	}

	// An empty key must be rejected.
	if err := bucket.Put(nil, []byte("x")); !errors.Is(err,
		walletdb.ErrKeyRequired) {

		tc.t.Errorf("Put with nil key: expected ErrKeyRequired, got %v",
			err)
		return false
	}

	// Iteration must visit every stored pair.
	keysFound := make(map[string]struct{}, len(values))
	err := bucket.ForEach(func(k, v []byte) error {
		ks := string(k)
		wantV, ok := values[ks]
		if !ok {
			return fmt.Errorf("ForEach: unexpected key %q", ks)
		}
		if !bytes.Equal(v, []byte(wantV)) {
			return fmt.Errorf("ForEach: unexpected value for key %q - "+
				"got %q, want %q", ks, v, wantV)
		}
		keysFound[ks] = struct{}{}
		return nil
	})
	if err != nil {
		tc.t.Errorf("%v", err)
		return false
	}
	if len(keysFound) != len(values) {
		tc.t.Errorf("ForEach: visited %d keys, want %d", len(keysFound),
			len(values))
		return false
	}

	if !testDeleteValues(tc, bucket, values) {
		return false
	}
	for k := range values {
		if bucket.Get([]byte(k)) != nil {
			tc.t.Errorf("Get: deleted key %q still present", k)
			return false
		}
	}

	return testNestedBucket(tc, bucket)
}

// testCursorInterface exercises forward and reverse iteration, seeking,
// and deletion through a cursor.
func testCursorInterface(tc *testContext, bucket walletdb.ReadWriteBucket) bool {
	// Keys deliberately inserted out of order.
	ordered := []struct{ k, v string }{
		{"ck1", "cv1"},
		{"ck2", "cv2"},
		{"ck3", "cv3"},
		{"ck4", "cv4"},
	}
	for _, i := range []int{2, 0, 3, 1} {
		if err := bucket.Put([]byte(ordered[i].k),
			[]byte(ordered[i].v)); err != nil {

			tc.t.Errorf("Put: unexpected error: %v", err)
			return false
		}
	}

	cursor := bucket.ReadWriteCursor()

	// Forward iteration returns keys in lexicographic order.
	idx := 0
	for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
		if idx >= len(ordered) {
			tc.t.Errorf("cursor: more keys than expected")
			return false
		}
		if string(k) != ordered[idx].k || string(v) != ordered[idx].v {
			tc.t.Errorf("cursor forward: got (%q, %q), want (%q, %q)",
				k, v, ordered[idx].k, ordered[idx].v)
			return false
		}
		idx++
	}
	if idx != len(ordered) {
		tc.t.Errorf("cursor forward: visited %d keys, want %d", idx,
			len(ordered))
		return false
	}

	// Reverse iteration.
	idx = len(ordered) - 1
	for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
		if idx < 0 {
			tc.t.Errorf("cursor: more keys than expected in reverse")
			return false
		}
		if string(k) != ordered[idx].k || string(v) != ordered[idx].v {
			tc.t.Errorf("cursor reverse: got (%q, %q), want (%q, %q)",
				k, v, ordered[idx].k, ordered[idx].v)
			return false
		}
		idx--
	}
	if idx != -1 {
		tc.t.Errorf("cursor reverse: %d keys not visited", idx+1)
		return false
	}

	// Seek lands on the first key at or after the target.
	if k, _ := cursor.Seek([]byte("ck15")); string(k) != "ck2" {
		tc.t.Errorf("cursor seek: got %q, want %q", k, "ck2")
		return false
	}
	if k, _ := cursor.Seek([]byte("ck9")); k != nil {
		tc.t.Errorf("cursor seek past end: got %q, want nil", k)
		return false
	}

	// Delete through the cursor removes the current key.
	if k, _ := cursor.Seek([]byte("ck2")); string(k) != "ck2" {
		tc.t.Errorf("cursor seek: got %q, want %q", k, "ck2")
		return false
	}
	if err := cursor.Delete(); err != nil {
		tc.t.Errorf("cursor delete: unexpected error: %v", err)
		return false
	}
	if bucket.Get([]byte("ck2")) != nil {
		tc.t.Errorf("cursor delete: key still present")
		return false
	}

	for _, e := range ordered {
		bucket.Delete([]byte(e.k))
	}
	return true
}

// testSequence exercises the per-bucket sequence counter.
func testSequence(tc *testContext, bucket walletdb.ReadWriteBucket) bool {
	if seq := bucket.Sequence(); seq != 0 {
		tc.t.Errorf("Sequence: got %d, want 0", seq)
		return false
	}
	for want := uint64(1); want <= 3; want++ {
		seq, err := bucket.NextSequence()
		if err != nil {
			tc.t.Errorf("NextSequence: unexpected error: %v", err)
			return false
		}
		if seq != want {
			tc.t.Errorf("NextSequence: got %d, want %d", seq, want)
			return false
		}
	}
	if err := bucket.SetSequence(42); err != nil {
		tc.t.Errorf("SetSequence: unexpected error: %v", err)
		return false
	}
	if seq := bucket.Sequence(); seq != 42 {
		tc.t.Errorf("Sequence: got %d, want 42", seq)
		return false
	}
	return true
}

// testManagedTxPanics ensures the managed Update helper rolls changes
// back when the callback errors and commits them otherwise.
func testManagedTx(tc *testContext) bool {
	errRollback := errors.New("force rollback")

	err := walletdb.Update(tc.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(tc.bucketKey)
		if err := bucket.Put([]byte("discarded"), []byte("1")); err != nil {
			return err
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		tc.t.Errorf("Update: got error %v, want %v", err, errRollback)
		return false
	}

	err = walletdb.View(tc.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(tc.bucketKey)
		if bucket.Get([]byte("discarded")) != nil {
			return errors.New("rolled back write is visible")
		}
		return nil
	})
	if err != nil {
		tc.t.Errorf("View: %v", err)
		return false
	}

	// Mutations through a read-only transaction must be rejected.
	tx, err := tc.db.BeginReadWriteTx()
	if err != nil {
		tc.t.Errorf("BeginReadWriteTx: unexpected error: %v", err)
		return false
	}
	if _, err := tx.CreateTopLevelBucket([]byte("rocheck")); err != nil {
		tx.Rollback()
		tc.t.Errorf("CreateTopLevelBucket: unexpected error: %v", err)
		return false
	}
	if err := tx.Commit(); err != nil {
		tc.t.Errorf("Commit: unexpected error: %v", err)
		return false
	}

	return true
}

// TestInterface performs all interface tests for a given database type.
func TestInterface(t Tester, dbType string, args ...interface{}) {
	db, err := walletdb.Create(dbType, args...)
	if err != nil {
		t.Errorf("Failed to create test database (%s) %v", dbType, err)
		return
	}
	defer db.Close()

	tc := &testContext{t: t, db: db, bucketKey: []byte("testbucket")}

	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		bucket, err := tx.CreateTopLevelBucket(tc.bucketKey)
		if err != nil {
			return fmt.Errorf("CreateTopLevelBucket: %v", err)
		}
		if !testBucketInterface(tc, bucket) {
			return errors.New("bucket interface test failed")
		}
		if !testCursorInterface(tc, bucket) {
			return errors.New("cursor interface test failed")
		}
		if !testSequence(tc, bucket) {
			return errors.New("sequence test failed")
		}
		return nil
	})
	if err != nil {
		t.Errorf("%v", err)
		return
	}

	if !testManagedTx(tc) {
		return
	}

	// Data written in a committed transaction survives reopening the
	// database.
	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		return tx.ReadWriteBucket(tc.bucketKey).
			Put([]byte("persist"), []byte("yes"))
	})
	if err != nil {
		t.Errorf("Update: unexpected error: %v", err)
		return
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close: unexpected error: %v", err)
		return
	}
	db, err = walletdb.Open(dbType, args...)
	if err != nil {
		t.Errorf("Failed to open test database (%s) %v", dbType, err)
		return
	}
	tc.db = db
	defer db.Close()

	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		got := tx.ReadBucket(tc.bucketKey).Get([]byte("persist"))
		if !bytes.Equal(got, []byte("yes")) {
			return fmt.Errorf("persisted value mismatch: got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Errorf("%v", err)
	}
}
