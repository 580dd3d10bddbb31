// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"

	"github.com/mwsuite/mwwallet/walletdb"
)

// The driver stores the bucket hierarchy in a single kv table.  Bucket
// rows have is_bucket=1 and their row id becomes the parent of their
// children; value rows carry the payload in v.  The top level uses the
// reserved parent id 0.
const schema = `
CREATE TABLE IF NOT EXISTS kv (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	parent    INTEGER NOT NULL,
	k         BLOB NOT NULL,
	v         BLOB,
	is_bucket INTEGER NOT NULL DEFAULT 0,
	seq       INTEGER NOT NULL DEFAULT 0,
	UNIQUE(parent, k)
);
CREATE INDEX IF NOT EXISTS kv_parent_idx ON kv(parent, k);
`

const rootParent int64 = 0

// db wraps the sql handle and implements walletdb.DB.
type db struct {
	sqlDB *sql.DB
	path  string
}

var _ walletdb.DB = (*db)(nil)

func (d *db) beginTx(writable bool) (*transaction, error) {
	sqlTx, err := d.sqlDB.Begin()
	if err != nil {
		return nil, err
	}
	return &transaction{sqlTx: sqlTx, writable: writable}, nil
}

func (d *db) BeginReadTx() (walletdb.ReadTx, error) {
	return d.beginTx(false)
}

func (d *db) BeginReadWriteTx() (walletdb.ReadWriteTx, error) {
	return d.beginTx(true)
}

// Copy writes a consistent snapshot of the database to w by vacuuming
// into a temporary file and streaming it out.
func (d *db) Copy(w io.Writer) error {
	tmp, err := os.CreateTemp("", "mwwallet-sqlite-copy")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if _, err := d.sqlDB.Exec("VACUUM INTO ?", tmpPath); err != nil {
		return err
	}
	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (d *db) Close() error {
	return d.sqlDB.Close()
}

// transaction implements both walletdb transaction interfaces on top
// of a single sql.Tx.  Mutations through a read-only transaction are
// rejected at this layer since SQLite does not distinguish them.
type transaction struct {
	sqlTx    *sql.Tx
	writable bool
	onCommit []func()
	done     bool
}

var _ walletdb.ReadWriteTx = (*transaction)(nil)

func (tx *transaction) ReadBucket(key []byte) walletdb.ReadBucket {
	return tx.ReadWriteBucket(key)
}

func (tx *transaction) ForEachBucket(fn func(key []byte) error) error {
	rows, err := tx.sqlTx.Query(
		"SELECT k FROM kv WHERE parent = ? AND is_bucket = 1 ORDER BY k",
		rootParent,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k []byte
		if err := rows.Scan(&k); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return rows.Err()
}

// lookupBucket resolves the row id of a bucket under parent.  It
// returns errNotBucket when the key holds a plain value.
var errNotBucket = errors.New("key is not a bucket")

func (tx *transaction) lookupBucket(parent int64, key []byte) (int64, error) {
	var (
		id       int64
		isBucket bool
	)
	err := tx.sqlTx.QueryRow(
		"SELECT id, is_bucket FROM kv WHERE parent = ? AND k = ?",
		parent, key,
	).Scan(&id, &isBucket)
	switch {
	case err == sql.ErrNoRows:
		return 0, walletdb.ErrBucketNotFound
	case err != nil:
		return 0, err
	case !isBucket:
		return 0, errNotBucket
	}
	return id, nil
}

func (tx *transaction) ReadWriteBucket(key []byte) walletdb.ReadWriteBucket {
	id, err := tx.lookupBucket(rootParent, key)
	if err != nil {
		return nil
	}
	return &kvBucket{tx: tx, id: id}
}

func (tx *transaction) createBucket(parent int64, key []byte,
	mustNotExist bool) (walletdb.ReadWriteBucket, error) {

	if !tx.writable {
		return nil, walletdb.ErrTxNotWritable
	}
	if len(key) == 0 {
		return nil, walletdb.ErrBucketNameRequired
	}

	id, err := tx.lookupBucket(parent, key)
	switch {
	case err == nil:
		if mustNotExist {
			return nil, walletdb.ErrBucketExists
		}
		return &kvBucket{tx: tx, id: id}, nil
	case errors.Is(err, errNotBucket):
		return nil, walletdb.ErrIncompatibleValue
	case !errors.Is(err, walletdb.ErrBucketNotFound):
		return nil, err
	}

	res, err := tx.sqlTx.Exec(
		"INSERT INTO kv(parent, k, is_bucket) VALUES(?, ?, 1)",
		parent, key,
	)
	if err != nil {
		return nil, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &kvBucket{tx: tx, id: id}, nil
}

func (tx *transaction) CreateTopLevelBucket(key []byte) (
	walletdb.ReadWriteBucket, error) {

	return tx.createBucket(rootParent, key, false)
}

// deleteBucketTree removes a bucket row and, recursively, everything
// below it.
func (tx *transaction) deleteBucketTree(id int64) error {
	rows, err := tx.sqlTx.Query(
		"SELECT id FROM kv WHERE parent = ? AND is_bucket = 1", id,
	)
	if err != nil {
		return err
	}
	var children []int64
	for rows.Next() {
		var child int64
		if err := rows.Scan(&child); err != nil {
			rows.Close()
			return err
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, child := range children {
		if err := tx.deleteBucketTree(child); err != nil {
			return err
		}
	}

	if _, err := tx.sqlTx.Exec(
		"DELETE FROM kv WHERE parent = ?", id,
	); err != nil {
		return err
	}
	_, err = tx.sqlTx.Exec("DELETE FROM kv WHERE id = ?", id)
	return err
}

func (tx *transaction) deleteBucket(parent int64, key []byte) error {
	if !tx.writable {
		return walletdb.ErrTxNotWritable
	}
	id, err := tx.lookupBucket(parent, key)
	if errors.Is(err, errNotBucket) {
		return walletdb.ErrIncompatibleValue
	}
	if err != nil {
		return err
	}
	return tx.deleteBucketTree(id)
}

func (tx *transaction) DeleteTopLevelBucket(key []byte) error {
	return tx.deleteBucket(rootParent, key)
}

func (tx *transaction) Commit() error {
	if tx.done {
		return walletdb.ErrTxClosed
	}
	if err := tx.sqlTx.Commit(); err != nil {
		return err
	}
	tx.done = true
	for _, f := range tx.onCommit {
		f()
	}
	return nil
}

func (tx *transaction) Rollback() error {
	if tx.done {
		return walletdb.ErrTxClosed
	}
	tx.done = true
	return tx.sqlTx.Rollback()
}

func (tx *transaction) OnCommit(f func()) {
	tx.onCommit = append(tx.onCommit, f)
}

// kvBucket implements the walletdb bucket interfaces for one bucket
// row.
type kvBucket struct {
	tx *transaction
	id int64
}

var _ walletdb.ReadWriteBucket = (*kvBucket)(nil)

func (b *kvBucket) NestedReadBucket(key []byte) walletdb.ReadBucket {
	return b.NestedReadWriteBucket(key)
}

func (b *kvBucket) NestedReadWriteBucket(key []byte) walletdb.ReadWriteBucket {
	id, err := b.tx.lookupBucket(b.id, key)
	if err != nil {
		return nil
	}
	return &kvBucket{tx: b.tx, id: id}
}

func (b *kvBucket) CreateBucket(key []byte) (walletdb.ReadWriteBucket, error) {
	return b.tx.createBucket(b.id, key, true)
}

func (b *kvBucket) CreateBucketIfNotExists(key []byte) (
	walletdb.ReadWriteBucket, error) {

	return b.tx.createBucket(b.id, key, false)
}

func (b *kvBucket) DeleteNestedBucket(key []byte) error {
	return b.tx.deleteBucket(b.id, key)
}

func (b *kvBucket) ForEach(fn func(k, v []byte) error) error {
	rows, err := b.tx.sqlTx.Query(
		"SELECT k, v, is_bucket FROM kv WHERE parent = ? ORDER BY k", b.id,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k, v     []byte
			isBucket bool
		)
		if err := rows.Scan(&k, &v, &isBucket); err != nil {
			return err
		}
		// Nested buckets are reported with a nil value.
		if isBucket {
			v = nil
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (b *kvBucket) Get(key []byte) []byte {
	var (
		v        []byte
		isBucket bool
	)
	err := b.tx.sqlTx.QueryRow(
		"SELECT v, is_bucket FROM kv WHERE parent = ? AND k = ?",
		b.id, key,
	).Scan(&v, &isBucket)
	if err != nil || isBucket {
		return nil
	}
	if v == nil {
		// Distinguish a stored empty value from a missing key the
		// same way bolt does: a present key never returns nil.
		return []byte{}
	}
	return v
}

func (b *kvBucket) Put(key, value []byte) error {
	if !b.tx.writable {
		return walletdb.ErrTxNotWritable
	}
	if len(key) == 0 {
		return walletdb.ErrKeyRequired
	}

	// Refuse to clobber a nested bucket.
	if _, err := b.tx.lookupBucket(b.id, key); err == nil {
		return walletdb.ErrIncompatibleValue
	}

	_, err := b.tx.sqlTx.Exec(
		`INSERT INTO kv(parent, k, v, is_bucket) VALUES(?, ?, ?, 0)
		 ON CONFLICT(parent, k) DO UPDATE SET v = excluded.v`,
		b.id, key, value,
	)
	return err
}

func (b *kvBucket) Delete(key []byte) error {
	if !b.tx.writable {
		return walletdb.ErrTxNotWritable
	}
	if len(key) == 0 {
		return walletdb.ErrKeyRequired
	}

	if _, err := b.tx.lookupBucket(b.id, key); err == nil {
		return walletdb.ErrIncompatibleValue
	}

	_, err := b.tx.sqlTx.Exec(
		"DELETE FROM kv WHERE parent = ? AND k = ? AND is_bucket = 0",
		b.id, key,
	)
	return err
}

func (b *kvBucket) ReadCursor() walletdb.ReadCursor {
	return b.ReadWriteCursor()
}

func (b *kvBucket) ReadWriteCursor() walletdb.ReadWriteCursor {
	return &kvCursor{bucket: b}
}

func (b *kvBucket) Tx() walletdb.ReadWriteTx {
	return b.tx
}

func (b *kvBucket) NextSequence() (uint64, error) {
	if !b.tx.writable {
		return 0, walletdb.ErrTxNotWritable
	}
	if _, err := b.tx.sqlTx.Exec(
		"UPDATE kv SET seq = seq + 1 WHERE id = ?", b.id,
	); err != nil {
		return 0, err
	}
	return b.Sequence(), nil
}

func (b *kvBucket) SetSequence(v uint64) error {
	if !b.tx.writable {
		return walletdb.ErrTxNotWritable
	}
	_, err := b.tx.sqlTx.Exec(
		"UPDATE kv SET seq = ? WHERE id = ?", int64(v), b.id,
	)
	return err
}

func (b *kvBucket) Sequence() uint64 {
	var seq int64
	if err := b.tx.sqlTx.QueryRow(
		"SELECT seq FROM kv WHERE id = ?", b.id,
	).Scan(&seq); err != nil {
		return 0
	}
	return uint64(seq)
}

// kvCursor iterates a bucket in key order.  Position is tracked by the
// current key, so mutations through the cursor keep it valid the same
// way bolt cursors stay valid across Delete.
type kvCursor struct {
	bucket  *kvBucket
	current []byte
	valid   bool
}

var _ walletdb.ReadWriteCursor = (*kvCursor)(nil)

// scanRow runs a positioning query and updates the cursor state.
func (c *kvCursor) scanRow(query string, args ...interface{}) (
	[]byte, []byte) {

	var (
		k, v     []byte
		isBucket bool
	)
	err := c.bucket.tx.sqlTx.QueryRow(query, args...).Scan(&k, &v, &isBucket)
	if err != nil {
		c.valid = false
		c.current = nil
		return nil, nil
	}
	c.valid = true
	c.current = k
	if isBucket {
		return k, nil
	}
	if v == nil {
		v = []byte{}
	}
	return k, v
}

const cursorCols = "SELECT k, v, is_bucket FROM kv WHERE parent = ?"

func (c *kvCursor) First() (key, value []byte) {
	return c.scanRow(cursorCols+" ORDER BY k ASC LIMIT 1", c.bucket.id)
}

func (c *kvCursor) Last() (key, value []byte) {
	return c.scanRow(cursorCols+" ORDER BY k DESC LIMIT 1", c.bucket.id)
}

func (c *kvCursor) Next() (key, value []byte) {
	if !c.valid {
		return nil, nil
	}
	return c.scanRow(cursorCols+" AND k > ? ORDER BY k ASC LIMIT 1",
		c.bucket.id, c.current)
}

func (c *kvCursor) Prev() (key, value []byte) {
	if !c.valid {
		return nil, nil
	}
	return c.scanRow(cursorCols+" AND k < ? ORDER BY k DESC LIMIT 1",
		c.bucket.id, c.current)
}

func (c *kvCursor) Seek(seek []byte) (key, value []byte) {
	return c.scanRow(cursorCols+" AND k >= ? ORDER BY k ASC LIMIT 1",
		c.bucket.id, seek)
}

func (c *kvCursor) Delete() error {
	if !c.bucket.tx.writable {
		return walletdb.ErrTxNotWritable
	}
	if !c.valid {
		return nil
	}
	if _, err := c.bucket.tx.lookupBucket(c.bucket.id, c.current); err == nil {
		return walletdb.ErrIncompatibleValue
	}
	_, err := c.bucket.tx.sqlTx.Exec(
		"DELETE FROM kv WHERE parent = ? AND k = ? AND is_bucket = 0",
		c.bucket.id, c.current,
	)
	return err
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// openDB opens the database at the provided path, creating it when
// create is set.
func openDB(dbPath string, create bool) (walletdb.DB, error) {
	exists := fileExists(dbPath)
	if !create && !exists {
		return nil, walletdb.ErrDbDoesNotExist
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&cache=shared&_fk=1", dbPath)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection sidesteps SQLITE_BUSY between the pooled
	// connections; concurrency control happens at the walletdb layer
	// anyway.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &db{sqlDB: sqlDB, path: dbPath}, nil
}
