// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// IdentifierSize is the serialized size of a key path identifier:
	// one depth byte followed by four big-endian 32 bit child indexes.
	IdentifierSize = 17

	// MaxDepth is the deepest derivation path an identifier can name.
	MaxDepth = 4
)

var (
	// ErrInvalidIdentifier describes bytes that do not form a valid
	// key path identifier.
	ErrInvalidIdentifier = errors.New("invalid key identifier")

	// ErrPathTooDeep is returned when deriving a child below the
	// maximum supported depth.
	ErrPathTooDeep = errors.New("key path exceeds maximum depth")
)

// Identifier names a key derivation path.  Identifiers order
// lexicographically by path, which the output store relies on for its
// bucket keys.
type Identifier [IdentifierSize]byte

// NewIdentifier builds an identifier from the given path elements.  The
// depth is the number of elements; unused elements are zero.  It panics
// if more than MaxDepth elements are given since the path arity is
// fixed at compile time in all callers.
func NewIdentifier(path ...uint32) Identifier {
	if len(path) > MaxDepth {
		panic("keychain: path exceeds maximum depth")
	}
	var id Identifier
	id[0] = byte(len(path))
	for i, p := range path {
		binary.BigEndian.PutUint32(id[1+i*4:], p)
	}
	return id
}

// RootIdentifier returns the depth zero identifier.
func RootIdentifier() Identifier {
	return NewIdentifier()
}

// NewIdentifierFromBytes parses a serialized identifier.
func NewIdentifierFromBytes(b []byte) (Identifier, error) {
	var id Identifier
	if len(b) != IdentifierSize {
		return id, fmt.Errorf("%w: wrong length %d", ErrInvalidIdentifier,
			len(b))
	}
	if b[0] > MaxDepth {
		return id, fmt.Errorf("%w: depth %d", ErrInvalidIdentifier, b[0])
	}
	copy(id[:], b)
	return id, nil
}

// ParseIdentifier parses the hex form of an identifier.
func ParseIdentifier(s string) (Identifier, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	return NewIdentifierFromBytes(b)
}

// Depth returns the number of path elements.
func (id Identifier) Depth() uint8 {
	return id[0]
}

// Path returns the path elements down to the identifier's depth.
func (id Identifier) Path() []uint32 {
	path := make([]uint32, id.Depth())
	for i := range path {
		path[i] = binary.BigEndian.Uint32(id[1+i*4:])
	}
	return path
}

// Child returns the identifier one level deeper with the given index.
func (id Identifier) Child(n uint32) (Identifier, error) {
	depth := id.Depth()
	if depth >= MaxDepth {
		return Identifier{}, ErrPathTooDeep
	}
	child := id
	child[0] = depth + 1
	binary.BigEndian.PutUint32(child[1+int(depth)*4:], n)
	return child, nil
}

// Parent returns the identifier one level up.  The parent of the root
// is the root.
func (id Identifier) Parent() Identifier {
	depth := id.Depth()
	if depth == 0 {
		return id
	}
	parent := id
	parent[0] = depth - 1
	binary.BigEndian.PutUint32(parent[1+int(depth-1)*4:], 0)
	return parent
}

// Bytes returns the serialized identifier.
func (id Identifier) Bytes() []byte {
	return id[:]
}

// String returns the hex encoding.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalJSON implements json.Marshaler using the hex encoding.
func (id Identifier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	parsed, err := ParseIdentifier(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
