// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pgpwordlist encodes byte slices as sequences of words from
// the PGP word list so that wallet seeds can be written down and read
// back without transcription errors.  Even and odd byte positions draw
// from different halves of the list, which catches swapped words, and
// an optional trailing checksum word catches a mistyped word.
package pgpwordlist

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// checksumByte returns the byte encoded by the checksum word appended
// to a word-encoded seed.  The wallet hashes everything else with
// BLAKE2b, matching the hash used throughout the chain domain.
func checksumByte(b []byte) byte {
	hash := blake2b.Sum256(b)
	return hash[0]
}

// ToString converts a byteslice to a string of words from the
// PGP word list.
func ToString(b []byte) (string, error) {
	if b == nil {
		return "", fmt.Errorf("missing data to string encode")
	}

	var buf bytes.Buffer

	for i, e := range b {
		toUse := uint16(e) * 2

		// Odd numbered bytes.
		if i%2 != 0 {
			toUse++
		}

		buf.WriteString(WordList[toUse])

		// Skip last space.
		if i != len(b)-1 {
			buf.WriteString(" ")
		}
	}

	return buf.String(), nil
}

// ToStringChecksum converts a byteslice to a string of words from the
// PGP word list, along with a one word checksum appended to the end.
// The checksum is the first byte of the BLAKE2b-256 hash of the data.
func ToStringChecksum(b []byte) (string, error) {
	str, err := ToString(b)
	if err != nil {
		return "", err
	}

	toUse := uint16(checksumByte(b)) * 2

	// Odd numbered byte for last char.
	if (len(b) % 2) != 0 {
		toUse++
	}

	return str + " " + WordList[toUse], nil
}

// ToBytes converts a string to a byte slice using the PGP word
// list. Notably, it strips words of their case, so any case input
// is valid.
func ToBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("missing string data to decode")
	}

	sLower := strings.ToLower(s)
	strSlice := strings.Split(sLower, " ")

	var buf bytes.Buffer

	for _, w := range strSlice {
		bLong, exists := WordMap[w]
		if !exists {
			return nil, fmt.Errorf("unidentifiable word %v", w)
		}

		buf.WriteByte(byte(bLong / 2))
	}

	return buf.Bytes(), nil
}

// ToBytesChecksum converts a string to a byte slice using the PGP
// word list. Notably, it strips words of their case, so any case
// input is valid. Unlike ToBytes, the final word is treated as a
// checksum of the preceding data and verified.
func ToBytesChecksum(s string) ([]byte, error) {
	b, err := ToBytes(s)
	if err != nil {
		return nil, err
	}
	if len(b) < 2 {
		return nil, fmt.Errorf("word sequence too short for a checksum")
	}
	bdata := b[:len(b)-1]

	toUse := uint16(checksumByte(bdata)) * 2
	// Odd numbered byte for last char.
	if (len(b) % 2) == 0 {
		toUse++
	}
	checksumCalc := WordList[toUse]

	strSlice := strings.Split(s, " ")
	checksum := strings.ToLower(strSlice[len(strSlice)-1])

	if checksum != strings.ToLower(checksumCalc) {
		return nil, fmt.Errorf("checksum failure: got %v, expected %v",
			checksum, checksumCalc)
	}

	return bdata, nil
}
