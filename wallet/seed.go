// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/mwsuite/mwwallet/internal/zero"
)

const (
	// RecommendedSeedLen is the seed length used for newly generated
	// wallets.
	RecommendedSeedLen = 32

	// seedSaltSize is the size of the random scrypt salt stored with
	// the seed file.
	seedSaltSize = 16

	// Scrypt parameters for the seed file key derivation.
	seedScryptN = 32768
	seedScryptR = 8
	seedScryptP = 1
)

var (
	// ErrSeedExists is returned when creating a seed file over an
	// existing one.  The caller must remove the old wallet explicitly;
	// silently overwriting a seed would destroy funds.
	ErrSeedExists = errors.New("seed file already exists")

	// ErrNoSeed is returned when the seed file does not exist.
	ErrNoSeed = errors.New("seed file not found")

	// ErrWrongPassphrase is returned when the seed file cannot be
	// decrypted with the given passphrase.
	ErrWrongPassphrase = errors.New("incorrect passphrase")
)

// encryptedSeed is the on-disk seed file layout.
type encryptedSeed struct {
	EncryptedSeed string `json:"encrypted_seed"`
	Salt          string `json:"salt"`
	Nonce         string `json:"nonce"`
}

// GenerateSeed returns a new cryptographically random master seed.
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, RecommendedSeedLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// seedKey stretches a passphrase into a secretbox key.
func seedKey(passphrase, salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key(passphrase, salt, seedScryptN, seedScryptR,
		seedScryptP, 32)
	if err != nil {
		return nil, err
	}
	var key [32]byte
	copy(key[:], derived)
	zero.Bytes(derived)
	return &key, nil
}

// SaveSeed encrypts the master seed under the passphrase and writes it
// to path.  An existing seed file is never overwritten.
func SaveSeed(path string, seed, passphrase []byte) error {
	if _, err := os.Stat(path); err == nil {
		return ErrSeedExists
	} else if !os.IsNotExist(err) {
		return err
	}

	salt := make([]byte, seedSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	key, err := seedKey(passphrase, salt)
	if err != nil {
		return err
	}
	sealed := secretbox.Seal(nil, seed, &nonce, key)
	zero.Bytea32(key)

	file := encryptedSeed{
		EncryptedSeed: hex.EncodeToString(sealed),
		Salt:          hex.EncodeToString(salt),
		Nonce:         hex.EncodeToString(nonce[:]),
	}
	b, err := json.MarshalIndent(&file, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0600)
}

// LoadSeed reads the seed file at path and decrypts the master seed
// with the passphrase.
func LoadSeed(path string, passphrase []byte) ([]byte, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoSeed
	}
	if err != nil {
		return nil, err
	}

	var file encryptedSeed
	if err := json.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("malformed seed file: %v", err)
	}
	sealed, err := hex.DecodeString(file.EncryptedSeed)
	if err != nil {
		return nil, fmt.Errorf("malformed seed file: %v", err)
	}
	salt, err := hex.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("malformed seed file: %v", err)
	}
	nonceBytes, err := hex.DecodeString(file.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, errors.New("malformed seed file: bad nonce")
	}
	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	key, err := seedKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	seed, ok := secretbox.Open(nil, sealed, &nonce, key)
	zero.Bytea32(key)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	return seed, nil
}

// SeedFileExists reports whether a seed file is present at path.
func SeedFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
