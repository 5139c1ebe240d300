package somnia

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Feature tables carry per-user health data, so exported blobs can be sealed
// at rest. The format is AES-256-GCM with a random nonce, framed by a small
// header holding the PBKDF2 salt so a password alone can open the blob later.

const (
	encryptionNonceSize = 12
	encryptionSaltSize  = 32
	encryptionKeySize   = 32
	pbkdf2Iterations    = 100000
)

// sealedMagic marks an encrypted table blob.
var sealedMagic = [4]byte{'S', 'O', 'M', '1'}

const sealedHeaderSize = 4 + encryptionSaltSize

// TableSealer encrypts and decrypts serialized table blobs.
type TableSealer struct {
	gcm  cipher.AEAD
	salt []byte
}

// NewTableSealer derives an AES-256 key from a password with a fresh salt.
func NewTableSealer(password string) (*TableSealer, error) {
	if password == "" {
		return nil, errors.New("sealer: password is empty")
	}
	salt := make([]byte, encryptionSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return newTableSealerWithSalt(password, salt)
}

// NewTableSealerWithKey creates a sealer from a raw 32-byte key. Blobs sealed
// this way carry no salt and must be opened with the same key.
func NewTableSealerWithKey(key []byte) (*TableSealer, error) {
	if len(key) != encryptionKeySize {
		return nil, fmt.Errorf("sealer: key must be %d bytes", encryptionKeySize)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &TableSealer{gcm: gcm}, nil
}

func newTableSealerWithSalt(password string, salt []byte) (*TableSealer, error) {
	if len(salt) != encryptionSaltSize {
		return nil, errors.New("sealer: invalid salt size")
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, encryptionKeySize, sha256.New)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &TableSealer{gcm: gcm, salt: salt}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts a serialized table blob. The output is
// magic || salt || nonce || ciphertext.
func (s *TableSealer) Seal(blob []byte) ([]byte, error) {
	nonce := make([]byte, encryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, sealedHeaderSize+encryptionNonceSize+len(blob)+s.gcm.Overhead())
	out = append(out, sealedMagic[:]...)
	salt := s.salt
	if salt == nil {
		salt = make([]byte, encryptionSaltSize) // raw-key mode: zero salt
	}
	out = append(out, salt...)
	out = append(out, nonce...)
	return s.gcm.Seal(out, nonce, blob, nil), nil
}

// OpenSealedTable decrypts a blob produced by Seal using a password. The salt
// is read from the blob header, so any sealer derived from the same password
// can open it.
func OpenSealedTable(password string, sealed []byte) ([]byte, error) {
	salt, rest, err := splitSealed(sealed)
	if err != nil {
		return nil, err
	}
	s, err := newTableSealerWithSalt(password, salt)
	if err != nil {
		return nil, err
	}
	return s.open(rest)
}

// Open decrypts a blob produced by this sealer (or one sharing its key).
func (s *TableSealer) Open(sealed []byte) ([]byte, error) {
	_, rest, err := splitSealed(sealed)
	if err != nil {
		return nil, err
	}
	return s.open(rest)
}

func (s *TableSealer) open(rest []byte) ([]byte, error) {
	if len(rest) < encryptionNonceSize {
		return nil, errors.New("sealer: blob truncated")
	}
	nonce, ciphertext := rest[:encryptionNonceSize], rest[encryptionNonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("sealer: %w", err)
	}
	return plaintext, nil
}

func splitSealed(sealed []byte) (salt, rest []byte, err error) {
	if len(sealed) < sealedHeaderSize {
		return nil, nil, errors.New("sealer: blob truncated")
	}
	var magic [4]byte
	copy(magic[:], sealed[:4])
	if magic != sealedMagic {
		return nil, nil, errors.New("sealer: not a sealed table blob")
	}
	return sealed[4:sealedHeaderSize], sealed[sealedHeaderSize:], nil
}
