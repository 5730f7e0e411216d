// Package resultcrypto encrypts the results blob before it is written
// to the store or the mirror. The scheme is fixed-key PBKDF2 +
// AES-256-GCM and is intentionally weak (hard-coded passphrase, fixed
// salt, 1000 iterations); only the round-trip contract matters here,
// and the blob shape is kept compatible with blobs written by the
// browser client.
package resultcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/proctorly/proctorly-backend/internal/model"
	"golang.org/x/crypto/pbkdf2"
)

const (
	passphrase = "exam-secret-key-123"
	salt       = "exam-salt"
	iterations = 1000
	keyLen     = 32
	ivLen      = 12
)

// ErrDecrypt is returned on tamper, wrong key, or a malformed blob.
// Decryption fails closed; it never returns partial plaintext.
var ErrDecrypt = errors.New("resultcrypto: decryption failed")

func gcm() (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt marshals v to JSON and seals it into a blob.
func Encrypt(v any) (model.EncryptedBlob, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return model.EncryptedBlob{}, fmt.Errorf("marshal plaintext: %w", err)
	}

	aead, err := gcm()
	if err != nil {
		return model.EncryptedBlob{}, fmt.Errorf("init cipher: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return model.EncryptedBlob{}, fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, plain, nil)

	// The IV travels as a JSON array of byte values, matching the blobs
	// the browser client writes.
	ivInts := make([]int, ivLen)
	for i, b := range iv {
		ivInts[i] = int(b)
	}

	return model.EncryptedBlob{
		IV:   ivInts,
		Data: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Decrypt opens the blob and unmarshals the plaintext into v. Any
// failure (bad base64, bad IV, authentication failure, bad JSON)
// yields ErrDecrypt.
func Decrypt(blob model.EncryptedBlob, v any) error {
	if len(blob.IV) != ivLen {
		return ErrDecrypt
	}
	iv := make([]byte, ivLen)
	for i, n := range blob.IV {
		if n < 0 || n > 255 {
			return ErrDecrypt
		}
		iv[i] = byte(n)
	}

	sealed, err := base64.StdEncoding.DecodeString(blob.Data)
	if err != nil {
		return ErrDecrypt
	}

	aead, err := gcm()
	if err != nil {
		return ErrDecrypt
	}

	plain, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return ErrDecrypt
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return ErrDecrypt
	}
	return nil
}
