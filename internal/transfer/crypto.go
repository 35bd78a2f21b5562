package transfer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/iim0663418/cardstore/internal/types"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinKDFIterations is the floor for PBKDF2 rounds; envelopes claiming
	// fewer are rejected before key derivation
	MinKDFIterations = 100000

	saltSize = 16
	ivSize   = 12
	keySize  = 32 // AES-256
)

// Seal encrypts a serialized transfer package under a password. Salt and IV
// are freshly randomized every call; reusing an IV under the same key would
// break AES-GCM confidentiality.
func Seal(plaintext []byte, password string, iterations int) (*types.EncryptedEnvelope, error) {
	if iterations < MinKDFIterations {
		iterations = MinKDFIterations
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	gcm, err := newGCM(password, salt, iterations)
	if err != nil {
		return nil, err
	}

	return &types.EncryptedEnvelope{
		Ciphertext: gcm.Seal(nil, iv, plaintext, nil),
		Salt:       salt,
		IV:         iv,
		Algorithm:  types.EnvelopeAlgorithm,
		Iterations: iterations,
	}, nil
}

// Open decrypts an envelope. A wrong password and a tampered ciphertext are
// indistinguishable (AEAD tag mismatch) and both fail closed with
// ErrDecryptionFailed; no partial plaintext is ever returned.
func Open(env *types.EncryptedEnvelope, password string) ([]byte, error) {
	if env.Algorithm != types.EnvelopeAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", types.ErrInvalidPackage, env.Algorithm)
	}
	if len(env.Salt) != saltSize || len(env.IV) != ivSize {
		return nil, fmt.Errorf("%w: malformed envelope parameters", types.ErrInvalidPackage)
	}
	if env.Iterations < MinKDFIterations {
		return nil, fmt.Errorf("%w: iteration count below minimum", types.ErrInvalidPackage)
	}

	gcm, err := newGCM(password, env.Salt, env.Iterations)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, types.ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return gcm, nil
}
