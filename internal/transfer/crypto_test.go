package transfer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/iim0663418/cardstore/internal/types"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`{"version":"1.0","records":[]}`)

	env, err := Seal(plaintext, "correct horse", MinKDFIterations)
	if err != nil {
		t.Fatal(err)
	}
	if env.Algorithm != types.EnvelopeAlgorithm {
		t.Errorf("algorithm = %q", env.Algorithm)
	}
	if env.Iterations < MinKDFIterations {
		t.Errorf("iterations = %d, below minimum", env.Iterations)
	}
	if len(env.Salt) != saltSize || len(env.IV) != ivSize {
		t.Errorf("salt/iv sizes = %d/%d", len(env.Salt), len(env.IV))
	}
	if bytes.Contains(env.Ciphertext, []byte("records")) {
		t.Error("ciphertext leaks plaintext")
	}

	got, err := Open(env, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestOpenWrongPassword(t *testing.T) {
	env, err := Seal([]byte("secret payload"), "password-one", MinKDFIterations)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Open(env, "password-two")
	if !errors.Is(err, types.ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
	if got != nil {
		t.Error("no plaintext may be returned on failure")
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	env, err := Seal([]byte("secret payload"), "pw", MinKDFIterations)
	if err != nil {
		t.Fatal(err)
	}
	env.Ciphertext[0] ^= 0xff

	if _, err := Open(env, "pw"); !errors.Is(err, types.ErrDecryptionFailed) {
		t.Errorf("tampered ciphertext must fail closed, got %v", err)
	}
}

func TestOpenRejectsMalformedEnvelopes(t *testing.T) {
	good, err := Seal([]byte("payload"), "pw", MinKDFIterations)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(env *types.EncryptedEnvelope)
	}{
		{"unknown algorithm", func(env *types.EncryptedEnvelope) { env.Algorithm = "ROT13" }},
		{"short salt", func(env *types.EncryptedEnvelope) { env.Salt = env.Salt[:8] }},
		{"short iv", func(env *types.EncryptedEnvelope) { env.IV = env.IV[:4] }},
		{"weak iterations", func(env *types.EncryptedEnvelope) { env.Iterations = 1000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := *good
			env.Salt = append([]byte(nil), good.Salt...)
			env.IV = append([]byte(nil), good.IV...)
			tt.mutate(&env)
			if _, err := Open(&env, "pw"); !errors.Is(err, types.ErrInvalidPackage) {
				t.Errorf("expected ErrInvalidPackage, got %v", err)
			}
		})
	}
}

func TestSealFreshSaltAndIV(t *testing.T) {
	plaintext := []byte("same payload")

	a, err := Seal(plaintext, "pw", MinKDFIterations)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal(plaintext, "pw", MinKDFIterations)
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(a.Salt, b.Salt) {
		t.Error("salt reused across exports")
	}
	if bytes.Equal(a.IV, b.IV) {
		t.Error("iv reused across exports")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Error("identical ciphertext for independent seals")
	}
}

func TestSealRaisesWeakIterations(t *testing.T) {
	env, err := Seal([]byte("payload"), "pw", 10)
	if err != nil {
		t.Fatal(err)
	}
	if env.Iterations != MinKDFIterations {
		t.Errorf("iterations = %d, want floor %d", env.Iterations, MinKDFIterations)
	}
	if _, err := Open(env, "pw"); err != nil {
		t.Errorf("raised envelope should still open: %v", err)
	}
}
