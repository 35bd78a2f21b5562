package transfer

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// Pairing codes are low-assurance session labels for manual device pairing,
// not cryptographic credentials.

const (
	pairingCodeLength  = 6
	pairingCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var pairingCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// GeneratePairingCode returns a 6-character uppercase alphanumeric code
func GeneratePairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate pairing code: %w", err)
	}
	code := make([]byte, pairingCodeLength)
	for i, b := range buf {
		code[i] = pairingCodeCharset[int(b)%len(pairingCodeCharset)]
	}
	return string(code), nil
}

// ValidatePairingCode checks the fixed 6-character uppercase format
func ValidatePairingCode(code string) bool {
	return pairingCodePattern.MatchString(code)
}
