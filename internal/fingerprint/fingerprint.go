// Package fingerprint derives stable content fingerprints from card identity fields.
//
// Two cards fingerprint identically iff their normalized identities match:
// bilingual ordering, surrounding whitespace, and email casing never change
// the digest. The fingerprint is recomputed on demand and never treated as
// authoritative stored state, so it always reflects current normalization rules.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iim0663418/cardstore/internal/types"
)

// DisplayPrefix marks the shortened display form of a fingerprint
const DisplayPrefix = "fp_"

// degradedPrefix marks pseudo-fingerprints issued when no identity is available
const degradedPrefix = "fp_deg_"

// Result carries a fingerprint plus whether generation degraded to a
// unique pseudo-fingerprint. Degraded results are unique per call, so
// duplicate detection treats the record as new instead of failing.
type Result struct {
	Value    string
	Degraded bool
}

// Display returns the shortened, prefixed form for human output
func (r Result) Display() string {
	if r.Degraded {
		return r.Value
	}
	if len(r.Value) < 16 {
		return DisplayPrefix + r.Value
	}
	return DisplayPrefix + r.Value[:16]
}

// Generate computes the content fingerprint for a card's fields.
// It never fails: when no identity fields are present it falls back to a
// time+random pseudo-fingerprint and reports the result as degraded.
func Generate(fields map[string]string) Result {
	name := NormalizeName(fields["name"])
	email := NormalizeEmail(fields["email"])

	if name == "" && email == "" {
		return Result{
			Value:    fmt.Sprintf("%s%d_%s", degradedPrefix, time.Now().UnixNano(), uuid.NewString()[:8]),
			Degraded: true,
		}
	}

	sum := sha256.Sum256([]byte(name + "|" + email))
	return Result{Value: hex.EncodeToString(sum[:])}
}

// NormalizeName extracts the primary language segment and trims whitespace
func NormalizeName(name string) string {
	return types.ParseBilingual(name).Primary
}

// NormalizeEmail trims whitespace and lowercases
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Identity returns the normalized name+email pair used for matching records
// that share no ID, e.g. during import conflict detection.
func Identity(fields map[string]string) (name, email string) {
	return NormalizeName(fields["name"]), NormalizeEmail(fields["email"])
}
