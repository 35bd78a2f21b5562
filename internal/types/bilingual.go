package types

import "strings"

// BilingualDelimiter separates the primary and secondary language segments
// of a bilingual field value, e.g. "吳志明~Wu Chih-Ming".
const BilingualDelimiter = "~"

// BilingualText is a field value that may carry two language segments
type BilingualText struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// ParseBilingual splits a delimited field value into its language segments.
// A value without the delimiter is treated as primary-only.
func ParseBilingual(value string) BilingualText {
	primary, secondary, found := strings.Cut(value, BilingualDelimiter)
	if !found {
		return BilingualText{Primary: strings.TrimSpace(value)}
	}
	return BilingualText{
		Primary:   strings.TrimSpace(primary),
		Secondary: strings.TrimSpace(secondary),
	}
}

// String joins the segments back into the delimited wire form
func (b BilingualText) String() string {
	if b.Secondary == "" {
		return b.Primary
	}
	return b.Primary + BilingualDelimiter + b.Secondary
}

// bilingualFields are the card attributes that may carry two languages
var bilingualFields = map[string]bool{
	"name":         true,
	"title":        true,
	"organization": true,
	"address":      true,
	"social_note":  true,
}

// IsBilingualField reports whether the named card attribute may be bilingual
func IsBilingualField(name string) bool {
	return bilingualFields[name]
}
