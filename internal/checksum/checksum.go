package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// NormalizeCard lowercases card text, unifies line endings and trims each line,
// so whitespace-only edits keep the card identity.
func NormalizeCard(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(strings.ToLower(text), "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// CardHash returns the identity fingerprint of a card's text. The digest is
// shortened to 16 hex chars since it only has to be unique within one file.
func CardHash(text string) string {
	n := NormalizeCard(text)
	if n == "" {
		return ""
	}
	return Sum([]byte(n))[:16]
}
