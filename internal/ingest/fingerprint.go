package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintPrefix is how many characters of content take part in the
// fingerprint. Edits past this point do not change a post's identity.
const fingerprintPrefix = 200

// Fingerprint derives the dedup key of a post from its author and the first
// 200 characters of its content. The result is a 64-char lowercase hex string.
func Fingerprint(author, content string) string {
	raw := strings.ToLower(strings.TrimSpace(author)) + "|" +
		strings.ToLower(strings.TrimSpace(runePrefix(content, fingerprintPrefix)))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
