package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Run("stable lowercase hex", func(t *testing.T) {
		h := Fingerprint("Jane", "Hiring Go devs")
		assert.Len(t, h, 64)
		assert.Equal(t, strings.ToLower(h), h)
		assert.Equal(t, h, Fingerprint("Jane", "Hiring Go devs"))
	})

	t.Run("case and surrounding space are ignored", func(t *testing.T) {
		assert.Equal(t, Fingerprint("Jane", "Hiring Go devs"), Fingerprint("  JANE ", " hiring go DEVS\n"))
	})

	t.Run("only the first 200 characters count", func(t *testing.T) {
		prefix := strings.Repeat("é", 200)
		assert.Equal(t, Fingerprint("a", prefix+"one ending"), Fingerprint("a", prefix+"another ending"))
		assert.NotEqual(t, Fingerprint("a", "x"+prefix), Fingerprint("a", "y"+prefix))
	})

	t.Run("author is part of the key", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("Jane", "same"), Fingerprint("John", "same"))
	})
}
