package mailer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()

	t.Run("subject prefix is stripped", func(t *testing.T) {
		path := filepath.Join(dir, "with_prefix.txt")
		require.NoError(t, os.WriteFile(path, []byte("Subject: Application for Go role\r\n\r\nHi,\r\nplease find my resume.\r\n"), 0o644))

		tmpl, err := LoadTemplate(path)
		require.NoError(t, err)
		assert.Equal(t, "Application for Go role", tmpl.Subject)
		assert.Equal(t, "Hi,\nplease find my resume.", tmpl.Body)
	})

	t.Run("plain first line", func(t *testing.T) {
		tmpl, err := ParseTemplate("Hello there\nBody text", "inline")
		require.NoError(t, err)
		assert.Equal(t, Template{Subject: "Hello there", Body: "Body text"}, tmpl)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTemplate(filepath.Join(dir, "nope.txt"))
		assert.True(t, errors.Is(err, ErrTemplateUnavailable))
	})

	t.Run("no body", func(t *testing.T) {
		_, err := ParseTemplate("Subject: only\n   \n", "inline")
		assert.True(t, errors.Is(err, ErrTemplateUnavailable))
	})
}

func TestConfigValidate(t *testing.T) {
	ok := Config{Host: "smtp.gmail.com", Port: 587, Sender: "me@gmail.com", Password: "app-pass"}
	require.NoError(t, ok.Validate())

	noSender := ok
	noSender.Sender = " "
	assert.ErrorIs(t, noSender.Validate(), ErrNotConfigured)

	noPassword := ok
	noPassword.Password = ""
	err := noPassword.Validate()
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "SENDER_PASSWORD")
}
