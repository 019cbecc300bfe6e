package mailer

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrTemplateUnavailable marks a template that is missing or has no subject/body.
var ErrTemplateUnavailable = errors.New("email template unavailable")

// Template is the outgoing subject and plain-text body.
type Template struct {
	Subject string
	Body    string
}

// LoadTemplate reads path. The first line is the subject, optionally prefixed
// with "Subject:"; everything after it is the body.
func LoadTemplate(path string) (Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Template{}, errors.Mark(errors.Wrapf(err, "read template %s", path), ErrTemplateUnavailable)
	}
	return ParseTemplate(string(raw), path)
}

// ParseTemplate splits raw template text. name is used in errors only.
func ParseTemplate(raw, name string) (Template, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	subject, body, _ := strings.Cut(raw, "\n")
	subject = strings.TrimSpace(subject)
	subject = strings.TrimSpace(strings.TrimPrefix(subject, "Subject:"))
	body = strings.TrimSpace(body)
	if subject == "" || body == "" {
		return Template{}, errors.Wrapf(ErrTemplateUnavailable, "template %s needs a subject line and a body", name)
	}
	return Template{Subject: subject, Body: body}, nil
}
