package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"outreach-pipeline/internal/models"
)

const base64Line = 76

var (
	portfolioRule = strings.Repeat("★", 50)
	referenceRule = strings.Repeat("=", 50)
)

// Message is everything needed to render one email.
type Message struct {
	From          string
	To            string
	Template      Template
	PortfolioLink string
	Post          models.PostMeta
	Attachments   []Attachment
	Date          time.Time
}

// RenderBody appends the portfolio block and the post reference block to the
// template body. Empty blocks are omitted.
func RenderBody(m Message) string {
	var b strings.Builder
	b.WriteString(m.Template.Body)

	if m.PortfolioLink != "" {
		b.WriteString("\n\n" + portfolioRule)
		b.WriteString("\n\n📌 MY PORTFOLIO: " + m.PortfolioLink + "\n")
		b.WriteString(portfolioRule)
	}

	p := m.Post
	if p.Author != "" || p.Content != "" || p.ContactNumbers != "" || p.ApplyLinks != "" {
		b.WriteString("\n\n" + referenceRule)
		b.WriteString("\n[Reference - LinkedIn Post Details]")
		b.WriteString("\n" + referenceRule)
		if p.Author != "" {
			b.WriteString("\nPosted by: " + p.Author)
		}
		if p.Content != "" {
			b.WriteString("\n\nPost Content:\n" + p.Content)
		}
		if p.ContactNumbers != "" {
			b.WriteString("\n\nContact Numbers: " + p.ContactNumbers)
		}
		if p.ApplyLinks != "" {
			b.WriteString("\n\nApply Links: " + p.ApplyLinks)
		}
		b.WriteString("\n" + referenceRule)
	}
	return b.String()
}

// Compose renders m as a multipart/mixed MIME message with CRLF line endings.
func Compose(m Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	header := []struct{ k, v string }{
		{"From", m.From},
		{"To", m.To},
		{"Subject", mime.QEncoding.Encode("utf-8", m.Template.Subject)},
		{"Date", date.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/mixed; boundary=" + mw.Boundary()},
	}
	for _, h := range header {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.k, h.v)
	}
	buf.WriteString("\r\n")

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/plain; charset="utf-8"`},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create body part")
	}
	qp := quotedprintable.NewWriter(text)
	body := strings.ReplaceAll(RenderBody(m), "\n", "\r\n")
	if _, err := qp.Write([]byte(body)); err != nil {
		return nil, errors.Wrap(err, "write body")
	}
	if err := qp.Close(); err != nil {
		return nil, errors.Wrap(err, "flush body")
	}

	for _, a := range m.Attachments {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType("application/octet-stream", map[string]string{"name": a.Name})},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create attachment part %s", a.Name)
		}
		if err := writeBase64(part, a.Data); err != nil {
			return nil, errors.Wrapf(err, "encode attachment %s", a.Name)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart")
	}
	return buf.Bytes(), nil
}

func writeBase64(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := min(base64Line, len(enc))
		if _, err := w.Write([]byte(enc[:n] + "\r\n")); err != nil {
			return err
		}
		enc = enc[n:]
	}
	return nil
}
