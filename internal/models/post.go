package models

import (
	"strings"
	"time"
)

const unknown = "Unknown"

// PostInput is a single scraped post as submitted by the browser extension.
type PostInput struct {
	Author         string `json:"author"`
	Timestamp      string `json:"timestamp"`
	Emails         string `json:"emails"`
	ContactNumbers string `json:"contact_numbers"`
	ApplyLinks     string `json:"apply_links"`
	Content        string `json:"content"`
}

// WithDefaults fills author and timestamp the way the extension expects.
func (p PostInput) WithDefaults() PostInput {
	if strings.TrimSpace(p.Author) == "" {
		p.Author = unknown
	}
	if strings.TrimSpace(p.Timestamp) == "" {
		p.Timestamp = unknown
	}
	return p
}

// Post is a persisted post. It is never modified after ingest.
type Post struct {
	Author         string    `json:"author"`
	Timestamp      string    `json:"timestamp"`
	Emails         string    `json:"emails"`
	ContactNumbers string    `json:"contact_numbers"`
	ApplyLinks     string    `json:"apply_links"`
	Content        string    `json:"content"`
	ContentHash    string    `json:"content_hash"`
	BatchNumber    int       `json:"batch_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// PostMeta is the provenance copied from a post into outgoing mail and the sent-log.
type PostMeta struct {
	Author         string `json:"author"`
	Content        string `json:"content"`
	ContactNumbers string `json:"contact_numbers"`
	ApplyLinks     string `json:"apply_links"`
}

// Meta extracts the provenance fields of a post.
func (p Post) Meta() PostMeta {
	return PostMeta{
		Author:         p.Author,
		Content:        p.Content,
		ContactNumbers: p.ContactNumbers,
		ApplyLinks:     p.ApplyLinks,
	}
}

// SentEmail is one row of the append-only sent-log.
type SentEmail struct {
	RecipientEmail string    `json:"recipient_email"`
	DateSent       time.Time `json:"date_sent"`
	Author         string    `json:"author"`
	ContactNumbers string    `json:"contact_numbers"`
	ApplyLinks     string    `json:"apply_links"`
	Content        string    `json:"content"`
}

// NewSentEmail builds a sent-log record for recipient from post provenance.
func NewSentEmail(recipient string, meta PostMeta, at time.Time) SentEmail {
	return SentEmail{
		RecipientEmail: recipient,
		DateSent:       at,
		Author:         meta.Author,
		ContactNumbers: meta.ContactNumbers,
		ApplyLinks:     meta.ApplyLinks,
		Content:        meta.Content,
	}
}
