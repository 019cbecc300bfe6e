package worker

import (
	"strings"

	"outreach-pipeline/internal/dedup"
	"outreach-pipeline/internal/models"
)

// Recipient is one address to mail, with the post that mentioned it.
type Recipient struct {
	Email string
	Post  models.PostMeta
}

// ExtractRecipients splits each post's comma-joined emails and returns the
// distinct valid addresses in order of first appearance. An address found in
// several posts carries the first post's details.
func ExtractRecipients(posts []models.Post) []Recipient {
	var out []Recipient
	seen := make(map[string]struct{})
	for _, p := range posts {
		if strings.TrimSpace(p.Emails) == "" {
			continue
		}
		meta := p.Meta()
		for _, raw := range strings.Split(p.Emails, ",") {
			addr := dedup.Normalize(raw)
			if !strings.Contains(addr, "@") {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, Recipient{Email: addr, Post: meta})
		}
	}
	return out
}

func emailsOf(rs []Recipient) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Email
	}
	return out
}

// keepClean filters rs down to the addresses in clean, preserving order.
func keepClean(rs []Recipient, clean []string) []Recipient {
	ok := make(map[string]struct{}, len(clean))
	for _, c := range clean {
		ok[c] = struct{}{}
	}
	out := make([]Recipient, 0, len(clean))
	for _, r := range rs {
		if _, found := ok[r.Email]; found {
			out = append(out, r)
		}
	}
	return out
}
