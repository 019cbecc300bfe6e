package dedup

import "strings"

// CompanyMatch is a candidate skipped because someone at the same company was
// already contacted.
type CompanyMatch struct {
	Email    string `json:"email"`
	Previous string `json:"previous"`
}

// Result partitions the candidate list. Every candidate lands in exactly one field.
type Result struct {
	Clean           []string
	ExactDuplicates []string
	CompanyMatches  []CompanyMatch
}

// Normalize trims and lowercases an address.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// NormalizeList normalizes addresses, drops anything without an @ and removes
// repeats, keeping first-appearance order.
func NormalizeList(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		a = Normalize(a)
		if !strings.Contains(a, "@") {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// NormalizeValid normalizes addresses and drops anything without an @.
// Repeats are kept.
func NormalizeValid(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a = Normalize(a); strings.Contains(a, "@") {
			out = append(out, a)
		}
	}
	return out
}

// Partition splits candidates against the sent history. Candidates are
// checked in order: an exact prior send wins, then a prior send to the same
// non-public domain (or base domain), otherwise the address is clean.
// Candidates are expected to be normalized already; repeats within the list
// are reported as exact duplicates.
func Partition(candidates, sent []string) Result {
	sentSet := make(map[string]struct{}, len(sent))
	// first sent address per non-public domain and base domain
	firstByDomain := make(map[string]string, len(sent))
	remember := func(domain, addr string) {
		if IsPublicProvider(domain) {
			return
		}
		if _, ok := firstByDomain[domain]; !ok {
			firstByDomain[domain] = addr
		}
	}
	for _, s := range sent {
		s = Normalize(s)
		d := domainOf(s)
		if d == "" {
			continue
		}
		sentSet[s] = struct{}{}
		if IsPublicProvider(d) {
			continue
		}
		remember(d, s)
		remember(baseDomain(d), s)
	}

	var res Result
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		key := Normalize(c)
		if _, ok := sentSet[key]; ok {
			res.ExactDuplicates = append(res.ExactDuplicates, c)
			continue
		}
		if _, ok := seen[key]; ok {
			res.ExactDuplicates = append(res.ExactDuplicates, c)
			continue
		}
		seen[key] = struct{}{}

		if prev, ok := companyMatch(domainOf(key), firstByDomain); ok {
			res.CompanyMatches = append(res.CompanyMatches, CompanyMatch{Email: c, Previous: prev})
			continue
		}
		res.Clean = append(res.Clean, c)
	}
	return res
}

func companyMatch(domain string, firstByDomain map[string]string) (string, bool) {
	if domain == "" {
		return "", false
	}
	if prev, ok := firstByDomain[domain]; ok {
		return prev, true
	}
	prev, ok := firstByDomain[baseDomain(domain)]
	return prev, ok
}
