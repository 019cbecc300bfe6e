package dedup

import "strings"

// publicProviders are mailbox hosts shared by unrelated people. A match on one
// of these says nothing about the employer, so it never counts as a company match.
var publicProviders = map[string]struct{}{
	"gmail.com": {}, "yahoo.com": {}, "hotmail.com": {}, "outlook.com": {}, "icloud.com": {},
	"aol.com": {}, "protonmail.com": {}, "zoho.com": {}, "yandex.com": {}, "mail.com": {},
	"msn.com": {}, "live.com": {}, "me.com": {}, "googlemail.com": {}, "rocketmail.com": {},
	"btinternet.com": {}, "comcast.net": {}, "verizon.net": {}, "cox.net": {}, "att.net": {},
	"sbcglobal.net": {}, "bellsouth.net": {}, "charter.net": {}, "shaw.ca": {}, "earthlink.net": {},
	"mail.ru": {}, "gmx.com": {}, "gmx.de": {}, "web.de": {}, "t-online.de": {},
	"libero.it": {}, "virgilio.it": {}, "alice.it": {}, "wanadoo.fr": {}, "orange.fr": {},
	"free.fr": {}, "laposte.net": {}, "rediffmail.com": {}, "indiatimes.com": {}, "tiscali.it": {},
	"uol.com.br": {}, "bol.com.br": {}, "terra.com.br": {}, "ig.com.br": {}, "globomail.com": {},
	"oi.com.br": {}, "sky.com": {}, "virginmedia.com": {}, "ntlworld.com": {}, "blueyonder.co.uk": {},
	"talktalk.net": {},
}

// second-level labels that sit under a country code, as in co.uk or com.br.
var secondLevelLabels = map[string]struct{}{
	"com": {}, "co": {}, "org": {}, "net": {}, "edu": {}, "gov": {}, "ac": {},
}

// IsPublicProvider reports whether domain is a shared consumer mailbox host.
func IsPublicProvider(domain string) bool {
	_, ok := publicProviders[strings.ToLower(domain)]
	return ok
}

func domainOf(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return addr[at+1:]
}

// baseDomain strips subdomains: mail.acme.com -> acme.com, hr.acme.co.uk -> acme.co.uk.
func baseDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) <= 2 {
		return domain
	}
	if _, ok := secondLevelLabels[parts[len(parts)-2]]; ok {
		return strings.Join(parts[len(parts)-3:], ".")
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
