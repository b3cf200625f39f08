package mailbox

import (
	"regexp"
	"strings"
)

// GenericATSDomains are applicant-tracking senders shared by many companies.
var GenericATSDomains = []string{
	"us.greenhouse-mail.io",
	"smartrecruiters.com",
	"linkedin.com",
	"ashbyhq.com",
	"hire.lever.co",
	"hi.wellfound.com",
	"talent.icims.com",
	"myworkday.com",
	"otta.com",
}

var automatedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^no[-_.]?reply@`),
	regexp.MustCompile(`(?i)^do[-_.]?not[-_.]?reply@`),
	regexp.MustCompile(`(?i)^notifications@`),
	regexp.MustCompile(`(?i)^team@`),
	regexp.MustCompile(`(?i)^hello@`),
	regexp.MustCompile(`(?i)@smartrecruiters\.com$`),
}

// FromAddress extracts addr from "Name <addr>"; other values are returned trimmed.
func FromAddress(from string) string {
	if i := strings.IndexByte(from, '<'); i >= 0 {
		rest := from[i+1:]
		if j := strings.IndexByte(rest, '>'); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(from)
}

func EmailDomain(addr string) string {
	if _, domain, ok := strings.Cut(addr, "@"); ok {
		return strings.ToLower(domain)
	}
	return ""
}

func IsGenericATSDomain(domain string) bool {
	domain = strings.ToLower(domain)
	for _, d := range GenericATSDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// IsAutomatedSender reports whether addr looks like a no-reply or bulk sender.
func IsAutomatedSender(addr string) bool {
	for _, p := range automatedPatterns {
		if p.MatchString(addr) {
			return true
		}
	}
	return false
}

// CompanyFromSender guesses a company name from the sender domain.
// Empty when the domain is missing or belongs to a generic ATS.
func CompanyFromSender(from string) string {
	domain := EmailDomain(FromAddress(from))
	if domain == "" || IsGenericATSDomain(domain) {
		return ""
	}
	label, _, _ := strings.Cut(domain, ".")
	return label
}
