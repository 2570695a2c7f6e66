// Package syntax performs the pure structural checks that gate every
// validation pipeline. Nothing here touches the network.
package syntax

import (
	"regexp"
	"strings"
)

const (
	maxEmailLength  = 254
	maxLocalLength  = 64
	maxDomainLength = 253

	minPhoneDigits = 3
	maxPhoneDigits = 17
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email reports whether candidate is a structurally valid address and, when it
// is, returns its lower-cased domain.
func Email(candidate string) (string, bool) {
	if len(candidate) == 0 || len(candidate) > maxEmailLength {
		return "", false
	}
	if !emailPattern.MatchString(candidate) {
		return "", false
	}
	at := strings.LastIndexByte(candidate, '@')
	local, domain := candidate[:at], candidate[at+1:]
	if len(local) > maxLocalLength || len(domain) > maxDomainLength {
		return "", false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return "", false
	}
	if strings.HasPrefix(domain, ".") || strings.HasPrefix(domain, "-") || strings.Contains(domain, "..") {
		return "", false
	}
	return strings.ToLower(domain), true
}

// Phone reports whether candidate only contains dialable characters and a
// plausible number of digits. It returns the digits with formatting removed.
// A leading '+' is the only place the plus sign may appear.
func Phone(candidate string) (string, bool) {
	s := strings.TrimSpace(candidate)
	if s == "" {
		return "", false
	}
	var digits strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+':
			if i != 0 {
				return "", false
			}
		case r == ' ', r == '-', r == '.', r == '(', r == ')', r == '/':
		default:
			return "", false
		}
	}
	n := digits.Len()
	if n < minPhoneDigits || n > maxPhoneDigits {
		return "", false
	}
	return digits.String(), true
}
