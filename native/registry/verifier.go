package registry

import "strings"

// NameVerifier decides whether a proposed token name is acceptable for a
// market. Implementations must be pure: same input, same answer, no side
// effects.
type NameVerifier interface {
	IsValid(name string) bool
}

// DomainNoSubdomainNameVerifier accepts bare domain names: a single label,
// a dot, and a top-level domain. Subdomains, uppercase letters and stray
// whitespace are rejected so each domain maps to exactly one token name.
type DomainNoSubdomainNameVerifier struct{}

// IsValid implements the NameVerifier interface.
func (DomainNoSubdomainNameVerifier) IsValid(name string) bool {
	if name == "" || name != strings.TrimSpace(name) {
		return false
	}
	if strings.Count(name, ".") != 1 {
		return false
	}
	label, tld, _ := strings.Cut(name, ".")
	if label == "" || tld == "" {
		return false
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return false
	}
	for _, r := range label {
		if !domainRune(r) {
			return false
		}
	}
	for _, r := range tld {
		if r == '-' || !domainRune(r) {
			return false
		}
	}
	return true
}

func domainRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-':
		return true
	}
	return false
}
