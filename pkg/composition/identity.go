package composition

import (
	"regexp"
	"strings"
)

const (
	casKeyPrefix  = "cas:"
	nameKeyPrefix = "name:"
)

var (
	casExactPattern  = regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`)
	casSearchPattern = regexp.MustCompile(`\d{2,7}-\d{2}-\d`)
)

// NormalizeCAS returns the CAS registry number contained in raw. An exact
// match is returned as-is, otherwise the first CAS-shaped substring is used.
// The second return value is false when raw holds no CAS number.
func NormalizeCAS(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if casExactPattern.MatchString(raw) {
		return raw, true
	}
	if m := casSearchPattern.FindString(raw); m != "" {
		return m, true
	}
	return "", false
}

// NormalizeName lower-cases a component name and collapses whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// IdentityKey returns the key used to match the same substance across
// analyses and composite versions. A CAS number always wins over the name.
func IdentityKey(cas *string, name string) string {
	if cas != nil {
		if c := strings.TrimSpace(*cas); c != "" {
			return casKeyPrefix + c
		}
	}
	return nameKeyPrefix + NormalizeName(name)
}
