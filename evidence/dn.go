package evidence

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var dnFolder = cases.Fold()

// NormalizeDN returns a canonical form of a distinguished name string for
// comparison: NFKC normalized, case folded, with whitespace around RDN
// separators and inside values collapsed.
func NormalizeDN(dn string) string {
	s := norm.NFKC.String(dn)
	s = dnFolder.String(s)

	rdns := splitUnescaped(s, ',')
	for i, rdn := range rdns {
		attrs := splitUnescaped(rdn, '+')
		for j, attr := range attrs {
			k, v, ok := strings.Cut(attr, "=")
			if !ok {
				attrs[j] = collapseSpace(attr)
				continue
			}
			attrs[j] = collapseSpace(k) + "=" + collapseSpace(v)
		}
		rdns[i] = strings.Join(attrs, "+")
	}
	return strings.Join(rdns, ",")
}

// SameDN reports whether two distinguished names are equal after
// normalization.
func SameDN(a, b string) bool {
	if a == b {
		return true
	}
	return NormalizeDN(a) == NormalizeDN(b)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitUnescaped splits s on sep, ignoring separators escaped with a
// backslash.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
