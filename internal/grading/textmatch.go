package grading

import "unicode"

// normalize does simple casefolding and drops punctuation and spaces, so
// "b", " B " and "(B)" compare equal.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		out = append(out, unicode.ToUpper(r))
	}
	return string(out)
}
