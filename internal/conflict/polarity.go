package conflict

import (
	"strings"
	"unicode"
)

var auxiliaries = map[string]bool{
	"is": true, "are": true, "was": true, "has": true, "have": true,
	"can": true, "should": true, "must": true, "will": true,
}

// antonyms maps a negative verb to its positive form.
var antonyms = map[string]string{
	"deny":     "allow",
	"disallow": "allow",
	"block":    "allow",
	"forbid":   "permit",
	"reject":   "accept",
	"disable":  "enable",
	"exclude":  "include",
	"fail":     "pass",
}

var positives = map[string]bool{
	"allow": true, "permit": true, "accept": true, "enable": true, "include": true, "pass": true,
}

var negPrefixes = []string{"in", "un", "dis", "non", "im", "il", "ir"}

type polarity struct {
	words   []string
	negated bool
	boolean bool
}

// polarityOf reads a boolean-looking output name such as isValid,
// is_not_expired or denyAccess.
func polarityOf(name string) polarity {
	words := splitWords(name)
	var p polarity
	i := 0
	for i < len(words) && auxiliaries[words[i]] {
		p.boolean = true
		i++
	}
	for i < len(words) && (words[i] == "not" || words[i] == "no") {
		p.negated = !p.negated
		p.boolean = true
		i++
	}
	rest := append([]string(nil), words[i:]...)
	if len(rest) > 0 {
		if pos, ok := antonyms[rest[0]]; ok {
			rest[0] = pos
			p.negated = !p.negated
			p.boolean = true
		} else if positives[rest[0]] {
			p.boolean = true
		}
	}
	p.words = rest
	return p
}

// opposite reports whether two boolean-like outputs state contrary
// conditions about the same subject.
func opposite(a, b string) bool {
	pa, pb := polarityOf(a), polarityOf(b)
	if !pa.boolean || !pb.boolean || len(pa.words) == 0 || len(pb.words) == 0 {
		return false
	}
	related, flipped := relate(pa.words, pb.words)
	if !related {
		return false
	}
	return (pa.negated != pb.negated) != flipped
}

// relate reports whether a and b name the same subject, and whether one
// negates the other through a prefix (valid, invalid).
func relate(a, b []string) (related, flipped bool) {
	if len(a) != len(b) {
		return false, false
	}
	for i := 1; i < len(a); i++ {
		if a[i] != b[i] {
			return false, false
		}
	}
	if a[0] == b[0] {
		return true, false
	}
	for _, pre := range negPrefixes {
		if len(b[0]) >= 3 && a[0] == pre+b[0] {
			return true, true
		}
		if len(a[0]) >= 3 && b[0] == pre+a[0] {
			return true, true
		}
	}
	return false, false
}

// splitWords lowercases name and splits it on separators and camelCase
// boundaries: "isHTTPValid" -> [is http valid].
func splitWords(name string) []string {
	var words []string
	var cur []rune
	runes := []rune(name)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}
