// Package tokenize turns source code and free-text questions into
// comparable terms: identifiers are split on case and underscores,
// diacritics are folded, Vietnamese domain vocabulary is mapped to the
// English names used in code, stop words are dropped and terms are stemmed.
package tokenize

import (
	"strings"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLength is the shortest term kept.
const MinTokenLength = 2

// Fold lowercases s and strips combining marks ("Điểm" -> "diem").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.NewReplacer("đ", "d", "Đ", "D").Replace(folded)
	return strings.ToLower(folded)
}

// Words splits s on anything that is not a letter or digit, keeping the
// original case so identifiers can still be split.
func Words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// Tokenize returns the stemmed terms of text in order of appearance,
// duplicates included.
func Tokenize(text string) []string {
	var raw []string
	for _, word := range Words(text) {
		for _, part := range SplitCodeToken(word) {
			raw = append(raw, Fold(part))
		}
	}

	raw = translate(raw)

	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) < MinTokenLength {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, Stem(tok))
	}
	return tokens
}

// Terms returns term frequencies for text and the total term count.
func Terms(text string) (map[string]int, int) {
	toks := Tokenize(text)
	tf := make(map[string]int, len(toks))
	for _, t := range toks {
		tf[t]++
	}
	return tf, len(toks)
}

// Unique returns the distinct terms of text in first-seen order.
func Unique(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokenize(text) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Stem reduces an English term to its Porter stem. Digits-only and
// non-ASCII terms are returned unchanged.
func Stem(term string) string {
	for _, r := range term {
		if r > unicode.MaxASCII {
			return term
		}
	}
	return porterstemmer.StemString(term)
}

// SplitCodeToken splits snake_case and camelCase identifiers.
func SplitCodeToken(token string) []string {
	if !strings.Contains(token, "_") {
		return SplitCamelCase(token)
	}
	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, SplitCamelCase(part)...)
		}
	}
	return result
}

// SplitCamelCase splits camelCase and PascalCase identifiers:
// "getStudentById" -> [get Student By Id], "HTTPClient" -> [HTTP Client].
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var (
		result  []string
		current []rune
	)
	rs := []rune(s)
	for i, r := range rs {
		if i > 0 && len(current) > 0 {
			prev := rs[i-1]
			split := false
			switch {
			case unicode.IsUpper(r):
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				split = unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)
			case unicode.IsDigit(r):
				split = unicode.IsLetter(prev)
			}
			if split {
				result = append(result, string(current))
				current = current[:0]
			}
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		result = append(result, string(current))
	}
	return result
}
