// Package sanitize screens user questions before they reach the prompt.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	cerrors "github.com/Aman-CERP/codechat/internal/errors"
)

// MaxSpecialRatio is the largest share of punctuation and symbols a
// question may contain.
const MaxSpecialRatio = 0.3

var (
	scriptPattern  = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	controlPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// bannedPhrases are prompt injection and markup fragments, matched case
// insensitively after tags are stripped.
var bannedPhrases = []string{
	"ignore previous",
	"ignore all",
	"ignore instructions",
	"you are now",
	"admin mode",
	"system mode",
	"reveal password",
	"show password",
	"show database",
	"drop table",
	"delete from",
	"<script",
	"</script>",
	"javascript:",
	"onerror=",
	"onclick=",
	"onload=",
	"eval(",
	"execute(",
	"system(",
	"exec(",
}

// Question cleans q and rejects it when it looks like an injection attempt.
// Rejections are INVALID_INPUT errors.
func Question(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", invalid("Question cannot be empty.")
	}

	q = scriptPattern.ReplaceAllString(q, "")
	q = tagPattern.ReplaceAllString(q, "")

	lower := strings.ToLower(q)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			return "", invalid("Question contains potentially harmful content.").
				WithDetail("phrase", phrase)
		}
	}

	if ratio := SpecialRatio(q); ratio > MaxSpecialRatio {
		return "", invalid("Question contains too many special characters.").
			WithDetail("ratio", fmt.Sprintf("%.2f", ratio))
	}

	q = strings.TrimSpace(controlPattern.ReplaceAllString(q, ""))
	if q == "" {
		return "", invalid("Question is empty after sanitization.")
	}
	return q, nil
}

// SpecialRatio returns the share of runes that are neither letters, digits,
// combining marks nor whitespace.
func SpecialRatio(s string) float64 {
	total, special := 0, 0
	for _, r := range s {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && !unicode.Is(unicode.Mn, r) {
			special++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(special) / float64(total)
}

func invalid(msg string) *cerrors.ChatError {
	return cerrors.New(cerrors.CodeInvalidInput, msg, nil).
		WithSuggestion("Rephrase the question in plain words.")
}
