// Package transcript normalizes recognized text before it reaches the composer.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// Options controls transcript normalization.
type Options struct {
	TrailingSpace       bool
	CapitalizeSentences bool
}

var (
	pronounIContraction = regexp.MustCompile(`\bi['’](?:m|d|ll|ve|re|s)\b`)
	pronounIWord        = regexp.MustCompile(`(^|[^\p{L}.])i([^\p{L}.]|$)`)
)

// lowercaseAbbreviations stay lowercase even at sentence starts.
var lowercaseAbbreviations = map[string]struct{}{
	"e.g": {},
	"etc": {},
	"i.e": {},
	"vs":  {},
}

// nonTerminalAbbreviations end with a period that does not close a sentence.
var nonTerminalAbbreviations = map[string]struct{}{
	"e.g": {}, "i.e": {}, "cf": {},
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "jr": {},
	"fig": {}, "no": {}, "vol": {}, "approx": {},
}

// Normalize collapses whitespace and applies the configured casing rules.
func Normalize(text string, opts Options) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return ""
	}

	if opts.CapitalizeSentences {
		normalized = capitalizeSentences(normalized)
	}
	if opts.TrailingSpace {
		return normalized + " "
	}
	return normalized
}

// Normalizer returns Normalize bound to opts.
func Normalizer(opts Options) func(string) string {
	return func(text string) string { return Normalize(text, opts) }
}

func capitalizeSentences(text string) string {
	text = capitalizeSentenceStarts(text)
	text = pronounIContraction.ReplaceAllStringFunc(text, func(match string) string {
		return "I" + match[1:]
	})
	// Two passes: adjacent matches share their separator.
	for range 2 {
		text = pronounIWord.ReplaceAllString(text, "${1}I${2}")
	}
	return text
}

func capitalizeSentenceStarts(text string) string {
	words := strings.Split(text, " ")
	atStart := true
	for i, word := range words {
		if atStart {
			words[i] = capitalizeWord(word)
		}
		atStart = endsSentence(word)
	}
	return strings.Join(words, " ")
}

// capitalizeWord uppercases the first letter after any opening quotes or brackets.
func capitalizeWord(word string) string {
	runes := []rune(word)
	for i, r := range runes {
		if unicode.IsDigit(r) {
			return word
		}
		if !unicode.IsLetter(r) {
			continue
		}
		if _, ok := lowercaseAbbreviations[abbreviationToken(string(runes[i:]))]; ok {
			return word
		}
		runes[i] = unicode.ToUpper(r)
		return string(runes)
	}
	return word
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `)]}'"’”`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '!', '?':
		return true
	case '.':
	default:
		return false
	}

	token := abbreviationToken(trimmed)
	if _, ok := nonTerminalAbbreviations[token]; ok {
		return false
	}
	// Dotted initialisms such as "U.S.".
	if isInitialism(token) {
		return false
	}
	return true
}

func abbreviationToken(word string) string {
	word = strings.TrimLeft(word, `([{'"‘“`)
	return strings.ToLower(strings.TrimRight(word, ".,;:!?)]}'\"’”"))
}

func isInitialism(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		if len([]rune(part)) != 1 {
			return false
		}
		if !unicode.IsLetter([]rune(part)[0]) {
			return false
		}
	}
	return true
}
