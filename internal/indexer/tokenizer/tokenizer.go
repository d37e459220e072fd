// Package tokenizer implements the English search language used when a
// documentation build produces its search index: Unicode word splitting,
// lower-casing, Porter stemming and the stopword filter. Query parsing uses
// the same rules so that query terms line up with indexed terms.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

var stopWords = map[string]struct{}{
	"a": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {},
	"for": {},
	"if": {}, "in": {}, "into": {}, "is": {}, "it": {},
	"near": {}, "no": {}, "not": {},
	"of": {}, "on": {}, "or": {},
	"such": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {},
	"was": {}, "will": {}, "with": {},
}

// Hiragana range used by the short-word filter.
const (
	hiraganaLow  = 12353
	hiraganaHigh = 12436
)

// Token is a single word of input text together with its stem and its
// position among the words of the text.
type Token struct {
	Word     string
	Term     string
	Position int
}

// Split returns the runs of word characters (letters, numbers and the
// underscore) in text, in order. Case is preserved.
func Split(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isWordRune(r)
	})
}

// Tokenize splits text into words and stems every one of them. No word is
// dropped; callers apply WordFilter according to their own policy.
func Tokenize(text string) []Token {
	words := Split(text)
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{
			Word:     word,
			Term:     Stem(word),
			Position: pos,
		})
	}
	return tokens
}

// Stem lower-cases word and reduces it with the Porter algorithm.
func Stem(word string) string {
	return strings.ToLower(porterstemmer.StemString(strings.ToLower(word)))
}

// IsStopword reports whether word is on the stopword list. The comparison is
// case sensitive.
func IsStopword(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// WordFilter reports whether word may be stored in the index. Words whose
// first rune is below U+0100 are rejected when shorter than three runes or
// when they are stopwords. Words shorter than three runes that start with
// Hiragana are rejected too. The empty word passes.
func WordFilter(word string) bool {
	if word == "" {
		return true
	}
	first, _ := utf8.DecodeRuneInString(word)
	short := utf8.RuneCountInString(word) < 3
	if short && first > hiraganaLow && first < hiraganaHigh {
		return false
	}
	if first < 256 && (short || IsStopword(word)) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
