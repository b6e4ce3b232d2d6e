// Package langdetect decides whether a prompt is written in English or
// Spanish so captions and caller-facing messages can match the user's
// language. The product only serves those two languages; anything ambiguous
// falls back to English.
package langdetect

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

var spanishStopwords = map[string]struct{}{
	"el": {}, "la": {}, "los": {}, "las": {}, "un": {}, "una": {}, "unos": {},
	"de": {}, "del": {}, "en": {}, "con": {}, "para": {}, "por": {}, "que": {},
	"y": {}, "o": {}, "mi": {}, "mis": {}, "su": {}, "sus": {}, "es": {},
	"este": {}, "esta": {}, "estos": {}, "estas": {}, "como": {}, "muy": {},
	"fondo": {}, "foto": {}, "imagen": {}, "producto": {}, "quiero": {},
	"sobre": {}, "nuevo": {}, "nueva": {}, "más": {}, "sin": {},
}

var englishStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "on": {}, "in": {}, "with": {},
	"for": {}, "and": {}, "or": {}, "my": {}, "is": {}, "this": {}, "that": {},
	"to": {}, "new": {}, "photo": {}, "image": {}, "product": {}, "want": {},
	"background": {}, "white": {}, "very": {}, "about": {}, "without": {},
}

// Detect returns language.Spanish or language.English for the given text.
func Detect(text string) language.Tag {
	esScore, enScore := 0, 0
	for _, word := range tokenize(text) {
		if _, ok := spanishStopwords[word]; ok {
			esScore++
		}
		if _, ok := englishStopwords[word]; ok {
			enScore++
		}
	}
	// Accented vowels and ñ are a strong Spanish signal on short prompts
	// where stopwords may not appear at all.
	for _, r := range text {
		switch r {
		case 'á', 'é', 'í', 'ó', 'ú', 'ñ', '¿', '¡':
			esScore += 2
		}
	}
	if esScore > enScore {
		return language.Spanish
	}
	return language.English
}

// Code returns the two-letter code used on the wire ("en" or "es").
func Code(tag language.Tag) string {
	base, _ := tag.Base()
	if base.String() == "es" {
		return "es"
	}
	return "en"
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
