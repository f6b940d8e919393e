// Package langdetect guards English-only text rules against other languages.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// minLetters is the shortest sample worth classifying; headlines below it
// are treated as undetected.
const minLetters = 6

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Detect returns the ISO 639-1 code of text. ok is false when the sample is
// too short or the detector is not confident.
func Detect(text string) (string, bool) {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return "", false
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return "", false
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return "", false
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return "", false
	}
	return code, true
}

// IsEnglish reports false only for text confidently detected as another
// language.
func IsEnglish(text string) bool {
	code, ok := Detect(text)
	return !ok || code == "en"
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithMinimumRelativeDistance(0.25).
			Build()
	})
	return detector
}
