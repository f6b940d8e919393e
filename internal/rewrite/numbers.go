package rewrite

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	percentWordRe  = regexp.MustCompile(`\s*\bper\s?cent\b`)
	spacedPercent  = regexp.MustCompile(`(\d)\s+%`)
	numericTokenRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?(?:%|[a-z]+)?|[a-z]+`)
	numericSplitRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)(.*)$`)
)

var smallNumberWords = map[string]int64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// Large scales stay as a suffix after a quantity ("five million" and
// "5 million" both become "5million"); alone they become digits.
var scaleWords = map[string]int64{
	"thousand": 1_000,
	"million":  1_000_000,
	"billion":  1_000_000_000,
	"trillion": 1_000_000_000_000,
}

type numericMatch struct {
	text       string
	start, end int
}

// CandidateNumbers extracts the normalized numeric tokens of a headline.
func CandidateNumbers(text string) []string {
	return extractNumbers(text, false)
}

// ExtractNumericTokens extracts normalized numeric tokens from source text.
// Suffixed tokens also record their bare number, so "5GW" in a source
// grounds both "5gw" and "5" in a candidate.
func ExtractNumericTokens(text string) []string {
	return extractNumbers(text, true)
}

func extractNumbers(text string, withBare bool) []string {
	normalized := strings.ToLower(text)
	normalized = percentWordRe.ReplaceAllString(normalized, "%")
	normalized = spacedPercent.ReplaceAllString(normalized, "$1%")

	var matches []numericMatch
	for _, loc := range numericTokenRe.FindAllStringIndex(normalized, -1) {
		matches = append(matches, numericMatch{text: normalized[loc[0]:loc[1]], start: loc[0], end: loc[1]})
	}

	var out []string
	seen := map[string]struct{}{}
	emit := func(token string) {
		if token == "" {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}

	for i := 0; i < len(matches); i++ {
		m := matches[i]
		if isDigit(m.text[0]) {
			number, suffix := splitNumeric(strings.ReplaceAll(m.text, ",", ""))
			if suffix == "" && i+1 < len(matches) && adjacent(normalized, m, matches[i+1]) {
				if _, ok := scaleWords[matches[i+1].text]; ok {
					suffix = matches[i+1].text
					i++
				}
			}
			emit(number + suffix)
			if withBare && suffix != "" {
				emit(number)
			}
			continue
		}

		if !isNumberWord(m.text) {
			continue
		}
		j := i
		for j+1 < len(matches) && adjacent(normalized, matches[j], matches[j+1]) && isNumberWord(matches[j+1].text) {
			j++
		}
		words := make([]string, 0, j-i+1)
		for k := i; k <= j; k++ {
			words = append(words, matches[k].text)
		}
		number, suffix, decimal := composeNumberWords(words)
		if suffix == "" && strings.HasPrefix(normalized[matches[j].end:], "%") {
			suffix = "%"
		}
		emit(number + suffix)
		if withBare && suffix != "" {
			emit(number)
		}
		if withBare {
			emit(decimal)
		}
		i = j
	}
	return out
}

func splitNumeric(token string) (string, string) {
	parts := numericSplitRe.FindStringSubmatch(token)
	if parts == nil {
		return token, ""
	}
	return parts[1], parts[2]
}

// adjacent reports whether only spaces or hyphens separate two matches.
func adjacent(text string, left, right numericMatch) bool {
	gap := text[left.end:right.start]
	return strings.Trim(gap, " -") == "" && len(gap) > 0
}

func isNumberWord(word string) bool {
	if _, ok := smallNumberWords[word]; ok {
		return true
	}
	if _, ok := scaleWords[word]; ok {
		return true
	}
	return word == "hundred" || word == "dozen"
}

// composeNumberWords turns a run such as "twenty five", "two hundred" or
// "two million nine hundred thousand" into digits. A run that is exactly a
// quantity followed by one scale word keeps the scale as a suffix ("three
// million" is "3million"), matching "3 million" in digits. Otherwise the full
// value is returned, plus its decimal form over the largest scale when there
// is a remainder ("2.9million" for 2900000).
func composeNumberWords(words []string) (number, suffix, decimal string) {
	var (
		total, current int64
		pending        bool
		scales         int
		topScale       int64
		topName        string
	)
	for _, w := range words {
		switch {
		case w == "hundred":
			if !pending {
				current = 1
			}
			current *= 100
			pending = true
		case w == "dozen":
			if !pending {
				current = 1
			}
			current *= 12
			pending = true
		default:
			if scale, ok := scaleWords[w]; ok {
				if !pending {
					current = 1
				}
				total += current * scale
				current, pending = 0, false
				scales++
				if scale > topScale {
					topScale, topName = scale, w
				}
				continue
			}
			current += smallNumberWords[w]
			pending = true
		}
	}
	value := total + current

	last := words[len(words)-1]
	if _, lastIsScale := scaleWords[last]; lastIsScale && scales == 1 && len(words) > 1 {
		return strconv.FormatInt(value/scaleWords[last], 10), last, ""
	}
	if topScale > 0 && value%topScale != 0 {
		decimal = strconv.FormatFloat(float64(value)/float64(topScale), 'f', -1, 64) + topName
	}
	return strconv.FormatInt(value, 10), "", decimal
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
