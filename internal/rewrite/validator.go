// Package rewrite decides whether a generated headline may replace the
// original, and runs the generate-validate-persist pass over lead articles.
package rewrite

import (
	"strings"
	"unicode/utf8"

	"horse.fit/storyline/internal/textnorm"
	"horse.fit/storyline/internal/tuning"
)

const (
	ReasonEmpty            = "empty"
	ReasonUnchanged        = "unchanged"
	ReasonTooShort         = "too_short"
	ReasonTooLong          = "too_long"
	ReasonOverCompressed   = "over_compressed"
	ReasonUngroundedPrefix = "ungrounded_number:"
	ReasonHypePrefix       = "hype_language:"
	ReasonHedgingPrefix    = "hedging_language:"
	ReasonMetaPrefix       = "meta_reporting:"
)

const (
	CheckSanitize      = "sanitize"
	CheckNonDegenerate = "non_degenerate"
	CheckLength        = "length"
	CheckCompression   = "compression"
	CheckNumbers       = "numeric_provenance"
	CheckPatterns      = "banned_patterns"
)

const (
	surroundingQuotes  = "\"'`“”‘’„«»‹›"
	decorativeTrailers = ".,;:!|~*-–—… "
)

// Context is what the validator knows about the source material.
type Context struct {
	HasBody bool
	// SourceNumbers are ExtractNumericTokens results over the title, dek and
	// body excerpt.
	SourceNumbers []string
}

// Verdict is the validation outcome. Reason is empty when accepted.
type Verdict struct {
	Accepted  bool     `json:"accepted"`
	Reason    string   `json:"reason,omitempty"`
	Candidate string   `json:"candidate"`
	Trail     []string `json:"trail"`
}

type Validator struct {
	cfg      tuning.Rewrite
	families []patternFamily
}

func NewValidator(cfg tuning.Rewrite) (*Validator, error) {
	v := &Validator{cfg: cfg}
	for _, list := range []struct {
		reason   string
		patterns []string
	}{
		{reason: ReasonHypePrefix, patterns: cfg.HypePatterns},
		{reason: ReasonHedgingPrefix, patterns: cfg.HedgingPatterns},
		{reason: ReasonMetaPrefix, patterns: cfg.MetaPatterns},
	} {
		family, err := compileFamily(list.reason, list.patterns)
		if err != nil {
			return nil, err
		}
		v.families = append(v.families, family)
	}
	return v, nil
}

// SourceContext builds the validator context from the source material. The
// body is cut to the configured excerpt length before extraction.
func (v *Validator) SourceContext(title, dek, body string) Context {
	body = excerpt(body, v.cfg.BodyExcerptChars)
	return Context{
		HasBody:       body != "",
		SourceNumbers: ExtractNumericTokens(strings.Join([]string{title, dek, body}, "\n")),
	}
}

// Validate runs the checks in order and stops at the first failure.
func (v *Validator) Validate(original, candidate string, vctx Context) Verdict {
	verdict := Verdict{Candidate: Sanitize(candidate)}
	verdict.Trail = append(verdict.Trail, CheckSanitize)

	reject := func(reason string) Verdict {
		verdict.Reason = reason
		return verdict
	}

	if verdict.Candidate == "" {
		return reject(ReasonEmpty)
	}
	if textnorm.Fold(verdict.Candidate) == textnorm.Fold(original) {
		return reject(ReasonUnchanged)
	}
	verdict.Trail = append(verdict.Trail, CheckNonDegenerate)

	length := utf8.RuneCountInString(verdict.Candidate)
	minChars := v.cfg.MinChars
	if !vctx.HasBody {
		minChars = v.cfg.MinCharsWithoutBody
	}
	if length < minChars {
		return reject(ReasonTooShort)
	}
	if length > v.cfg.MaxChars {
		return reject(ReasonTooLong)
	}
	verdict.Trail = append(verdict.Trail, CheckLength)

	if !v.compressionOK(original, verdict.Candidate, vctx.HasBody) {
		return reject(ReasonOverCompressed)
	}
	verdict.Trail = append(verdict.Trail, CheckCompression)

	grounded := make(map[string]struct{}, len(vctx.SourceNumbers))
	for _, token := range vctx.SourceNumbers {
		grounded[token] = struct{}{}
	}
	for _, token := range CandidateNumbers(verdict.Candidate) {
		if _, ok := grounded[token]; !ok {
			return reject(ReasonUngroundedPrefix + token)
		}
	}
	verdict.Trail = append(verdict.Trail, CheckNumbers)

	for _, family := range v.families {
		if phrase, found := family.match(verdict.Candidate); found {
			return reject(family.reason + phrase)
		}
	}
	verdict.Trail = append(verdict.Trail, CheckPatterns)

	verdict.Accepted = true
	return verdict
}

// compressionOK compares word counts. Long originals are social-style posts
// and only need an absolute floor.
func (v *Validator) compressionOK(original, candidate string, hasBody bool) bool {
	originalWords := textnorm.WordCount(original)
	candidateWords := textnorm.WordCount(candidate)
	if originalWords == 0 {
		return candidateWords > 0
	}
	if originalWords > v.cfg.LongOriginalWords {
		return candidateWords >= v.cfg.LongOriginalMinWords
	}
	minRatio := v.cfg.MinRatioWithoutBody
	if hasBody {
		minRatio = v.cfg.MinRatioWithBody
	}
	return float64(candidateWords)/float64(originalWords) >= minRatio
}

// Sanitize strips wrapping quotes, collapses whitespace and drops trailing
// decorative punctuation.
func Sanitize(candidate string) string {
	out := strings.Join(strings.Fields(candidate), " ")
	for {
		trimmed := strings.TrimSpace(out)
		if r, size := utf8.DecodeRuneInString(trimmed); size > 0 && strings.ContainsRune(surroundingQuotes, r) {
			trimmed = trimmed[size:]
		}
		if r, size := utf8.DecodeLastRuneInString(trimmed); size > 0 && strings.ContainsRune(surroundingQuotes, r) {
			trimmed = trimmed[:len(trimmed)-size]
		}
		trimmed = strings.TrimRight(trimmed, decorativeTrailers)
		if trimmed == out {
			return out
		}
		out = trimmed
	}
}
