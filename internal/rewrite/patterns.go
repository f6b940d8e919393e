package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// patternFamily is one banned-phrase list and the reason prefix it reports.
type patternFamily struct {
	reason   string
	patterns []*regexp.Regexp
}

func compileFamily(reason string, raw []string) (patternFamily, error) {
	family := patternFamily{reason: reason}
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b(?:` + p + `)\b`)
		if err != nil {
			return patternFamily{}, fmt.Errorf("compile %s pattern %q: %w", reason, p, err)
		}
		family.patterns = append(family.patterns, re)
	}
	return family, nil
}

// match returns the first banned phrase found in text, lowercased.
func (f patternFamily) match(text string) (string, bool) {
	for _, re := range f.patterns {
		if found := re.FindString(text); found != "" {
			return strings.ToLower(found), true
		}
	}
	return "", false
}
