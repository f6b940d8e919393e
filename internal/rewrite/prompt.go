package rewrite

import (
	"strings"
)

const promptInstructions = `Rewrite the news headline below so it states plainly what happened.
Keep every fact from the original. Do not add numbers, names or claims that are not in the source text.
Avoid hype, hedging and commentary about the coverage itself.
Return only the headline.`

// BuildPrompt assembles the generator prompt from the source material.
// Empty sections are left out.
func BuildPrompt(title, dek, bodyExcerpt string) string {
	var b strings.Builder
	b.WriteString(promptInstructions)
	b.WriteString("\n\nHeadline: ")
	b.WriteString(strings.TrimSpace(title))
	if dek = strings.TrimSpace(dek); dek != "" {
		b.WriteString("\nSummary: ")
		b.WriteString(dek)
	}
	if bodyExcerpt = strings.TrimSpace(bodyExcerpt); bodyExcerpt != "" {
		b.WriteString("\nArticle excerpt:\n")
		b.WriteString(bodyExcerpt)
	}
	return b.String()
}
