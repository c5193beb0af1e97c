package extractor

import (
	"regexp"
	"strings"

	"github.com/arjunblj/memorycore/internal/store"
)

var (
	properNounPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]+\b`)
	twoDigitPattern    = regexp.MustCompile(`\d{2,}`)
	hedgingPattern     = regexp.MustCompile(`(?i)\b(maybe|might|probably|i think|not sure)\b`)
)

// tierFact assigns a ConfidenceTier per §4.F step 3: high if the quote is
// long and substantive, low if it's thin or hedged, medium otherwise.
func tierFact(quote, content, userText string) store.ConfidenceTier {
	supported := evidenceSupported(quote, userText)
	q := strings.TrimSpace(quote)

	if len(q) >= 15 && supported && hasProperNounOrNumberOrMention(content) {
		return store.ConfidenceHigh
	}
	if len(q) < 10 || !supported || hedgingPattern.MatchString(content) {
		return store.ConfidenceLow
	}
	return store.ConfidenceMedium
}

func hasProperNounOrNumberOrMention(content string) bool {
	if properNounPattern.MatchString(content) {
		return true
	}
	if twoDigitPattern.MatchString(content) {
		return true
	}
	return strings.Contains(content, "@")
}
