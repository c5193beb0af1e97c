package consolidation

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases and splits s into alphanumeric tokens, the shared
// primitive behind the word-token overlap test (§4.G step 4: "drop
// concerns/goals not mentioned ... using a word-token overlap test") and
// the ≥85% token-Jaccard dedupe test.
func tokenize(s string) map[string]bool {
	toks := tokenPattern.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}

// mentionedIn reports whether any token of phrase appears in text's token
// set — a permissive overlap test, not a substring match, so "job at
// Stripe" is still considered mentioned by "I started at Stripe last week".
func mentionedIn(phrase string, textTokens map[string]bool) bool {
	for t := range tokenize(phrase) {
		if textTokens[t] {
			return true
		}
	}
	return false
}

// jaccardSimilarity computes |A∩B| / |A∪B| over two token sets.
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

const dedupeJaccardThreshold = 0.85

// contradictionKeyPatterns maps a stable contradiction key to a regex that
// detects it in fact content (§4.G step 4: "works_at, lives_in detected by
// regex"). When two current facts for the same person match the same key,
// only the newest survives.
var contradictionKeyPatterns = map[string]*regexp.Regexp{
	"works_at": regexp.MustCompile(`(?i)\bworks?\s+at\b|\bemployed\s+(?:at|by)\b`),
	"lives_in": regexp.MustCompile(`(?i)\blives?\s+in\b|\bbased\s+in\b|\bresides?\s+in\b`),
}

// contradictionKey returns the stable key content matches, or "" if none.
func contradictionKey(content string) string {
	for key, pattern := range contradictionKeyPatterns {
		if pattern.MatchString(content) {
			return key
		}
	}
	return ""
}
