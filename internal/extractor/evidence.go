package extractor

import "strings"

const maxEvidenceQuoteLen = 200

// evidenceSupported enforces the hard evidence-quote gate (§4.F step 2):
// a fact or open loop is dropped unless its evidenceQuote is non-empty, at
// most 200 characters, and a substring of the source user text after
// whitespace normalization. This is the guardrail against the extraction
// call inventing a fact with no basis in what was actually said.
func evidenceSupported(evidenceQuote, userText string) bool {
	q := strings.TrimSpace(evidenceQuote)
	if q == "" || len(q) > maxEvidenceQuoteLen {
		return false
	}
	return strings.Contains(normalizeWhitespace(userText), normalizeWhitespace(q))
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
