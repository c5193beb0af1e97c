package retrieval

import "strings"

// sanitizeFTSQuery turns free-form user/candidate text into a safe FTS5
// MATCH expression: strip FTS5 operators and punctuation, collapse
// whitespace, tokenize, and quote each token so none of it is interpreted
// as FTS5 syntax (column filters, NEAR, prefix `*`, boolean operators).
// Tokens are joined with OR — retrieval favors recall here; RRF and the
// recency/confidence multipliers downstream do the precision work.
func sanitizeFTSQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " OR ")
}
