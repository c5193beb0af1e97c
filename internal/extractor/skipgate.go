package extractor

import (
	"regexp"
	"strings"
	"unicode"
)

// greetingWords are turns that carry no extractable content on their own
// (§4.F step 1).
var greetingWords = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "sup": true,
	"thanks": true, "thank you": true, "ok": true, "okay": true, "k": true,
	"lol": true, "lmao": true, "haha": true, "cool": true, "nice": true,
	"bye": true, "goodnight": true, "gn": true, "morning": true,
}

var (
	digitPattern       = regexp.MustCompile(`\d`)
	timeCuePattern     = regexp.MustCompile(`(?i)\b(today|tomorrow|tonight|yesterday|next week|next month|monday|tuesday|wednesday|thursday|friday|saturday|sunday|am|pm|o'clock)\b`)
	actionVerbPattern  = regexp.MustCompile(`(?i)\b(i'?m|i am|i will|i'?ll|i'?ve|i have|i was|i need|i want|i plan|i'?m going|she'?s|he'?s|they'?re)\b`)
	capitalizedPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]{2,}\b`)
)

// shouldSkip reports whether userText is cheap enough to bypass the
// extraction call entirely (§4.F step 1: "short/greeting/emoji-only turns
// skip straight to marking extracted").
func shouldSkip(userText string) bool {
	trimmed := strings.TrimSpace(userText)
	if trimmed == "" {
		return true
	}
	if isEmojiOnly(trimmed) {
		return true
	}
	if len(trimmed) <= 12 && greetingWords[strings.ToLower(strings.Trim(trimmed, "!.? "))] {
		return true
	}
	signal := hasPositiveSignal(trimmed)
	if len(trimmed) < 8 && !signal {
		return true
	}
	return !signal
}

// hasPositiveSignal requires at least one of: a digit, an @-mention, a
// capitalized word of 3+ letters, a time/date cue, or a first/third-person
// action verb — the gate that keeps the extraction call from firing on
// every low-content message (§4.F step 1).
func hasPositiveSignal(text string) bool {
	if digitPattern.MatchString(text) {
		return true
	}
	if strings.Contains(text, "@") {
		return true
	}
	if capitalizedPattern.MatchString(text) {
		return true
	}
	if timeCuePattern.MatchString(text) {
		return true
	}
	if actionVerbPattern.MatchString(text) {
		return true
	}
	return false
}

func isEmojiOnly(text string) bool {
	found := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if unicode.IsPunct(r) {
			continue
		}
		if r < 0x2000 {
			return false
		}
		found = true
	}
	return found
}
