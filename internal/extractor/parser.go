package extractor

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/arjunblj/memorycore/internal/errs"
)

// stripCodeFences removes a leading ```json / ``` fence and trailing ```
// fence, the shape chat models reliably wrap JSON in even under an explicit
// JSON-mode instruction. Grounded on GoKitt's parser.go fence-stripping
// step, which strips the same markdown wrapper before attempting any parse.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// objectRepairPattern finds a complete top-level brace-delimited object
// inside otherwise-unparseable text — the last-resort repair step GoKitt's
// parser falls back to when both the strict and raw-array parses fail.
var objectRepairPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// parseExtractionResult parses the extraction call's response text into an
// ExtractionResult, following GoKitt's parser.go three-tier idiom: strict
// parse first, then a brace-extraction repair, never a silent partial
// result — a failure here always degrades to (nil, err) and the caller
// treats the turn as contributing nothing (§4.F step 2, §7).
func parseExtractionResult(text string) (*ExtractionResult, error) {
	cleaned := stripCodeFences(text)

	var res ExtractionResult
	if err := json.Unmarshal([]byte(cleaned), &res); err == nil {
		return &res, nil
	}

	repaired := objectRepairPattern.FindString(cleaned)
	if repaired == "" {
		return nil, &errs.ExtractionParseError{Stage: "extract", Err: errors.New("no JSON object found")}
	}
	if err := json.Unmarshal([]byte(repaired), &res); err != nil {
		return nil, &errs.ExtractionParseError{Stage: "extract", Err: err}
	}
	return &res, nil
}

func parseReconcileResult(text string) (*ReconcileResult, error) {
	cleaned := stripCodeFences(text)

	var res ReconcileResult
	if err := json.Unmarshal([]byte(cleaned), &res); err == nil {
		return &res, nil
	}

	// Some backends return the bare actions array rather than the wrapper
	// object; GoKitt's parser falls back to a raw-array parse in the same
	// situation before trying brace-repair.
	var actions []ReconcileAction
	if err := json.Unmarshal([]byte(cleaned), &actions); err == nil {
		return &ReconcileResult{Actions: actions}, nil
	}

	repaired := objectRepairPattern.FindString(cleaned)
	if repaired == "" {
		return nil, &errs.ExtractionParseError{Stage: "reconcile", Err: errors.New("no JSON object found")}
	}
	if err := json.Unmarshal([]byte(repaired), &res); err != nil {
		return nil, &errs.ExtractionParseError{Stage: "reconcile", Err: err}
	}
	return &res, nil
}

func parseVerifyResult(text string) (*VerifyResult, error) {
	cleaned := stripCodeFences(text)

	var res VerifyResult
	if err := json.Unmarshal([]byte(cleaned), &res); err == nil {
		return &res, nil
	}

	var flags []bool
	if err := json.Unmarshal([]byte(cleaned), &flags); err == nil {
		return &VerifyResult{Supported: flags}, nil
	}

	return nil, &errs.ExtractionParseError{Stage: "verify", Err: errors.New("unparseable verify response")}
}
