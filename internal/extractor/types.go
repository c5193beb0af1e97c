// Package extractor implements the Memory Extractor (§4.F): the
// skip-gate → extract → reconcile → schedule pipeline that turns one
// conversational turn into durable facts, events, open loops, and
// person-side-data updates.
//
// Grounded on `engine/schedules.go`'s multi-call pipeline shape
// (summarize → tag → title: one call produces structured content, a
// second/third call refines it) generalized into extract → verify →
// reconcile, and on GoKitt's `pkg/extraction/parser.go` robust-JSON-parse
// idiom (code-fence stripping, fallback parse, regex repair) adapted from
// entity/relation extraction to fact/event/open-loop extraction.
package extractor

import "github.com/arjunblj/memorycore/internal/store"

// CandidateFact is one fact[] entry in the extraction call's JSON schema.
type CandidateFact struct {
	Subject       string `json:"subject"`
	Content       string `json:"content"`
	Category      string `json:"category"`
	FactType      string `json:"factType"`
	TemporalScope string `json:"temporalScope"`
	EvidenceQuote string `json:"evidenceQuote"`
}

// CandidateEvent is one events[] entry.
type CandidateEvent struct {
	Kind        string `json:"kind"`
	Subject     string `json:"subject"`
	TriggerAtMs int64  `json:"triggerAtMs"`
	Recurrence  string `json:"recurrence"`
	FollowUp    bool   `json:"followUp"`
}

// CandidateOpenLoop is one openLoops[] entry.
type CandidateOpenLoop struct {
	Subject          string `json:"subject"`
	Category         string `json:"category"`
	EmotionalWeight  string `json:"emotionalWeight"`
	AnchorDateMs     int64  `json:"anchorDateMs"`
	EvidenceQuote    string `json:"evidenceQuote"`
	FollowUpQuestion string `json:"followUpQuestion"`
}

// CandidateResolution is one resolutions[] entry: a claim that an existing
// open loop has been resolved.
type CandidateResolution struct {
	Subject    string  `json:"subject"`
	Confidence float64 `json:"confidence"`
}

// CandidatePersonUpdate is the optional personUpdate object.
type CandidatePersonUpdate struct {
	CurrentConcerns    []string          `json:"currentConcerns"`
	Goals              []string          `json:"goals"`
	Preferences        map[string]string `json:"preferences"`
	LastMoodSignal     string            `json:"lastMoodSignal"`
	CuriosityQuestions []string          `json:"curiosityQuestions"`
}

// ExtractionResult is the extraction call's top-level JSON schema.
type ExtractionResult struct {
	Facts        []CandidateFact        `json:"facts"`
	Events       []CandidateEvent       `json:"events"`
	OpenLoops    []CandidateOpenLoop    `json:"openLoops"`
	Resolutions  []CandidateResolution  `json:"resolutions"`
	PersonUpdate *CandidatePersonUpdate `json:"personUpdate"`
}

// ReconcileAction is one reconciler verdict for a candidate fact.
type ReconcileAction struct {
	Action      string `json:"action"` // "add" | "update" | "delete" | "none"
	ExistingIdx int    `json:"existingIdx"`
	CandidateIdx int   `json:"candidateIdx"`
	Content     string `json:"content"`
}

// ReconcileResult is the reconciliation call's top-level JSON schema.
type ReconcileResult struct {
	Actions []ReconcileAction `json:"actions"`
}

// VerifyResult is the verification call's top-level JSON schema: one
// supported flag per candidate, in candidate order.
type VerifyResult struct {
	Supported []bool `json:"supported"`
}

// Turn bundles the per-turn input the pipeline needs.
type Turn struct {
	ChatID        string
	PersonID      string
	IsGroup       bool
	EpisodeID     int64
	UserText      string
	AssistantText string
}

// Outcome summarizes what the pipeline did, for logging/testing.
type Outcome struct {
	Skipped       bool
	FactsWritten  int
	EventsAdded   []store.EventKind
	LoopsResolved int
	LoopsOpened   int
}
