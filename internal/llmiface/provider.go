// Package llmiface defines the two collaborator interfaces the core
// consumes (§6): LLMBackend and Embedder. The core never imports a concrete
// LLM SDK at this boundary — generalized from the teacher's
// llm-interface/provider.go Provider/ProviderFunc shape, narrowed to the
// single-method contract this spec mandates.
package llmiface

import "context"

// Role selects which configured model a Complete call should use.
type Role string

const (
	RoleDefault Role = "default"
	RoleFast    Role = "fast"
)

// Message is a provider-agnostic chat message, carried over from the
// teacher's llm-interface.Message shape.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
}

// CompletionRequest bundles the arguments to a single LLMBackend.Complete
// call per §6: role, messages, a step budget, and a mandatory cancellation
// signal. JSONMode requests strict JSON-object output for callers (the
// Extractor's strict-schema calls, §4.F) that need to parse the result
// without fencing or prose.
type CompletionRequest struct {
	Role     Role
	Messages []Message
	MaxSteps int
	JSONMode bool
}

// CompletionResult is the single-field response §6 specifies.
type CompletionResult struct {
	Text string
}

// LLMBackend is the consumed collaborator for all LLM calls the core makes
// (extraction, reconciliation, verification, capsule synthesis). Exactly
// one method, matching §6's contract verbatim. Cancellation via ctx is
// mandatory: every implementation must honor ctx.Done() and every call site
// must pass a ctx that is cancelled on shutdown.
type LLMBackend interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Vector is a dense embedding.
type Vector []float32

// Embedder is the optional consumed collaborator for vector retrieval. When
// absent, retrieval is lexical-only (§4.C).
type Embedder interface {
	Dims() int
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// BackendFunc adapts a plain function into an LLMBackend, following the
// teacher's ProviderFunc http.HandlerFunc-style adapter convention.
type BackendFunc func(ctx context.Context, req CompletionRequest) (CompletionResult, error)

func (f BackendFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return f(ctx, req)
}
