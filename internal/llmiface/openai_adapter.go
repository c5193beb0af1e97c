package llmiface

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend adapts an *openai.Client into an LLMBackend, routing
// RoleDefault and RoleFast to two configured model names. Mirrors the
// teacher's OpenAIClientWrapper (engine/schedules.go) — a thin struct
// wrapping the SDK client to satisfy a single-method interface — but
// resolves role → model here instead of leaving model selection to the
// caller.
type OpenAIBackend struct {
	Client      *openai.Client
	DefaultModel string
	FastModel    string
}

func (b *OpenAIBackend) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := b.DefaultModel
	if req.Role == RoleFast && b.FastModel != "" {
		model = b.FastModel
	}
	if model == "" {
		return CompletionResult{}, fmt.Errorf("llmiface: no model configured for role %q", req.Role)
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}

	ccReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if req.JSONMode {
		ccReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := b.Client.CreateChatCompletion(ctx, ccReq)
	if err != nil {
		select {
		case <-ctx.Done():
			return CompletionResult{}, fmt.Errorf("llmiface: cancelled: %w", ctx.Err())
		default:
			return CompletionResult{}, err
		}
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("llmiface: empty response from model %s", model)
	}
	return CompletionResult{Text: resp.Choices[0].Message.Content}, nil
}
