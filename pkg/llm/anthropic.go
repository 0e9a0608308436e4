// Package llm implements graph.LLMProvider against Anthropic's Messages
// API. The request is built as a plain graph.FetchRequest (so it flows
// through the same rate-gated fetcher as every other outbound call)
// rather than through a direct client call, and the response is parsed
// by hand to recover the single text block plus any Markdown code fence
// around it.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/pixlieai/graphengine/pkg/graph"
)

// defaultModel is the small, cheap model used for objective refinement
// and classification, not the flagship one.
const defaultModel = anthropic.ModelClaude3_5HaikuLatest

const maxTokens = 1024

// AnthropicProvider implements graph.LLMProvider using the Anthropic
// Messages API.
type AnthropicProvider struct {
	APIKey string
	Model  anthropic.Model
}

// NewAnthropicProvider constructs a provider. model may be empty, in
// which case defaultModel is used.
func NewAnthropicProvider(apiKey string, model anthropic.Model) *AnthropicProvider {
	if model == "" {
		model = defaultModel
	}
	return &AnthropicProvider{APIKey: apiKey, Model: model}
}

// BuildRequest renders prompt as a single-turn user message against the
// Messages API and wraps it in a graph.FetchRequest so the caller
// dispatches it through the shared rate-gated fetcher instead of a
// separate HTTP client.
func (p *AnthropicProvider) BuildRequest(prompt string, callingNodeID graph.NodeID) (graph.FetchRequest, error) {
	if p.APIKey == "" {
		return graph.FetchRequest{}, fmt.Errorf("llm: no Anthropic API key configured")
	}

	params := anthropic.MessageNewParams{
		Model:     p.Model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	body, err := json.Marshal(params)
	if err != nil {
		return graph.FetchRequest{}, fmt.Errorf("llm: encode request: %w", err)
	}

	return graph.FetchRequest{
		NodeID: callingNodeID,
		Method: "POST",
		URL:    "https://api.anthropic.com/v1/messages",
		Headers: map[string]string{
			"Content-Type":      "application/json",
			"anthropic-version": "2023-06-01",
			"x-api-key":         p.APIKey,
		},
		Body: body,
	}, nil
}

// messageResponse is the minimal wire shape of a Messages API reply,
// decoded by hand rather than into the SDK's richer client-side Message
// type since only the first text block's content is ever needed.
type messageResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// ParseResponse decodes data as a Messages API reply, strips an optional
// ```json fence, and unmarshals what remains into out.
func (p *AnthropicProvider) ParseResponse(data []byte, out any) error {
	var resp messageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("llm: decode response envelope: %w", err)
	}
	if len(resp.Content) != 1 {
		return fmt.Errorf("llm: expected exactly one content block, got %d", len(resp.Content))
	}

	text := resp.Content[0].Text
	switch {
	case strings.HasPrefix(text, "```json"):
		text = strings.TrimSuffix(strings.TrimPrefix(text, "```json"), "```")
	case strings.HasPrefix(text, "```"):
		text = strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	}
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("llm: parse payload from model response: %w", err)
	}
	return nil
}

var _ graph.LLMProvider = (*AnthropicProvider)(nil)
