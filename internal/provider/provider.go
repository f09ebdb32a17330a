// Package provider defines the minimal streaming-completion contract the
// agentic loop consumes, plus thin adapters over a handful of real LLM
// SDKs. The wire-level detail of any one vendor's API is explicitly out of
// scope for this module (spec.md treats concrete provider SDKs as external
// collaborators that may be reimplemented trivially); what matters here is
// that each adapter turns one session's flattened message history into a
// stream of text chunks.
package provider

import "context"

// LLMProvider is the interface AgenticLoop drives. Tool calls are not part
// of this contract: the loop extracts them from the streamed text itself
// (an embedded <TOOL> block), so a provider only ever has to stream plain
// assistant text.
type LLMProvider interface {
	// Name identifies the provider for logging and metrics.
	Name() string

	// Models lists the provider's known models, for display/validation only.
	Models() []Model

	// Complete streams one assistant turn. The returned channel is closed
	// once a CompletionChunk with Done set (or Error set) has been sent.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// CompletionRequest carries one turn's flattened history to a provider.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	MaxTokens int
}

// CompletionMessage is one entry of conversation history, already reduced
// to plain role/content text by AgenticLoop.buildRequest — tool calls and
// tool results have already been folded into assistant-role text by the
// time a provider sees them.
type CompletionMessage struct {
	Role    string // "user", "assistant", or "system"
	Content string
}

// CompletionChunk is one piece of a streamed completion.
type CompletionChunk struct {
	Text         string
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// Model describes one model a provider can be asked to use.
type Model struct {
	ID          string
	Name        string
	ContextSize int
}
