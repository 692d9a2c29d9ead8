// Package llm provides a provider-agnostic interface for chat completions.
package llm

import "context"

// Completer sends a conversation and returns a single decoded completion.
// Implementations exist for OpenAI-compatible endpoints and Anthropic.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Streamer extends Completer with incremental delivery.
// Providers that speak Server-Sent Events implement this.
type Streamer interface {
	Completer
	Stream(ctx context.Context, req *Request) (*Stream, error)
}
