// Package llm contains adapters for invoking large language models. It
// abstracts away provider-specific APIs so the conversation loop only sees a
// prompt-in, text-out operation; tool-invocation round-trips happen entirely
// inside the provider adapter.
package llm
