package handlers

import "context"

// ChatMessage is one turn of a model conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// TokenUsage reports what a completion call consumed.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Completer is the minimal LLM-backed completion surface an agent handler
// consumes. Implementations wrap a concrete provider client with its own
// rate and retry logic; the pump never calls one directly.
type Completer interface {
	Complete(ctx context.Context, model string, messages []ChatMessage, agentID string) (string, TokenUsage, error)
}

type completerKey struct{}

// WithCompleter attaches a Completer to the context for the handler to pick
// up via CompleterFrom.
func WithCompleter(ctx context.Context, c Completer) context.Context {
	return context.WithValue(ctx, completerKey{}, c)
}

// CompleterFrom extracts the Completer from the context, if any.
func CompleterFrom(ctx context.Context) (Completer, bool) {
	c, ok := ctx.Value(completerKey{}).(Completer)
	return c, ok
}

// UsageReporter receives the token consumption a handler reports during an
// invocation. The pump installs one per dispatch and debits the thread's
// budget with whatever the handler reports.
type UsageReporter func(tokens int64)

type usageKey struct{}

// WithUsageReporter attaches the per-dispatch usage reporter to the context.
func WithUsageReporter(ctx context.Context, report UsageReporter) context.Context {
	return context.WithValue(ctx, usageKey{}, report)
}

// ReportUsage charges tokens against the current thread's budget. It is a
// no-op when no reporter is installed, so handlers can call it
// unconditionally.
func ReportUsage(ctx context.Context, tokens int64) {
	if report, ok := ctx.Value(usageKey{}).(UsageReporter); ok && tokens > 0 {
		report(tokens)
	}
}
