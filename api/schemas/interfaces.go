package schemas

import "context"

// CompletionOptions enumerates the sampling knobs the gateway recognizes.
type CompletionOptions struct {
	Model         string
	Temperature   float32
	MaxTokens     int
	StopSequences []string
	// ForceJSON asks the provider for a JSON response when it supports
	// constrained output (the planner relies on this).
	ForceJSON bool
}

// CompletionRequest is one text-completion call against the model gateway.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      CompletionOptions
}

// LLMClient is the model gateway consumed by the planner and executor. The
// underlying model is opaque; implementations handle transport retries and
// surface ErrModelUnavailable / ErrModelTimeout from the llmclient package.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Environment produces isolated browser sessions. No two runs may share a
// session; the orchestrator acquires exactly one per run and guarantees its
// release.
type Environment interface {
	Reset(ctx context.Context, task TaskConfig) (Session, error)
}

// Session is one live, stateful interaction surface. Observation and action
// payloads are opaque to the control loop beyond being serializable into
// trajectory steps.
type Session interface {
	Observe(ctx context.Context) (*Observation, error)
	Act(ctx context.Context, action Action) (*ActResult, error)
	Close(ctx context.Context) error
}
