// Package llmclient implements the model gateway: provider clients, the
// transport error taxonomy, and the shared rate-limit throttle.
package llmclient

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
)

// NewClient builds the configured provider and wraps it with the shared
// throttle.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	var (
		client schemas.LLMClient
		err    error
	)

	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		client, err = NewGeminiClient(cfg, logger)
	case "genai":
		client, err = NewGenAIClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (supported: gemini, genai)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewThrottled(client, cfg.RequestsPerMinute, cfg.Burst), nil
}
