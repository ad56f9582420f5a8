package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
)

// GenAIClient is the SDK-backed provider, using the official genai client
// instead of the raw REST endpoint. The SDK does its own connection
// management; we add retry, timeout scoping and error classification.
type GenAIClient struct {
	client *genai.Client
	cfg    config.LLMConfig
	logger *zap.Logger
}

// NewGenAIClient initializes the SDK client against the Gemini API backend.
func NewGenAIClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIClient{
		client: client,
		cfg:    cfg,
		logger: logger.Named("llmclient.genai"),
	}, nil
}

// Complete satisfies schemas.LLMClient, retrying transient failures with
// exponential backoff before escalating.
func (c *GenAIClient) Complete(ctx context.Context, req schemas.CompletionRequest) (string, error) {
	if c.cfg.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.APITimeout)
		defer cancel()
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Options.Temperature),
		MaxOutputTokens: int32(req.Options.MaxTokens),
		StopSequences:   req.Options.StopSequences,
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Options.ForceJSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	model := req.Options.Model
	if model == "" {
		model = c.cfg.Model
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var text string

	operation := func() error {
		resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.UserPrompt), genCfg)
		if err != nil {
			c.logger.Warn("genai generation failed", zap.String("model", model), zap.Error(err))
			return classifyGenAIError(err)
		}
		text = resp.Text()
		if text == "" {
			return fmt.Errorf("genai returned an empty completion")
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", classifyTransportError(err)
	}
	return text, nil
}

// classifyGenAIError separates provider statuses worth retrying from
// permanent request errors, the same split the REST client applies.
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
			return err // transient, retry
		default:
			return backoff.Permanent(err)
		}
	}
	// Network-level failures carry no status; leave them retryable.
	return err
}
