package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
)

func newTestGenAI(t *testing.T, endpoint string) *GenAIClient {
	t.Helper()
	client, err := NewGenAIClient(context.Background(), config.LLMConfig{
		Provider:   "genai",
		Model:      "gemini-2.0-flash",
		APIKey:     "test-key",
		Endpoint:   endpoint,
		APITimeout: 10 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestNewGenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewGenAIClient(context.Background(), config.LLMConfig{Model: "gemini-2.0-flash"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestGenAICompleteRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error": {"code": 503, "message": "overloaded", "status": "UNAVAILABLE"}}`)
			return
		}
		fmt.Fprint(w, geminiSuccessBody("recovered"))
	}))
	defer server.Close()

	client := newTestGenAI(t, server.URL)
	got, err := client.Complete(context.Background(), schemas.CompletionRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenAICompleteCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiSuccessBody("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestGenAI(t, server.URL)
	_, err := client.Complete(ctx, schemas.CompletionRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyGenAIError(t *testing.T) {
	isPermanent := func(err error) bool {
		var perm *backoff.PermanentError
		return errors.As(err, &perm)
	}

	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		err := classifyGenAIError(genai.APIError{Code: code, Message: "transient"})
		assert.False(t, isPermanent(err), "status %d must stay retryable", code)
	}
	for _, code := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden} {
		err := classifyGenAIError(genai.APIError{Code: code, Message: "permanent"})
		assert.True(t, isPermanent(err), "status %d must not be retried", code)
	}

	// Errors without a provider status stay retryable.
	plain := fmt.Errorf("connection refused")
	assert.False(t, isPermanent(classifyGenAIError(plain)))
}
