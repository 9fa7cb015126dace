package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/pkg/agent/llm"
)

type slowClient struct{ delay time.Duration }

func (s *slowClient) Complete(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	select {
	case <-time.After(s.delay):
		return llm.CompletionResponse{Content: "done"}, nil
	case <-ctx.Done():
		return llm.CompletionResponse{}, ctx.Err()
	}
}

func (s *slowClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.StreamFromComplete(ctx, s, req)
}

func (s *slowClient) GetModelName() string { return "slow" }

func TestTimeoutMiddleware(t *testing.T) {
	client := Middleware(20 * time.Millisecond)(&slowClient{delay: time.Second})
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	fast := Middleware(time.Second)(&slowClient{delay: time.Millisecond})
	resp, err := fast.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)

	stream, err := fast.Stream(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	var got string
	for chunk := range stream {
		got += chunk.Content
	}
	assert.Equal(t, "done", got)
}

func TestTimeoutDisabled(t *testing.T) {
	base := &slowClient{}
	assert.Equal(t, llm.LLMClient(base), Middleware(0)(base))
}
