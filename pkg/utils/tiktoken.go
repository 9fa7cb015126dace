// Package utils provides tiktoken-based token counting and small generic helpers.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts and truncates text by tokens. All supported providers are
// approximated with the GPT-4 encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // shared codec, expensive to build
var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

// NewTokenCounter creates a token counter for model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// DefaultTokenCounter returns a process-wide counter. It never returns nil; when the
// codec cannot be built the counter falls back to a 4-chars-per-token estimate.
func DefaultTokenCounter() *TokenCounter {
	defaultCounterOnce.Do(func() {
		counter, err := NewTokenCounter("gpt-4")
		if err != nil {
			counter = &TokenCounter{}
		}
		defaultCounter = counter
	})
	return defaultCounter
}

// CountTokens returns the number of tokens in text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens with the default counter.
func CountTokensSimple(text string) int {
	return DefaultTokenCounter().CountTokens(text)
}

// TruncateToTokenLimit cuts text to at most limit tokens and appends a marker when it truncates.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 || text == "" {
		return text
	}

	if tc.codec != nil {
		ids, _, err := tc.codec.Encode(text)
		if err == nil {
			if len(ids) <= limit {
				return text
			}
			if decoded, decErr := tc.codec.Decode(ids[:limit]); decErr == nil {
				return decoded + "\n...[truncated]"
			}
		}
	}

	charLimit := limit * 4
	if charLimit >= len(text) {
		return text
	}
	return text[:charLimit] + "\n...[truncated]"
}
