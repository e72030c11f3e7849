package embedding

import (
	"fmt"

	"github.com/Harshitk-cp/concord/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
	// ProviderLexical runs without embeddings; similarity falls back to token
	// overlap and index lookups are disabled.
	ProviderLexical = "lexical"
)

// NewClient creates an embedding client based on the provider name. The
// lexical provider yields a nil client.
func NewClient(provider, apiKey, baseURL string) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		var opts []OpenAIOption
		if baseURL != "" {
			opts = append(opts, WithBaseURL(baseURL))
		}
		return NewOpenAIClient(apiKey, opts...), nil

	case ProviderMock:
		return NewMockClient(), nil

	case ProviderLexical:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, mock, lexical)", provider)
	}
}
