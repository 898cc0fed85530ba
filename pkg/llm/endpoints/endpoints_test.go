package endpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roundup/pkg/llm/breaker"
	"github.com/go-go-golems/roundup/pkg/llm/openaichat"
)

func TestBuild_OpenAIWithBreaker(t *testing.T) {
	ep, err := Build(Settings{Provider: ProviderOpenAI, Model: "gpt-4o", APIKey: "k", MaxPromptTokens: 1234, Breaker: true}, nil)
	require.NoError(t, err)
	_, ok := ep.(*breaker.Endpoint)
	assert.True(t, ok)
	assert.Equal(t, "openai", ep.Descriptor().Provider)
	assert.Equal(t, 1234, ep.Descriptor().MaxPromptTokens)
}

func TestBuild_AnthropicPlain(t *testing.T) {
	ep, err := Build(Settings{Provider: "Anthropic", Model: "claude-sonnet-4-5", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", ep.Descriptor().Provider)
	_, isOpenAI := ep.(*openaichat.Endpoint)
	assert.False(t, isOpenAI)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(Settings{Provider: "nope"}, nil)
	assert.Error(t, err)
	_, err = Build(Settings{Provider: ProviderGeppetto}, nil)
	assert.Error(t, err)
	_, err = Build(Settings{Provider: ProviderOpenAI}, nil)
	assert.Error(t, err, "model is required")
}
